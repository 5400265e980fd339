package accesstokenmock

import (
	"context"
	"sync"

	"github.com/openkcm/openid-provider/internal/accesstoken"
	"github.com/openkcm/openid-provider/internal/serviceerr"
)

type RepositoryOption func(*Repository)

// Repository is an in-memory accesstoken.Repository.
type Repository struct {
	mu     sync.Mutex
	tokens map[string]accesstoken.AccessToken

	loadErr, saveErr, revokeErr error
}

func WithToken(token accesstoken.AccessToken) RepositoryOption {
	return func(r *Repository) { r.tokens[token.ID] = token }
}
func WithLoadError(err error) RepositoryOption {
	return func(r *Repository) { r.loadErr = err }
}
func WithSaveError(err error) RepositoryOption {
	return func(r *Repository) { r.saveErr = err }
}
func WithRevokeError(err error) RepositoryOption {
	return func(r *Repository) { r.revokeErr = err }
}

var _ = accesstoken.Repository(&Repository{})

func NewInMemRepository(opts ...RepositoryOption) *Repository {
	r := &Repository{
		tokens: make(map[string]accesstoken.AccessToken),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

func (r *Repository) Load(_ context.Context, id string) (accesstoken.AccessToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.loadErr != nil {
		return accesstoken.AccessToken{}, r.loadErr
	}
	if token, ok := r.tokens[id]; ok {
		return token, nil
	}
	return accesstoken.AccessToken{}, serviceerr.ErrNotFound
}

func (r *Repository) Save(_ context.Context, token accesstoken.AccessToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.saveErr != nil {
		return r.saveErr
	}
	r.tokens[token.ID] = token
	return nil
}

func (r *Repository) Revoke(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.revokeErr != nil {
		return r.revokeErr
	}
	token, ok := r.tokens[id]
	if !ok {
		return serviceerr.ErrNotFound
	}
	token.Revoked = true
	r.tokens[id] = token
	return nil
}
