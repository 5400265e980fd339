// Package accesstokenvalkey keeps access token records in ValKey. Records
// expire together with the token they describe.
package accesstokenvalkey

import (
	"context"
	"errors"
	"time"

	"github.com/valkey-io/valkey-go"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/openid-provider/internal/accesstoken"
)

const objectTypeAccessToken objectType = "accesstoken"

var (
	ErrGetAccessToken    = errors.New("getting access token from store")
	ErrStoreAccessToken  = errors.New("setting access token into storage")
	ErrRevokeAccessToken = errors.New("revoking access token in storage")
	ErrTokenExpired      = errors.New("access token already expired")
)

type Repository struct {
	store *store
	now   func() time.Time
}

var _ = accesstoken.Repository(&Repository{})

func NewRepository(valkeyClient valkey.Client, prefix string) *Repository {
	return &Repository{
		store: newStore(valkeyClient, prefix),
		now:   time.Now,
	}
}

func (r *Repository) Load(ctx context.Context, id string) (accesstoken.AccessToken, error) {
	var token accesstoken.AccessToken
	if err := r.store.Get(ctx, objectTypeAccessToken, id, &token); err != nil {
		return accesstoken.AccessToken{}, errors.Join(ErrGetAccessToken, err)
	}

	return token, nil
}

func (r *Repository) Save(ctx context.Context, token accesstoken.AccessToken) error {
	if token.Expired(r.now()) {
		return errors.Join(ErrStoreAccessToken, ErrTokenExpired)
	}

	if err := r.store.SetUntil(ctx, objectTypeAccessToken, token.ID, token, token.Expiry); err != nil {
		return errors.Join(ErrStoreAccessToken, err)
	}

	return nil
}

// Revoke marks the token as revoked. The record is kept until the token
// expires so that later presentations are still rejected.
func (r *Repository) Revoke(ctx context.Context, id string) error {
	token, err := r.Load(ctx, id)
	if err != nil {
		return errors.Join(ErrRevokeAccessToken, err)
	}

	if token.Revoked {
		return nil
	}

	token.Revoked = true
	if err := r.store.Replace(ctx, objectTypeAccessToken, id, token); err != nil {
		return errors.Join(ErrRevokeAccessToken, err)
	}

	slogctx.Debug(ctx, "Revoked access token", "jti", id, "client_id", token.ClientID)

	return nil
}
