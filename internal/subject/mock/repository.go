package subjectmock

import (
	"context"
	"maps"
	"sync/atomic"

	"github.com/openkcm/openid-provider/internal/serviceerr"
	"github.com/openkcm/openid-provider/internal/subject"
)

type RepositoryOption func(*Repository)

// Repository is an in-memory subject.Repository.
type Repository struct {
	subjects map[string]subject.Attributes
	getErr   error
	calls    atomic.Int64
}

func WithSubject(id string, attrs subject.Attributes) RepositoryOption {
	return func(r *Repository) { r.subjects[id] = attrs }
}
func WithGetError(err error) RepositoryOption {
	return func(r *Repository) { r.getErr = err }
}

var _ = subject.Repository(&Repository{})

func NewInMemRepository(opts ...RepositoryOption) *Repository {
	r := &Repository{
		subjects: make(map[string]subject.Attributes),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

func (r *Repository) GetAttributes(_ context.Context, subjectID string) (subject.Attributes, error) {
	r.calls.Add(1)

	if r.getErr != nil {
		return nil, r.getErr
	}
	attrs, ok := r.subjects[subjectID]
	if !ok {
		return nil, serviceerr.ErrNotFound
	}
	return maps.Clone(attrs), nil
}

// Calls reports how many times GetAttributes was invoked.
func (r *Repository) Calls() int64 {
	return r.calls.Load()
}
