// Package subjectcache memoises subject lookups for a short time so that
// bursts of userinfo requests do not all reach the database.
package subjectcache

import (
	"context"
	"errors"
	"maps"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/openkcm/openid-provider/internal/serviceerr"
	"github.com/openkcm/openid-provider/internal/subject"
)

type Repository struct {
	next  subject.Repository
	cache *cache.Cache
}

var _ = subject.Repository(&Repository{})

// NewRepository wraps next with a cache. Entries live for ttl; unknown
// subjects are cached as well. Store errors are never cached.
func NewRepository(next subject.Repository, ttl time.Duration) *Repository {
	return &Repository{
		next:  next,
		cache: cache.New(ttl, 2*ttl),
	}
}

type entry struct {
	attrs    subject.Attributes
	notFound bool
}

func (r *Repository) GetAttributes(ctx context.Context, subjectID string) (subject.Attributes, error) {
	if v, ok := r.cache.Get(subjectID); ok {
		e := v.(entry)
		if e.notFound {
			return nil, serviceerr.ErrNotFound
		}

		return maps.Clone(e.attrs), nil
	}

	attrs, err := r.next.GetAttributes(ctx, subjectID)
	switch {
	case errors.Is(err, serviceerr.ErrNotFound):
		r.cache.SetDefault(subjectID, entry{notFound: true})
		return nil, err
	case err != nil:
		return nil, err
	}

	r.cache.SetDefault(subjectID, entry{attrs: maps.Clone(attrs)})

	return attrs, nil
}
