// Package userinfo resolves the claims returned by the userinfo endpoint
// from the subject store, filtered by the scopes granted to the token.
package userinfo

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/zitadel/oidc/v3/pkg/oidc"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/openid-provider/internal/serviceerr"
	"github.com/openkcm/openid-provider/internal/subject"
)

var ErrStoreUnavailable = errors.New("subject store unavailable")

// ClaimSet maps claim names to values.
type ClaimSet map[string]any

// StandardScopeClaims is the scope to claims mapping of OpenID Connect
// Core 1.0 section 5.4.
var StandardScopeClaims = map[string][]string{
	oidc.ScopeProfile: {
		"name", "family_name", "given_name", "middle_name", "nickname",
		"preferred_username", "profile", "picture", "website", "gender",
		"birthdate", "zoneinfo", "locale", "updated_at",
	},
	oidc.ScopeEmail:   {"email", "email_verified"},
	oidc.ScopeAddress: {"address"},
	oidc.ScopePhone:   {"phone_number", "phone_number_verified"},
}

type Resolver struct {
	subjects    subject.Repository
	scopeClaims map[string][]string
}

// NewResolver combines the standard mapping with custom. Claims listed for
// a standard scope in custom are added to it, not substituted.
func NewResolver(subjects subject.Repository, custom map[string][]string) *Resolver {
	scopeClaims := make(map[string][]string, len(StandardScopeClaims)+len(custom))
	for scope, claims := range StandardScopeClaims {
		scopeClaims[scope] = slices.Clone(claims)
	}

	for scope, claims := range custom {
		for _, claim := range claims {
			if !slices.Contains(scopeClaims[scope], claim) {
				scopeClaims[scope] = append(scopeClaims[scope], claim)
			}
		}
	}

	return &Resolver{
		subjects:    subjects,
		scopeClaims: scopeClaims,
	}
}

// Resolve returns the claims of subjectID allowed by scopes. An unknown
// subject yields an empty set. Store failures wrap ErrStoreUnavailable.
func (r *Resolver) Resolve(ctx context.Context, subjectID string, scopes []string) (ClaimSet, error) {
	allowed := r.allowedClaims(scopes)
	if len(allowed) == 0 {
		return ClaimSet{}, nil
	}

	attrs, err := r.subjects.GetAttributes(ctx, subjectID)
	if err != nil {
		if errors.Is(err, serviceerr.ErrNotFound) {
			slogctx.Debug(ctx, "Subject has no attributes", "subject", subjectID)
			return ClaimSet{}, nil
		}

		return nil, errors.Join(ErrStoreUnavailable, fmt.Errorf("getting subject attributes: %w", err))
	}

	claims := make(ClaimSet, len(allowed))
	for name := range allowed {
		if v, ok := attrs[name]; ok && v != nil {
			claims[name] = v
		}
	}

	return claims, nil
}

// SupportedClaims lists every claim some scope can release, sorted.
func (r *Resolver) SupportedClaims() []string {
	all := make(map[string]struct{})
	for _, claims := range r.scopeClaims {
		for _, c := range claims {
			all[c] = struct{}{}
		}
	}

	return slices.Sorted(maps.Keys(all))
}

func (r *Resolver) allowedClaims(scopes []string) map[string]struct{} {
	allowed := make(map[string]struct{})
	for _, scope := range scopes {
		for _, claim := range r.scopeClaims[scope] {
			allowed[claim] = struct{}{}
		}
	}

	return allowed
}
