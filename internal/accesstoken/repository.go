package accesstoken

import "context"

// Repository persists access token records. Load returns
// serviceerr.ErrNotFound for unknown or expired tokens.
type Repository interface {
	Load(ctx context.Context, id string) (AccessToken, error)
	Save(ctx context.Context, token AccessToken) error
	Revoke(ctx context.Context, id string) error
}
