// Package subject gives access to the attributes stored for an
// authenticated end-user.
package subject

import "context"

// Attributes maps claim names to their values.
type Attributes map[string]any

// Repository looks subjects up by identifier. GetAttributes returns
// serviceerr.ErrNotFound when the subject is unknown.
type Repository interface {
	GetAttributes(ctx context.Context, subjectID string) (Attributes, error)
}
