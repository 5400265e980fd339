package accesstokenvalkey

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/openkcm/openid-provider/internal/serviceerr"
)

type objectType string

type store struct {
	valkey valkey.Client
	prefix string
}

func newStore(valkeyClient valkey.Client, prefix string) *store {
	prefix = strings.TrimSuffix(prefix, ":")
	return &store{
		valkey: valkeyClient,
		prefix: prefix,
	}
}

func (s *store) Get(ctx context.Context, typ objectType, id string, decodeInto any) error {
	bytes, err := s.valkey.Do(ctx, s.valkey.B().Get().Key(s.key(typ, id)).Build()).AsBytes()
	if err != nil {
		if valkey.IsValkeyNil(err) {
			return serviceerr.ErrNotFound
		}

		return fmt.Errorf("executing get command: %w", err)
	}

	if err := s.decode(bytes, decodeInto); err != nil {
		return fmt.Errorf("decoding object: %w", err)
	}

	return nil
}

// SetUntil stores val so that it disappears at expiresAt.
func (s *store) SetUntil(ctx context.Context, typ objectType, id string, val any, expiresAt time.Time) error {
	bytes, err := s.encode(val)
	if err != nil {
		return fmt.Errorf("encoding data: %w", err)
	}

	cmd := s.valkey.B().Set().
		Key(s.key(typ, id)).
		Value(valkey.BinaryString(bytes)).
		PxatMillisecondsTimestamp(expiresAt.UnixMilli()).
		Build()

	if err := s.valkey.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("executing set command: %w", err)
	}

	return nil
}

// Replace overwrites an existing object and keeps its expiry. It returns
// serviceerr.ErrNotFound when the key no longer exists.
func (s *store) Replace(ctx context.Context, typ objectType, id string, val any) error {
	bytes, err := s.encode(val)
	if err != nil {
		return fmt.Errorf("encoding data: %w", err)
	}

	cmd := s.valkey.B().Set().
		Key(s.key(typ, id)).
		Value(valkey.BinaryString(bytes)).
		Xx().
		Keepttl().
		Build()

	if err := s.valkey.Do(ctx, cmd).Error(); err != nil {
		if valkey.IsValkeyNil(err) {
			return serviceerr.ErrNotFound
		}

		return fmt.Errorf("executing set command: %w", err)
	}

	return nil
}

func (s *store) key(typ objectType, id string) string {
	return fmt.Sprintf("%s:%s:%s", s.prefix, typ, id)
}

func (s *store) encode(v any) ([]byte, error) {
	bytes, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshaling json: %w", err)
	}

	return bytes, nil
}

func (s *store) decode(data []byte, into any) error {
	if err := json.Unmarshal(data, into); err != nil {
		return fmt.Errorf("unmarshaling json: %w", err)
	}

	return nil
}
