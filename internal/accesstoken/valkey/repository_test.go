package accesstokenvalkey_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valkey-io/valkey-go"

	"github.com/openkcm/openid-provider/internal/accesstoken"
	accesstokenvalkey "github.com/openkcm/openid-provider/internal/accesstoken/valkey"
	"github.com/openkcm/openid-provider/internal/dbtest/valkeytest"
	"github.com/openkcm/openid-provider/internal/serviceerr"
)

const prefix = "test"

var client valkey.Client

func TestMain(m *testing.M) {
	ctx := context.Background()

	c, _, terminate := valkeytest.Start(ctx)

	client = c
	code := m.Run()

	client.Close()
	terminate(ctx)
	os.Exit(code)
}

func newToken(id string, ttl time.Duration) accesstoken.AccessToken {
	return accesstoken.AccessToken{
		ID:       id,
		ClientID: "client-one",
		Subject:  "u1",
		Scopes:   []string{"openid", "email"},
		Expiry:   time.Now().Add(ttl).Truncate(time.Millisecond).UTC(),
	}
}

func TestRepository_SaveLoad(t *testing.T) {
	repo := accesstokenvalkey.NewRepository(client, prefix)
	token := newToken("jti-save-load", time.Hour)

	require.NoError(t, repo.Save(t.Context(), token))

	got, err := repo.Load(t.Context(), token.ID)
	require.NoError(t, err)
	assert.Equal(t, token, got)

	ttl, err := client.Do(t.Context(), client.B().Pttl().Key(prefix+":accesstoken:"+token.ID).Build()).AsInt64()
	require.NoError(t, err)
	assert.Positive(t, ttl)
	assert.LessOrEqual(t, ttl, time.Hour.Milliseconds())
}

func TestRepository_SaveExpired(t *testing.T) {
	repo := accesstokenvalkey.NewRepository(client, prefix)

	err := repo.Save(t.Context(), newToken("jti-expired", -time.Minute))
	assert.ErrorIs(t, err, accesstokenvalkey.ErrTokenExpired)

	_, err = repo.Load(t.Context(), "jti-expired")
	assert.ErrorIs(t, err, serviceerr.ErrNotFound)
}

func TestRepository_LoadUnknown(t *testing.T) {
	repo := accesstokenvalkey.NewRepository(client, prefix)

	_, err := repo.Load(t.Context(), "does-not-exist")
	assert.ErrorIs(t, err, serviceerr.ErrNotFound)
	assert.ErrorIs(t, err, accesstokenvalkey.ErrGetAccessToken)
}

func TestRepository_Revoke(t *testing.T) {
	repo := accesstokenvalkey.NewRepository(client, prefix)
	token := newToken("jti-revoke", time.Hour)
	require.NoError(t, repo.Save(t.Context(), token))

	t.Run("marks the token as revoked", func(t *testing.T) {
		require.NoError(t, repo.Revoke(t.Context(), token.ID))

		got, err := repo.Load(t.Context(), token.ID)
		require.NoError(t, err)
		assert.True(t, got.Revoked)
		assert.Equal(t, token.Subject, got.Subject)
	})

	t.Run("keeps the expiry", func(t *testing.T) {
		ttl, err := client.Do(t.Context(), client.B().Pttl().Key(prefix+":accesstoken:"+token.ID).Build()).AsInt64()
		require.NoError(t, err)
		assert.Positive(t, ttl)
	})

	t.Run("is idempotent", func(t *testing.T) {
		assert.NoError(t, repo.Revoke(t.Context(), token.ID))
	})

	t.Run("unknown token", func(t *testing.T) {
		err := repo.Revoke(t.Context(), "does-not-exist")
		assert.ErrorIs(t, err, serviceerr.ErrNotFound)
	})
}

func TestRepository_PrefixTrailingColon(t *testing.T) {
	repo := accesstokenvalkey.NewRepository(client, "colon:")
	token := newToken("jti-colon", time.Hour)
	require.NoError(t, repo.Save(t.Context(), token))

	exists, err := client.Do(t.Context(), client.B().Exists().Key("colon:accesstoken:"+token.ID).Build()).AsInt64()
	require.NoError(t, err)
	assert.Equal(t, int64(1), exists)
}
