//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unixSocketClient(socketPath string) *http.Client {
	return &http.Client{
		Timeout: 5 * time.Second,
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				return new(net.Dialer).DialContext(ctx, "unix", socketPath)
			},
		},
	}
}

func TestOpenIDProvider(t *testing.T) {
	const cmdName = "api-server"

	ctx := t.Context()

	istat := initInfra(t, cmdName)
	defer istat.Close(ctx)

	istat.PreparePostgres(t)
	istat.PrepareValKey(t)
	istat.PrepareSigningKey(t)
	istat.PrepareConfig(t)

	currdir, err := os.Getwd()
	require.NoError(t, err, "failed to get wd")

	t.Chdir(istat.Procdir)

	cmd := exec.CommandContext(ctx, filepath.Join(currdir, binary), cmdName)

	cmdOutPath := filepath.Join(currdir, cmdName+".log")
	cmdOut, err := os.Create(cmdOutPath)
	require.NoError(t, err, "failed to create an log file")
	defer cmdOut.Close()

	cmd.Stdout = cmdOut
	cmd.Stderr = cmdOut
	t.Logf("starting an app process. Logs will be saved into %s", cmdOutPath)
	require.NoError(t, cmd.Start(), "could not start command")

	// defer the graceful stop of the service so that coverprofiles are written
	defer func() {
		_ = syscall.Kill(cmd.Process.Pid, syscall.SIGTERM)
		_ = cmd.Wait()
	}()

	client := unixSocketClient(istat.SocketPath)

	require.Eventually(t, func() bool {
		resp, err := client.Get("http://idp.example.com/oauth2/certs")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 10*time.Second, 100*time.Millisecond, "server did not come up")

	t.Run("discovery", func(t *testing.T) {
		resp, err := client.Get("http://idp.example.com/.well-known/openid-configuration")
		require.NoError(t, err)
		defer resp.Body.Close()

		require.Equal(t, http.StatusOK, resp.StatusCode)

		var doc map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&doc))
		assert.Equal(t, "http://idp.example.com", doc["issuer"])
		assert.Equal(t, "http://idp.example.com/token", doc["token_endpoint"])
		assert.Equal(t, "http://idp.example.com/oauth2/certs", doc["jwks_uri"])
	})

	t.Run("certs", func(t *testing.T) {
		resp, err := client.Get("http://idp.example.com/oauth2/certs")
		require.NoError(t, err)
		defer resp.Body.Close()

		require.Equal(t, http.StatusOK, resp.StatusCode)

		var jwks struct {
			Keys []map[string]any `json:"keys"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&jwks))
		require.Len(t, jwks.Keys, 1)
		assert.Equal(t, "RS256", jwks.Keys[0]["alg"])
	})

	t.Run("userinfo rejects an invalid token", func(t *testing.T) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://idp.example.com/oauth2/userinfo", nil)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer garbage")

		resp, err := client.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("revoke ignores an invalid token", func(t *testing.T) {
		form := url.Values{"token": {"garbage"}}
		resp, err := client.Post("http://idp.example.com/oauth2/revoke",
			"application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}
