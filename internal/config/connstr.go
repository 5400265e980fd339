package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"slices"

	"github.com/openkcm/common-sdk/pkg/commoncfg"
)

const defaultDBPort = "5432"

var ErrInvalidSSLMode = errors.New("invalid database sslMode")

var sslModes = []string{"disable", "allow", "prefer", "require", "verify-ca", "verify-full"}

// MakeConnStr builds the postgres URL of the subject store. Credentials are
// escaped so that they may contain any character.
func MakeConnStr(conf Database) (string, error) {
	host, err := commoncfg.LoadValueFromSourceRef(conf.Host)
	if err != nil {
		return "", fmt.Errorf("loading db host: %w", err)
	}

	user, err := commoncfg.LoadValueFromSourceRef(conf.User)
	if err != nil {
		return "", fmt.Errorf("loading db user: %w", err)
	}

	password, err := commoncfg.LoadValueFromSourceRef(conf.Password)
	if err != nil {
		return "", fmt.Errorf("loading db password: %w", err)
	}

	port := conf.Port
	if port == "" {
		port = defaultDBPort
	}

	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(string(user), string(password)),
		Host:   net.JoinHostPort(string(host), port),
		Path:   "/" + conf.Name,
	}

	if conf.SSLMode != "" {
		if !slices.Contains(sslModes, conf.SSLMode) {
			return "", fmt.Errorf("%w: %q", ErrInvalidSSLMode, conf.SSLMode)
		}
		u.RawQuery = url.Values{"sslmode": {conf.SSLMode}}.Encode()
	}

	return u.String(), nil
}
