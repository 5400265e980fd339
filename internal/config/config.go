// Package config defines the necessary types to configure the application.
// An example config file config.yaml is provided in the repository.
package config

import (
	"time"

	"github.com/openkcm/common-sdk/pkg/commoncfg"
)

type Config struct {
	commoncfg.BaseConfig `mapstructure:",squash" yaml:",inline"`

	HTTP HTTPServer `yaml:"http"`
	GRPC GRPCServer `yaml:"grpc"`

	Database Database `yaml:"database"`
	ValKey   ValKey   `yaml:"valkey"`
	OpenID   OpenID   `yaml:"openid"`
}

type HTTPServer struct {
	Address         string        `yaml:"address" default:":8080"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" default:"5s"`
}

type GRPCServer struct {
	commoncfg.GRPCServer `mapstructure:",squash" yaml:",inline"`

	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" default:"5s"`
}

// Database holds the connection to the subject store. Port defaults to
// 5432; an empty SSLMode leaves the driver default in place.
type Database struct {
	Name     string              `yaml:"name"`
	Port     string              `yaml:"port"`
	SSLMode  string              `yaml:"sslMode"`
	Host     commoncfg.SourceRef `yaml:"host"`
	User     commoncfg.SourceRef `yaml:"user"`
	Password commoncfg.SourceRef `yaml:"password"`
}

// ValKey holds the connection to the access token store.
type ValKey struct {
	Host      commoncfg.SourceRef `yaml:"host"`
	User      commoncfg.SourceRef `yaml:"user"`
	Password  commoncfg.SourceRef `yaml:"password"`
	Prefix    string              `yaml:"prefix" default:"openid"`
	SecretRef commoncfg.SecretRef `yaml:"secretRef"`
}

// OpenID configures the identity layer. When Enabled is false every
// OpenID Connect endpoint answers 404 and no key material is loaded.
type OpenID struct {
	Enabled        bool   `yaml:"enabled"`
	SigningKeyFile string `yaml:"signingKeyFile" default:"/keys/priv.pem"`

	// AllowedHosts restricts the hosts the issuer may be derived from.
	// An empty list accepts any host.
	AllowedHosts          []string `yaml:"allowedHosts"`
	TrustForwardedHeaders bool     `yaml:"trustForwardedHeaders"`

	Scopes                   []string            `yaml:"scopes"`
	GrantTypes               []string            `yaml:"grantTypes"`
	TokenEndpointAuthMethods []string            `yaml:"tokenEndpointAuthMethods"`
	Claims                   []string            `yaml:"claims"`
	ScopeClaims              map[string][]string `yaml:"scopeClaims"`

	// Routes overrides the path of a named route, e.g. to point the
	// authorize and token endpoints at the authorization server.
	Routes map[string]string `yaml:"routes"`

	ClockSkew       time.Duration `yaml:"clockSkew" default:"30s"`
	SubjectCacheTTL time.Duration `yaml:"subjectCacheTTL" default:"0s"`
	JWKSMaxAge      time.Duration `yaml:"jwksMaxAge" default:"1h"`
}
