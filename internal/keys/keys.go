// Package keys loads the RSA key pair the provider signs tokens with and
// publishes its public half as a JWK set.
package keys

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"os"

	"github.com/go-jose/go-jose/v4"
)

const (
	// Algorithm is the only signing algorithm the provider supports.
	Algorithm = jose.RS256

	// UseSignature is the "use" member of the published JWK.
	UseSignature = "sig"

	MinRSABits = 2048
)

var ErrKeyLoad = errors.New("loading signing key")

// SigningKeyPair is immutable once created and safe for concurrent use.
type SigningKeyPair struct {
	private *rsa.PrivateKey
	keyID   string
}

// LoadSigningKey reads a PEM encoded RSA private key in PKCS1 or PKCS8 form.
// Every failure wraps ErrKeyLoad.
func LoadSigningKey(path string) (*SigningKeyPair, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path comes from configuration
	if err != nil {
		return nil, errors.Join(ErrKeyLoad, fmt.Errorf("reading key file: %w", err))
	}

	priv, err := ParsePrivateKeyPEM(data)
	if err != nil {
		return nil, errors.Join(ErrKeyLoad, err)
	}

	pair, err := NewSigningKeyPair(priv)
	if err != nil {
		return nil, errors.Join(ErrKeyLoad, err)
	}

	return pair, nil
}

// ParsePrivateKeyPEM decodes the first PEM block of data into an RSA private key.
func ParsePrivateKeyPEM(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("no PEM block found")
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}

	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}

	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("unsupported key type %T, expected RSA", key)
	}

	return rsaKey, nil
}

func NewSigningKeyPair(priv *rsa.PrivateKey) (*SigningKeyPair, error) {
	if priv == nil {
		return nil, errors.New("private key is nil")
	}

	if err := priv.Validate(); err != nil {
		return nil, fmt.Errorf("validating private key: %w", err)
	}

	if bits := priv.N.BitLen(); bits < MinRSABits {
		return nil, fmt.Errorf("RSA key has %d bits, at least %d are required", bits, MinRSABits)
	}

	kid, err := Thumbprint(&priv.PublicKey)
	if err != nil {
		return nil, err
	}

	return &SigningKeyPair{
		private: priv,
		keyID:   kid,
	}, nil
}

// Thumbprint computes the RFC 7638 JWK thumbprint (SHA-256, base64url) of a
// public key. The result only depends on the key so it is stable across
// restarts.
func Thumbprint(pub crypto.PublicKey) (string, error) {
	sum, err := (&jose.JSONWebKey{Key: pub}).Thumbprint(crypto.SHA256)
	if err != nil {
		return "", fmt.Errorf("computing key thumbprint: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(sum), nil
}

func (p *SigningKeyPair) KeyID() string {
	return p.keyID
}

func (p *SigningKeyPair) Algorithm() jose.SignatureAlgorithm {
	return Algorithm
}

func (p *SigningKeyPair) PublicKey() *rsa.PublicKey {
	return &p.private.PublicKey
}

// PublicJWK returns the public key with kty, use, alg and kid populated.
func (p *SigningKeyPair) PublicJWK() jose.JSONWebKey {
	return jose.JSONWebKey{
		Key:       p.PublicKey(),
		KeyID:     p.keyID,
		Algorithm: string(Algorithm),
		Use:       UseSignature,
	}
}

func (p *SigningKeyPair) JWKS() jose.JSONWebKeySet {
	return jose.JSONWebKeySet{
		Keys: []jose.JSONWebKey{p.PublicJWK()},
	}
}

// NewSigner returns a JWS signer that stamps kid and typ into every header.
func (p *SigningKeyPair) NewSigner(typ jose.ContentType) (jose.Signer, error) {
	signingKey := jose.SigningKey{
		Algorithm: Algorithm,
		Key: jose.JSONWebKey{
			Key:   p.private,
			KeyID: p.keyID,
		},
	}

	opts := (&jose.SignerOptions{}).WithType(typ)

	signer, err := jose.NewSigner(signingKey, opts)
	if err != nil {
		return nil, fmt.Errorf("creating signer: %w", err)
	}

	return signer, nil
}

// Generate creates a fresh RSA key of the given size.
func Generate(bits int) (*rsa.PrivateKey, error) {
	if bits < MinRSABits {
		return nil, fmt.Errorf("key size %d is below the minimum of %d", bits, MinRSABits)
	}

	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("generating RSA key: %w", err)
	}

	return key, nil
}

// EncodePEM encodes the key as a PKCS1 "RSA PRIVATE KEY" block.
func EncodePEM(priv *rsa.PrivateKey) []byte {
	return pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(priv),
	})
}
