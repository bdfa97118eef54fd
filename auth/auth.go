// Package auth provides Ed25519 (EdDSA) JWT issuing and verification for the
// control plane. Tokens name a principal as subject and carry the proposal
// methods it may invoke.
//
// Keys can be loaded from PEM files, derived from a core.KeysClient or
// auto-generated for development.
package auth

import (
	"bytes"
	"context"
	"crypto"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/hupe1980/agentcore/core"
	"github.com/hupe1980/agentcore/logging"
)

const (
	// DefaultIssuer is used for issuer and audience unless configured.
	DefaultIssuer = "agentcore"

	// AllMethods grants every control method.
	AllMethods = "*"
)

var (
	// ErrInvalidToken is returned for tokens that fail verification.
	ErrInvalidToken = errors.New("invalid token")

	// ErrNoSigningKey is returned by Issue on a verify-only manager.
	ErrNoSigningKey = errors.New("no signing key configured")
)

// Claims extends jwt.RegisteredClaims with the granted control methods.
type Claims struct {
	jwt.RegisteredClaims
	Methods []string `json:"methods,omitempty"`
}

// Principal returns the subject as a principal.
func (c *Claims) Principal() (core.Principal, error) {
	return core.ParsePrincipal(c.Subject)
}

// Allows reports whether the claims grant method.
func (c *Claims) Allows(method string) bool {
	return slices.Contains(c.Methods, AllMethods) || slices.Contains(c.Methods, method)
}

// Options configure a Manager.
type Options struct {
	// PrivateKeyPath and PublicKeyPath point to PKCS8 / PKIX PEM files.
	PrivateKeyPath string
	PublicKeyPath  string

	// Signer overrides PrivateKeyPath, for example a KeysSigner.
	Signer crypto.Signer

	Issuer     string
	Expiration time.Duration
	Logger     logging.Logger
}

// Manager issues and validates control plane tokens.
type Manager struct {
	signer     crypto.Signer
	publicKey  ed25519.PublicKey
	issuer     string
	expiration time.Duration
}

// NewManager creates a Manager. With a public key only, the manager can
// verify but not issue. Without any key material an ephemeral key pair is
// generated, which is only suitable for development.
func NewManager(optFns ...func(o *Options)) (*Manager, error) {
	opts := Options{
		Issuer:     DefaultIssuer,
		Expiration: time.Hour,
		Logger:     logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	m := &Manager{issuer: opts.Issuer, expiration: opts.Expiration}

	switch {
	case opts.Signer != nil:
		pub, ok := opts.Signer.Public().(ed25519.PublicKey)
		if !ok {
			return nil, errors.New("auth: signer is not Ed25519")
		}
		m.signer, m.publicKey = opts.Signer, pub
	case opts.PrivateKeyPath != "":
		priv, err := LoadPrivateKey(opts.PrivateKeyPath)
		if err != nil {
			return nil, err
		}
		m.signer, m.publicKey = priv, priv.Public().(ed25519.PublicKey)
	case opts.PublicKeyPath == "":
		opts.Logger.Warn("auth.keys.ephemeral", "reason", "no JWT key configured, generating ephemeral key pair (not for production)")
		pub, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("auth: generate key pair: %w", err)
		}
		m.signer, m.publicKey = priv, pub
	}

	if opts.PublicKeyPath != "" {
		pub, err := LoadPublicKey(opts.PublicKeyPath)
		if err != nil {
			return nil, err
		}

		// A mismatched pair means tokens we issue would never verify.
		if m.publicKey != nil && !bytes.Equal(m.publicKey, pub) {
			return nil, errors.New("auth: public key does not match private key")
		}
		m.publicKey = pub
	}

	return m, nil
}

// PublicKey returns the verification key.
func (m *Manager) PublicKey() ed25519.PublicKey { return m.publicKey }

// CanIssue reports whether the manager holds a signing key.
func (m *Manager) CanIssue() bool { return m.signer != nil }

// Issue creates a signed token for subject granting methods.
func (m *Manager) Issue(subject core.Principal, methods ...string) (string, time.Time, error) {
	if m.signer == nil {
		return "", time.Time{}, ErrNoSigningKey
	}

	now := time.Now().UTC()
	exp := now.Add(m.expiration)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject.String(),
			Issuer:    m.issuer,
			Audience:  jwt.ClaimStrings{m.issuer},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.New().String(),
		},
		Methods: methods,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(m.signer)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: sign token: %w", err)
	}

	return signed, exp, nil
}

// Verify parses and validates a token, returning its claims.
func (m *Manager) Verify(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&Claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodEd25519); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return m.publicKey, nil
		},
		jwt.WithAudience(m.issuer),
		jwt.WithIssuer(m.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%w: invalid claims", ErrInvalidToken)
	}

	if _, err := claims.Principal(); err != nil {
		return nil, fmt.Errorf("%w: invalid subject: %w", ErrInvalidToken, err)
	}

	return claims, nil
}

// LoadPrivateKey reads a PKCS8 PEM encoded Ed25519 private key.
func LoadPrivateKey(path string) (ed25519.PrivateKey, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from configuration
	if err != nil {
		return nil, fmt.Errorf("auth: read private key: %w", err)
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("auth: decode private key PEM")
	}

	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("auth: parse private key: %w", err)
	}

	priv, ok := key.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("auth: private key is not Ed25519")
	}

	return priv, nil
}

// LoadPublicKey reads a PKIX PEM encoded Ed25519 public key.
func LoadPublicKey(path string) (ed25519.PublicKey, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from configuration
	if err != nil {
		return nil, fmt.Errorf("auth: read public key: %w", err)
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("auth: decode public key PEM")
	}

	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("auth: parse public key: %w", err)
	}

	pub, ok := key.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("auth: public key is not Ed25519")
	}

	return pub, nil
}

// EncodeKeyPair returns the PEM encodings of an Ed25519 key pair in the
// formats LoadPrivateKey and LoadPublicKey accept.
func EncodeKeyPair(priv ed25519.PrivateKey) (privPEM, pubPEM []byte, err error) {
	privDER, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, nil, fmt.Errorf("auth: marshal private key: %w", err)
	}

	pubDER, err := x509.MarshalPKIXPublicKey(priv.Public())
	if err != nil {
		return nil, nil, fmt.Errorf("auth: marshal public key: %w", err)
	}

	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER}),
		pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER}),
		nil
}

// KeysSigner is a crypto.Signer whose Ed25519 key lives behind a
// core.KeysClient, so control tokens can be signed without the private key
// ever leaving the key service.
type KeysSigner struct {
	client core.KeysClient
	path   [][]byte
	pub    ed25519.PublicKey
}

// NewKeysSigner resolves the public key for derivationPath.
func NewKeysSigner(ctx context.Context, client core.KeysClient, derivationPath [][]byte) (*KeysSigner, error) {
	pub, err := client.PublicKeyEd25519(ctx, derivationPath)
	if err != nil {
		return nil, fmt.Errorf("auth: resolve public key: %w", err)
	}

	if len(pub) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("auth: public key has %d bytes", len(pub))
	}

	return &KeysSigner{client: client, path: derivationPath, pub: ed25519.PublicKey(pub)}, nil
}

// Public implements crypto.Signer.
func (s *KeysSigner) Public() crypto.PublicKey { return s.pub }

// Sign implements crypto.Signer. Ed25519 signs the raw message, so opts must
// not request a pre-hash.
func (s *KeysSigner) Sign(_ io.Reader, message []byte, opts crypto.SignerOpts) ([]byte, error) {
	if opts != nil && opts.HashFunc() != crypto.Hash(0) {
		return nil, errors.New("auth: ed25519 does not sign pre-hashed messages")
	}
	return s.client.SignEd25519(context.Background(), s.path, message)
}

var _ crypto.Signer = (*KeysSigner)(nil)
