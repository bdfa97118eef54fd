// Package keys provides core.KeysClient implementations.
//
// Local derives every key from a single root seed with HKDF-SHA256, so the
// same derivation path always yields the same key. It stands in for a remote
// identity service in development and single-node deployments.
package keys

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/hupe1980/agentcore/core"
)

const (
	secretLabel  = "agentcore/secret"
	ed25519Label = "agentcore/ed25519"
)

// Local derives keys from a root seed.
type Local struct {
	seed []byte
}

// NewLocal returns a key client backed by seed. The seed must be at least 32
// bytes long.
func NewLocal(seed []byte) (*Local, error) {
	if len(seed) < 32 {
		return nil, errors.New("keys: seed must be at least 32 bytes")
	}
	return &Local{seed: append([]byte(nil), seed...)}, nil
}

// SecretKey derives a 32 byte secret for derivationPath.
func (l *Local) SecretKey(ctx context.Context, derivationPath [][]byte) ([32]byte, error) {
	var out [32]byte
	if err := ctx.Err(); err != nil {
		return out, err
	}

	if err := l.derive(secretLabel, derivationPath, out[:]); err != nil {
		return out, err
	}

	return out, nil
}

// SignEd25519 signs message with the Ed25519 key for derivationPath.
func (l *Local) SignEd25519(ctx context.Context, derivationPath [][]byte, message []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	priv, err := l.ed25519Key(derivationPath)
	if err != nil {
		return nil, err
	}

	return ed25519.Sign(priv, message), nil
}

// PublicKeyEd25519 returns the Ed25519 public key for derivationPath.
func (l *Local) PublicKeyEd25519(ctx context.Context, derivationPath [][]byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	priv, err := l.ed25519Key(derivationPath)
	if err != nil {
		return nil, err
	}

	return priv.Public().(ed25519.PublicKey), nil
}

func (l *Local) ed25519Key(derivationPath [][]byte) (ed25519.PrivateKey, error) {
	seed := make([]byte, ed25519.SeedSize)
	if err := l.derive(ed25519Label, derivationPath, seed); err != nil {
		return nil, err
	}
	return ed25519.NewKeyFromSeed(seed), nil
}

func (l *Local) derive(label string, derivationPath [][]byte, out []byte) error {
	r := hkdf.New(sha256.New, l.seed, []byte(label), encodePath(derivationPath))
	if _, err := io.ReadFull(r, out); err != nil {
		return fmt.Errorf("keys: derive: %w", err)
	}
	return nil
}

// encodePath length-prefixes every segment so that distinct paths never
// encode to the same bytes.
func encodePath(derivationPath [][]byte) []byte {
	var buf []byte
	for _, seg := range derivationPath {
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(seg)))
		buf = append(buf, seg...)
	}
	return buf
}

// NotImplemented fails every operation with core.ErrNotImplemented. It is the
// builder default when no key service is configured.
type NotImplemented struct{}

// SecretKey fails with core.ErrNotImplemented.
func (NotImplemented) SecretKey(context.Context, [][]byte) ([32]byte, error) {
	return [32]byte{}, fmt.Errorf("%w: keys client", core.ErrNotImplemented)
}

// SignEd25519 fails with core.ErrNotImplemented.
func (NotImplemented) SignEd25519(context.Context, [][]byte, []byte) ([]byte, error) {
	return nil, fmt.Errorf("%w: keys client", core.ErrNotImplemented)
}

// PublicKeyEd25519 fails with core.ErrNotImplemented.
func (NotImplemented) PublicKeyEd25519(context.Context, [][]byte) ([]byte, error) {
	return nil, fmt.Errorf("%w: keys client", core.ErrNotImplemented)
}

var (
	_ core.KeysClient = (*Local)(nil)
	_ core.KeysClient = NotImplemented{}
)
