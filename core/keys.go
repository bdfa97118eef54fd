package core

import "context"

// KeysClient provides deterministic key material and signatures derived from
// an identity service. Derivation paths are opaque byte segments; contexts
// prepend their own path so units never share keys by accident.
type KeysClient interface {
	SecretKey(ctx context.Context, derivationPath [][]byte) ([32]byte, error)
	SignEd25519(ctx context.Context, derivationPath [][]byte, message []byte) ([]byte, error)
	PublicKeyEd25519(ctx context.Context, derivationPath [][]byte) ([]byte, error)
}
