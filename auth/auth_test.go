package auth_test

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentcore/auth"
	"github.com/hupe1980/agentcore/core"
	"github.com/hupe1980/agentcore/keys"
)

var admin = core.PrincipalFromBytes([]byte("admin"))

func writeKeyPair(t *testing.T) (privPath, pubPath string, priv ed25519.PrivateKey) {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	privPEM, pubPEM, err := auth.EncodeKeyPair(priv)
	require.NoError(t, err)

	dir := t.TempDir()
	privPath = filepath.Join(dir, "priv.pem")
	pubPath = filepath.Join(dir, "pub.pem")
	require.NoError(t, os.WriteFile(privPath, privPEM, 0o600))
	require.NoError(t, os.WriteFile(pubPath, pubPEM, 0o600))

	return privPath, pubPath, priv
}

func TestIssueAndVerify(t *testing.T) {
	mgr, err := auth.NewManager()
	require.NoError(t, err)
	require.True(t, mgr.CanIssue())

	token, exp, err := mgr.Issue(admin, "start_scheduler")
	require.NoError(t, err)
	assert.True(t, exp.After(time.Now()))

	claims, err := mgr.Verify(token)
	require.NoError(t, err)

	p, err := claims.Principal()
	require.NoError(t, err)
	assert.Equal(t, admin, p)
	assert.True(t, claims.Allows("start_scheduler"))
	assert.False(t, claims.Allows("stop_scheduler"))
}

func TestAllMethods(t *testing.T) {
	mgr, err := auth.NewManager()
	require.NoError(t, err)

	token, _, err := mgr.Issue(admin, auth.AllMethods)
	require.NoError(t, err)

	claims, err := mgr.Verify(token)
	require.NoError(t, err)
	assert.True(t, claims.Allows("stop_anything"))
}

func TestVerifyRejects(t *testing.T) {
	mgr, err := auth.NewManager()
	require.NoError(t, err)

	other, err := auth.NewManager()
	require.NoError(t, err)

	t.Run("foreign key", func(t *testing.T) {
		token, _, err := other.Issue(admin)
		require.NoError(t, err)

		_, err = mgr.Verify(token)
		assert.ErrorIs(t, err, auth.ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		short, err := auth.NewManager(func(o *auth.Options) { o.Expiration = -time.Minute })
		require.NoError(t, err)

		token, _, err := short.Issue(admin)
		require.NoError(t, err)

		_, err = short.Verify(token)
		assert.ErrorIs(t, err, auth.ErrInvalidToken)
		assert.ErrorIs(t, err, jwt.ErrTokenExpired)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		_, priv, err := ed25519.GenerateKey(rand.Reader)
		require.NoError(t, err)

		a, err := auth.NewManager(func(o *auth.Options) { o.Signer = priv; o.Issuer = "a" })
		require.NoError(t, err)
		b, err := auth.NewManager(func(o *auth.Options) { o.Signer = priv; o.Issuer = "b" })
		require.NoError(t, err)

		token, _, err := a.Issue(admin)
		require.NoError(t, err)

		_, err = b.Verify(token)
		assert.ErrorIs(t, err, auth.ErrInvalidToken)
	})

	t.Run("bad subject", func(t *testing.T) {
		token, _, err := mgr.Issue(core.Principal("not-a-principal"))
		require.NoError(t, err)

		_, err = mgr.Verify(token)
		assert.ErrorIs(t, err, auth.ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := mgr.Verify("not.a.jwt")
		assert.ErrorIs(t, err, auth.ErrInvalidToken)
	})
}

func TestPEMFiles(t *testing.T) {
	privPath, pubPath, priv := writeKeyPair(t)

	issuer, err := auth.NewManager(func(o *auth.Options) {
		o.PrivateKeyPath = privPath
		o.PublicKeyPath = pubPath
	})
	require.NoError(t, err)
	assert.True(t, bytes.Equal(priv.Public().(ed25519.PublicKey), issuer.PublicKey()))

	verifier, err := auth.NewManager(func(o *auth.Options) { o.PublicKeyPath = pubPath })
	require.NoError(t, err)
	assert.False(t, verifier.CanIssue())

	_, _, err = verifier.Issue(admin)
	assert.ErrorIs(t, err, auth.ErrNoSigningKey)

	token, _, err := issuer.Issue(admin, "start_scheduler")
	require.NoError(t, err)

	_, err = verifier.Verify(token)
	require.NoError(t, err)
}

func TestPEMMismatch(t *testing.T) {
	privPath, _, _ := writeKeyPair(t)
	_, otherPub, _ := writeKeyPair(t)

	_, err := auth.NewManager(func(o *auth.Options) {
		o.PrivateKeyPath = privPath
		o.PublicKeyPath = otherPub
	})
	assert.ErrorContains(t, err, "does not match")
}

func TestLoadErrors(t *testing.T) {
	_, err := auth.LoadPrivateKey(filepath.Join(t.TempDir(), "missing.pem"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "junk.pem")
	require.NoError(t, os.WriteFile(path, []byte("junk"), 0o600))

	_, err = auth.LoadPublicKey(path)
	assert.ErrorContains(t, err, "decode public key PEM")
}

func TestKeysSigner(t *testing.T) {
	kc, err := keys.NewLocal(bytes.Repeat([]byte{7}, 32))
	require.NoError(t, err)

	path := [][]byte{[]byte("control")}

	signer, err := auth.NewKeysSigner(context.Background(), kc, path)
	require.NoError(t, err)

	mgr, err := auth.NewManager(func(o *auth.Options) { o.Signer = signer })
	require.NoError(t, err)

	token, _, err := mgr.Issue(admin, "stop_scheduler")
	require.NoError(t, err)

	claims, err := mgr.Verify(token)
	require.NoError(t, err)
	assert.True(t, claims.Allows("stop_scheduler"))

	_, err = auth.NewKeysSigner(context.Background(), keys.NotImplemented{}, path)
	assert.ErrorIs(t, err, core.ErrNotImplemented)
}
