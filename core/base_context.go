package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/hupe1980/agentcore/logging"
)

// BaseOptions carries the shared infrastructure handles of a context tree.
type BaseOptions struct {
	// User is the user label of the root context.
	User   string
	Keys   KeysClient
	Store  ObjectStore
	Logger logging.Logger
}

// BaseCtx is the execution context handed to tools. It binds an invocation to
// a capability path, a caller identity and a cancellation signal. Contexts form
// a tree: cancelling a context cancels all contexts derived from it, never its
// parent or siblings.
type BaseCtx struct {
	engineID Principal
	caller   Principal
	user     string
	path     Path
	paths    PathSet
	id       uuid.UUID

	ctx    context.Context
	cancel context.CancelFunc

	keys   KeysClient
	store  ObjectStore
	logger logging.Logger

	*loggerAdapter
}

// NewBaseCtx returns the root context of an engine. The root sits at RootPath
// and acts as the engine identity.
func NewBaseCtx(parent context.Context, id Principal, paths PathSet, optFns ...func(o *BaseOptions)) *BaseCtx {
	opts := BaseOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}

	if parent == nil {
		parent = context.Background()
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	ctx, cancel := context.WithCancel(parent)

	return newBaseCtx(baseFields{
		engineID: id,
		caller:   id,
		user:     opts.User,
		path:     RootPath,
		paths:    paths,
		ctx:      ctx,
		cancel:   cancel,
		keys:     opts.Keys,
		store:    opts.Store,
		logger:   opts.Logger,
	})
}

type baseFields struct {
	engineID, caller Principal
	user             string
	path             Path
	paths            PathSet
	ctx              context.Context
	cancel           context.CancelFunc
	keys             KeysClient
	store            ObjectStore
	logger           logging.Logger
}

func newBaseCtx(f baseFields) *BaseCtx {
	id := uuid.New()
	return &BaseCtx{
		engineID: f.engineID,
		caller:   f.caller,
		user:     f.user,
		path:     f.path,
		paths:    f.paths,
		id:       id,
		ctx:      f.ctx,
		cancel:   f.cancel,
		keys:     f.keys,
		store:    f.store,
		logger:   f.logger,
		loggerAdapter: newLoggerAdapter(f.logger,
			"path", f.path.String(),
			"caller", f.caller.String(),
			"invocation_id", id.String(),
		),
	}
}

// ChildWith derives a context at path for caller and user. The path must be
// a member of the engine's PathSet; a non-empty user must be a valid path
// segment. The child's signal is a child of this context's signal.
func (b *BaseCtx) ChildWith(path Path, caller Principal, user string) (*BaseCtx, error) {
	if !b.paths.Contains(path) {
		return nil, fmt.Errorf("%w: %q", ErrNameNotAllowed, path)
	}

	if user != "" {
		if err := ValidatePathPart(user); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidUser, err)
		}
	}

	ctx, cancel := context.WithCancel(b.ctx)

	return newBaseCtx(baseFields{
		engineID: b.engineID,
		caller:   caller,
		user:     user,
		path:     path,
		paths:    b.paths,
		ctx:      ctx,
		cancel:   cancel,
		keys:     b.keys,
		store:    b.store,
		logger:   b.logger,
	}), nil
}

// Context returns the cancellation context of this invocation.
func (b *BaseCtx) Context() context.Context { return b.ctx }

// Done returns a channel closed when the context is cancelled.
func (b *BaseCtx) Done() <-chan struct{} { return b.ctx.Done() }

// Err returns nil while the context is live and an error wrapping
// ErrCancelled afterwards.
func (b *BaseCtx) Err() error {
	if err := b.ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrCancelled, err)
	}
	return nil
}

// Cancel cancels this context and every context derived from it.
func (b *BaseCtx) Cancel() { b.cancel() }

// EngineID returns the identity of the engine that owns the context tree.
func (b *BaseCtx) EngineID() Principal { return b.engineID }

// Caller returns the identity the context acts for.
func (b *BaseCtx) Caller() Principal { return b.caller }

// User returns the user label, empty if none was given.
func (b *BaseCtx) User() string { return b.user }

// Path returns the capability path of the context.
func (b *BaseCtx) Path() Path { return b.path }

// ID returns the invocation id.
func (b *BaseCtx) ID() uuid.UUID { return b.id }

// Paths returns the engine's path set.
func (b *BaseCtx) Paths() PathSet { return b.paths }

// StoreGet reads an object stored under this context's path.
func (b *BaseCtx) StoreGet(location string) ([]byte, ObjectMeta, error) {
	full, err := b.storePath(location)
	if err != nil {
		return nil, ObjectMeta{}, err
	}

	data, meta, err := b.store.Get(b.ctx, full)
	if err != nil {
		return nil, ObjectMeta{}, err
	}

	return data, b.localMeta(meta), nil
}

// StorePut writes an object under this context's path.
func (b *BaseCtx) StorePut(location string, data []byte) (ObjectMeta, error) {
	full, err := b.storePath(location)
	if err != nil {
		return ObjectMeta{}, err
	}

	meta, err := b.store.Put(b.ctx, full, data)
	if err != nil {
		return ObjectMeta{}, err
	}

	return b.localMeta(meta), nil
}

// StoreDelete removes an object stored under this context's path.
func (b *BaseCtx) StoreDelete(location string) error {
	full, err := b.storePath(location)
	if err != nil {
		return err
	}
	return b.store.Delete(b.ctx, full)
}

// StoreList lists objects under prefix within this context's path. An empty
// prefix lists everything the context owns.
func (b *BaseCtx) StoreList(prefix string) ([]ObjectMeta, error) {
	if b.store == nil {
		return nil, fmt.Errorf("%w: object store", ErrNotImplemented)
	}

	full := b.path
	if prefix != "" {
		p, err := ParsePath(prefix)
		if err != nil {
			return nil, err
		}
		full = JoinPath(b.path, p)
	}

	metas, err := b.store.List(b.ctx, full)
	if err != nil {
		return nil, err
	}

	for i := range metas {
		metas[i] = b.localMeta(metas[i])
	}

	return metas, nil
}

func (b *BaseCtx) storePath(location string) (Path, error) {
	if b.store == nil {
		return "", fmt.Errorf("%w: object store", ErrNotImplemented)
	}

	p, err := ParsePath(location)
	if err != nil {
		return "", err
	}

	return JoinPath(b.path, p), nil
}

func (b *BaseCtx) localMeta(m ObjectMeta) ObjectMeta {
	m.Location = Path(strings.TrimPrefix(m.Location.String(), b.path.String()+PathDelimiter))
	return m
}

// SecretKey derives a 32 byte secret bound to this context's path.
func (b *BaseCtx) SecretKey(derivationPath [][]byte) ([32]byte, error) {
	if b.keys == nil {
		return [32]byte{}, fmt.Errorf("%w: keys client", ErrNotImplemented)
	}
	return b.keys.SecretKey(b.ctx, b.keyPath(derivationPath))
}

// SignEd25519 signs message with the Ed25519 key bound to this context's path.
func (b *BaseCtx) SignEd25519(derivationPath [][]byte, message []byte) ([]byte, error) {
	if b.keys == nil {
		return nil, fmt.Errorf("%w: keys client", ErrNotImplemented)
	}
	return b.keys.SignEd25519(b.ctx, b.keyPath(derivationPath), message)
}

// PublicKeyEd25519 returns the Ed25519 public key bound to this context's path.
func (b *BaseCtx) PublicKeyEd25519(derivationPath [][]byte) ([]byte, error) {
	if b.keys == nil {
		return nil, fmt.Errorf("%w: keys client", ErrNotImplemented)
	}
	return b.keys.PublicKeyEd25519(b.ctx, b.keyPath(derivationPath))
}

func (b *BaseCtx) keyPath(derivationPath [][]byte) [][]byte {
	out := make([][]byte, 0, len(derivationPath)+1)
	out = append(out, []byte(b.path))
	return append(out, derivationPath...)
}
