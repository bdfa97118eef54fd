// Package core provides the foundational types of agentcore: the capability
// path namespace, principals, the Tool and Agent unit interfaces, the
// registries binding names to units and the execution contexts handed to
// units at invocation time.
//
// Contexts form a tree rooted at the engine. Each context carries a path
// from the engine's PathSet, the caller it acts for, an optional user label and
// a cancellation signal built on context.Context. Deriving a context for a
// name outside the PathSet fails with ErrNameNotAllowed.
//
// Collaborators (models, object stores, key services) are consumed through the
// small Model, ObjectStore and KeysClient interfaces; concrete adapters live in
// the model, store and keys packages.
package core
