// Package testutil contains fixtures shared by tests across packages: small
// tools and agents implemented directly against core interfaces, and a
// fluent builder for scripted model replies. Not intended for production use.
package testutil
