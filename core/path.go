package core

import (
	"fmt"
	"slices"
	"strings"
	"unicode"
)

// PathDelimiter separates segments of a Path.
const PathDelimiter = "/"

// RootPath is the distinguished root of the namespace. Every engine allow-list
// contains it.
const RootPath Path = "_"

const (
	toolTag  = "T:"
	agentTag = "A:"
)

// invalidPathChars lists characters that are never accepted inside a segment.
// Control characters are rejected separately.
const invalidPathChars = `/\{}^%` + "`" + `[]"<>~#|*?`

// Path is a hierarchical namespace identifier. It doubles as a capability
// token: a context may only be derived for a Path present in the engine's
// allow-list. Paths compare as plain strings.
type Path string

// String returns the textual form of the path.
func (p Path) String() string { return string(p) }

// Segments splits the path on the delimiter.
func (p Path) Segments() []string {
	if p == "" {
		return nil
	}
	return strings.Split(string(p), PathDelimiter)
}

// Child returns p joined with a single segment.
func (p Path) Child(segment string) Path {
	return JoinPath(p, Path(segment))
}

// ValidatePathPart reports whether segment can be used as one element of a
// Path. Empty segments, dot segments, the delimiter and characters reserved by
// object stores are rejected with ErrInvalidPath.
func ValidatePathPart(segment string) error {
	switch segment {
	case "":
		return fmt.Errorf("%w: empty segment", ErrInvalidPath)
	case ".", "..":
		return fmt.Errorf("%w: relative segment %q", ErrInvalidPath, segment)
	}

	for _, r := range segment {
		if unicode.IsControl(r) || strings.ContainsRune(invalidPathChars, r) {
			return fmt.Errorf("%w: segment %q contains %q", ErrInvalidPath, segment, r)
		}
	}

	return nil
}

// ParsePath validates every segment of s and returns it as a Path.
func ParsePath(s string) (Path, error) {
	for _, seg := range strings.Split(s, PathDelimiter) {
		if err := ValidatePathPart(seg); err != nil {
			return "", err
		}
	}
	return Path(s), nil
}

// JoinPath joins two paths with the delimiter. No normalisation is applied.
func JoinPath(a, b Path) Path {
	return Path(string(a) + PathDelimiter + string(b))
}

// ToolPath returns the allow-list entry of the tool with the given name.
func ToolPath(name string) Path { return Path(toolTag + name) }

// AgentPath returns the allow-list entry of the agent with the given name.
func AgentPath(name string) Path { return Path(agentTag + name) }

// UnitName returns the unit name carried by a tool or agent path and whether
// p was one.
func (p Path) UnitName() (string, bool) {
	if name, ok := strings.CutPrefix(string(p), toolTag); ok {
		return name, true
	}
	return strings.CutPrefix(string(p), agentTag)
}

// PathSet is an immutable, sorted set of paths. The zero value is empty.
type PathSet struct {
	paths []Path
}

// NewPathSet builds a set from the given paths, dropping duplicates.
func NewPathSet(paths ...Path) PathSet {
	ps := slices.Clone(paths)
	slices.Sort(ps)
	return PathSet{paths: slices.Compact(ps)}
}

// Contains reports whether p is a member of the set.
func (s PathSet) Contains(p Path) bool {
	_, ok := slices.BinarySearch(s.paths, p)
	return ok
}

// Len returns the number of paths.
func (s PathSet) Len() int { return len(s.paths) }

// All returns the members in ascending order. The slice is a copy.
func (s PathSet) All() []Path { return slices.Clone(s.paths) }
