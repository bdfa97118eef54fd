package core

import (
	"encoding/base32"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"strings"
)

const maxPrincipalBytes = 29

var principalEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

var (
	// AnonymousPrincipal is the identity used when a caller cannot be determined.
	AnonymousPrincipal = PrincipalFromBytes([]byte{0x04})

	// ManagementPrincipal is the empty principal. It is used as a system identity.
	ManagementPrincipal = PrincipalFromBytes(nil)
)

// Principal identifies who is making a call. It is kept in its canonical
// textual form: base32 of a CRC32 checksum followed by the raw bytes, lower
// cased and grouped in blocks of five characters.
type Principal string

// PrincipalFromBytes encodes raw principal bytes.
func PrincipalFromBytes(b []byte) Principal {
	buf := make([]byte, 4+len(b))
	binary.BigEndian.PutUint32(buf, crc32.ChecksumIEEE(b))
	copy(buf[4:], b)

	enc := strings.ToLower(principalEncoding.EncodeToString(buf))

	var sb strings.Builder
	for i := 0; i < len(enc); i += 5 {
		if i > 0 {
			sb.WriteByte('-')
		}
		sb.WriteString(enc[i:min(i+5, len(enc))])
	}

	return Principal(sb.String())
}

// ParsePrincipal parses the textual form of a principal and verifies its
// checksum.
func ParsePrincipal(text string) (Principal, error) {
	if text == "" {
		return "", errors.New("empty principal")
	}

	raw, err := principalEncoding.DecodeString(strings.ToUpper(strings.ReplaceAll(text, "-", "")))
	if err != nil {
		return "", fmt.Errorf("invalid principal %q: %w", text, err)
	}

	if len(raw) < 4 || len(raw)-4 > maxPrincipalBytes {
		return "", fmt.Errorf("invalid principal %q: bad length", text)
	}

	p := PrincipalFromBytes(raw[4:])
	if string(p) != text {
		return "", fmt.Errorf("invalid principal %q: checksum or format mismatch", text)
	}

	return p, nil
}

// Bytes returns the raw principal bytes. It returns nil for malformed values.
func (p Principal) Bytes() []byte {
	raw, err := principalEncoding.DecodeString(strings.ToUpper(strings.ReplaceAll(string(p), "-", "")))
	if err != nil || len(raw) < 4 {
		return nil
	}
	return raw[4:]
}

// String returns the textual form.
func (p Principal) String() string { return string(p) }

// IsAnonymous reports whether p is the anonymous principal.
func (p Principal) IsAnonymous() bool { return p == AnonymousPrincipal }
