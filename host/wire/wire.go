// Package wire encodes emitted host methods as CBOR archives and computes
// their content hashes.
package wire

import (
	"crypto/sha256"
	"fmt"
	"os"

	"github.com/chazu/pylower/host"
	"github.com/fxamacker/cbor/v2"
)

// FormatVersion is written into every archive.
const FormatVersion = 1

// cborEncMode uses canonical mode for deterministic encoding, so equal
// methods always hash equally.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("wire: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Archive is a set of methods emitted for one translation unit.
type Archive struct {
	Version int            `cbor:"1,keyasint"`
	Unit    string         `cbor:"2,keyasint"`
	Methods []*host.Method `cbor:"3,keyasint"`
}

// MarshalMethod serializes a Method to CBOR bytes.
func MarshalMethod(m *host.Method) ([]byte, error) {
	return cborEncMode.Marshal(m)
}

// UnmarshalMethod deserializes a Method from CBOR bytes.
func UnmarshalMethod(data []byte) (*host.Method, error) {
	var m host.Method
	if err := cbor.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("wire: unmarshal method: %w", err)
	}
	return &m, nil
}

// MarshalArchive serializes an Archive to CBOR bytes. A zero Version is
// written as FormatVersion; a is not modified.
func MarshalArchive(a *Archive) ([]byte, error) {
	out := *a
	if out.Version == 0 {
		out.Version = FormatVersion
	}
	return cborEncMode.Marshal(&out)
}

// UnmarshalArchive deserializes an Archive from CBOR bytes.
func UnmarshalArchive(data []byte) (*Archive, error) {
	var a Archive
	if err := cbor.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("wire: unmarshal archive: %w", err)
	}
	if a.Version != FormatVersion {
		return nil, fmt.Errorf("wire: unsupported archive version %d", a.Version)
	}
	return &a, nil
}

// Hash computes the SHA-256 content hash of a method's canonical encoding.
// MaxStack is left out: it is derived from the code and is zero until the
// method has been verified.
func Hash(m *host.Method) ([32]byte, error) {
	c := *m
	c.MaxStack = 0
	data, err := MarshalMethod(&c)
	if err != nil {
		return [32]byte{}, fmt.Errorf("wire: hash: %w", err)
	}
	return sha256.Sum256(data), nil
}

// WriteFile writes an archive to path.
func WriteFile(path string, a *Archive) error {
	data, err := MarshalArchive(a)
	if err != nil {
		return fmt.Errorf("wire: marshal archive: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("wire: cannot write %s: %w", path, err)
	}
	return nil
}

// ReadFile reads an archive from path.
func ReadFile(path string) (*Archive, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("wire: cannot read %s: %w", path, err)
	}
	return UnmarshalArchive(data)
}
