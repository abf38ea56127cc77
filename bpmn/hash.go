package bpmn

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
)

// Hash256 is any 32-byte content hash. The engine treats hashes opaquely —
// only equality is ever tested — so any cryptographic digest of this width
// works; we use SHA-256 (per §9's "any 32-byte cryptographic hash").
type Hash256 [32]byte

// String renders the hash as lowercase hex, for use as a map/store key or
// an opaque payload reference (Job.PayloadRef).
func (h Hash256) String() string {
	return hex.EncodeToString(h[:])
}

// HashBytes hashes an arbitrary byte string with SHA-256. Used for both
// ProcessInstance.DomainPayloadHash and Program.BytecodeVersion so the two
// content-addressing schemes (payload, program) share one implementation.
func HashBytes(b []byte) Hash256 {
	return sha256.Sum256(b)
}

// hashUint64 writes v as 8 big-endian bytes into h, for composing
// multi-field hashes (program serialization)
// deterministically regardless of host endianness.
func hashUint64(h interface{ Write([]byte) (int, error) }, v uint64) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	h.Write(buf[:])
}
