package keyenvelope

import (
	"crypto/sha256"
	"encoding/hex"
)

// Handle identifies a threshold-derived key without ever carrying the raw
// key material. The coordinator stores and passes handles; only the
// external KDF ever materializes the key itself.
type Handle string

// deriveHandleID builds a stable, non-reversible handle string from the
// (principal, purpose, domain separator) tuple the KDF derives against.
// The handle itself is opaque to every caller except this service.
func deriveHandleID(principal, purpose string) Handle {
	h := sha256.New()
	h.Write([]byte("mpccoordinator/keyenvelope/v1"))
	h.Write([]byte{0})
	h.Write([]byte(principal))
	h.Write([]byte{0})
	h.Write([]byte(purpose))
	return Handle(hex.EncodeToString(h.Sum(nil)))
}

// envelope binds a handle to the principal and purpose it was derived for,
// and the public material returned by the KDF.
type envelope struct {
	Handle    Handle
	Principal string
	Purpose   string
	PublicKey []byte
}
