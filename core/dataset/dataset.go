package dataset

import (
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"lukechampine.com/blake3"
)

const (
	// MaxPayloadBytes is the §6 dataset payload cap (8 MiB).
	MaxPayloadBytes = 8 * 1024 * 1024
	// MaxSchemaBytes bounds the schema descriptor string.
	MaxSchemaBytes = 4 * 1024
)

var (
	// ErrPayloadTooLarge is returned when ciphertext exceeds MaxPayloadBytes.
	ErrPayloadTooLarge = errors.New("dataset: payload exceeds size cap")
	// ErrNotOwner is returned when a non-owner attempts an owner-only operation.
	ErrNotOwner = errors.New("dataset: caller is not the owner")
	// ErrNotFound is returned when a dataset id has no record.
	ErrNotFound = errors.New("dataset: not found")
	// ErrUploadQuotaExceeded is returned when a principal has reached its
	// per-principal upload quota (§5: "uploads remain accepted up to the
	// per-principal quota"). Unlike the shared call budget, this is a
	// hard, non-retryable cap rather than a transient fail-fast.
	ErrUploadQuotaExceeded = errors.New("dataset: upload quota exceeded")
)

// Dataset is the custody record for an encrypted blob (§3, §4.3). The
// store never attempts decryption; EncryptedPayload is opaque bytes.
type Dataset struct {
	ID                string
	Owner             string
	OwnerDisplayName  string
	Name              string
	Schema            string
	RecordCount       uint32
	EncryptedPayload  []byte
	KeyEnvelopeHandle string
	CreatedAt         time.Time
	AccessList        map[string]struct{}
}

// Clone returns a defensive copy, including the access set and payload.
func (d *Dataset) Clone() *Dataset {
	if d == nil {
		return nil
	}
	clone := *d
	clone.EncryptedPayload = append([]byte(nil), d.EncryptedPayload...)
	clone.AccessList = make(map[string]struct{}, len(d.AccessList))
	for k := range d.AccessList {
		clone.AccessList[k] = struct{}{}
	}
	return &clone
}

// Visible reports whether principal may include this dataset in a
// computation: the owner, or anyone granted access.
func (d *Dataset) Visible(principal string) bool {
	if d.Owner == principal {
		return true
	}
	_, ok := d.AccessList[principal]
	return ok
}

// DeriveID computes the deterministic content-addressed dataset id over
// (owner, canonical content hash, name), per §3's determinism requirement:
// identical (owner, content, name) always yields the same id, so a
// duplicate upload is detected rather than creating a second record.
func DeriveID(owner string, ciphertext []byte, name string) string {
	contentHash := blake3.Sum256(ciphertext)
	h := blake3.New(32, nil)
	h.Write([]byte(owner))
	h.Write([]byte{0})
	h.Write(contentHash[:])
	h.Write([]byte{0})
	h.Write([]byte(name))
	sum := h.Sum(nil)
	return hex.EncodeToString(sum)
}

func validatePayload(ciphertext []byte) error {
	if len(ciphertext) > MaxPayloadBytes {
		return fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(ciphertext))
	}
	return nil
}
