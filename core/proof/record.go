package proof

import (
	"encoding/hex"
	"sort"
	"strings"
	"time"

	"lukechampine.com/blake3"
)

// genesisHash is the fixed prior-hash for the first proof record ever
// emitted (§4.7, §8: "except genesis").
var genesisHash = blake3.Sum256([]byte("mpccoordinator/proof/genesis/v1"))

// Record is the immutable audit artifact emitted on every successful
// execution (§3, §4.7). Never mutated once created.
type Record struct {
	RequestID          string
	Requester          string
	DatasetIDs         []string
	Position           uint64
	OracleResponseHash [32]byte
	GuaranteeLabels    []string
	PriorHash          [32]byte
	Timestamp          time.Time
}

// ContentHash deterministically hashes r's canonical encoding, forming the
// chain link consumed by the next record's PriorHash.
func (r *Record) ContentHash() [32]byte {
	h := blake3.New(32, nil)
	h.Write([]byte(r.RequestID))
	h.Write([]byte{0})
	h.Write([]byte(r.Requester))
	h.Write([]byte{0})

	datasetIDs := append([]string(nil), r.DatasetIDs...)
	sort.Strings(datasetIDs)
	h.Write([]byte(strings.Join(datasetIDs, ",")))
	h.Write([]byte{0})

	var posBytes [8]byte
	for i := 0; i < 8; i++ {
		posBytes[i] = byte(r.Position >> (8 * i))
	}
	h.Write(posBytes[:])
	h.Write(r.OracleResponseHash[:])
	h.Write(r.PriorHash[:])

	labels := append([]string(nil), r.GuaranteeLabels...)
	sort.Strings(labels)
	h.Write([]byte(strings.Join(labels, ",")))

	var sum [32]byte
	copy(sum[:], h.Sum(nil))
	return sum
}

// Handle is the opaque, hex-encoded content hash returned to callers as a
// proof handle.
func (r *Record) Handle() string {
	sum := r.ContentHash()
	return hex.EncodeToString(sum[:])
}
