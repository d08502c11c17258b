package persistence

import (
	"encoding/hex"
	"strings"

	"gorm.io/gorm"

	"mpccoordinator/core/proof"
)

// ProofRepo implements proof.Store against the proofs table.
type ProofRepo struct {
	db *gorm.DB
}

// NewProofRepo wraps db as a proof.Store.
func NewProofRepo(db *gorm.DB) *ProofRepo {
	return &ProofRepo{db: db}
}

// SaveProof inserts a proof record. Positions are assigned by the Log and
// never reused, so this is always an insert.
func (r *ProofRepo) SaveProof(rec *proof.Record) error {
	m := proofModel{
		Position:           rec.Position,
		RequestID:          rec.RequestID,
		Requester:          rec.Requester,
		DatasetIDs:         strings.Join(rec.DatasetIDs, ","),
		OracleResponseHash: hex.EncodeToString(rec.OracleResponseHash[:]),
		PriorHash:          hex.EncodeToString(rec.PriorHash[:]),
		GuaranteeLabels:    strings.Join(rec.GuaranteeLabels, ","),
		Timestamp:          rec.Timestamp,
	}
	return r.db.Create(&m).Error
}

// LoadProofs returns every persisted proof record, ordered by position.
func (r *ProofRepo) LoadProofs() ([]*proof.Record, error) {
	var rows []proofModel
	if err := r.db.Order("position asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*proof.Record, 0, len(rows))
	for _, row := range rows {
		oracleHash, err := decodeHash32(row.OracleResponseHash)
		if err != nil {
			return nil, err
		}
		priorHash, err := decodeHash32(row.PriorHash)
		if err != nil {
			return nil, err
		}
		out = append(out, &proof.Record{
			RequestID:          row.RequestID,
			Requester:          row.Requester,
			DatasetIDs:         splitCSV(row.DatasetIDs),
			Position:           row.Position,
			OracleResponseHash: oracleHash,
			GuaranteeLabels:    splitCSV(row.GuaranteeLabels),
			PriorHash:          priorHash,
			Timestamp:          row.Timestamp,
		})
	}
	return out, nil
}

func decodeHash32(s string) ([32]byte, error) {
	var out [32]byte
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return out, err
	}
	copy(out[:], decoded)
	return out, nil
}
