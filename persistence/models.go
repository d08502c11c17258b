package persistence

import (
	"time"

	"gorm.io/gorm"
)

// partyModel is the gorm table backing core/identity.Store (§4.1).
type partyModel struct {
	Principal         string `gorm:"primaryKey;size:255"`
	Name              string `gorm:"size:128"`
	Role              string `gorm:"size:64"`
	KeyEnvelopeHandle string `gorm:"size:128;index"`
	FirstSeen         time.Time
	LastSeen          time.Time
	Active            bool
}

// handleModel is the gorm table backing core/keyenvelope.Store (§4.2). The
// derived key material itself is never stored here, only its public half.
type handleModel struct {
	Handle    string `gorm:"primaryKey;size:128"`
	Principal string `gorm:"size:255;index"`
	Purpose   string `gorm:"size:128"`
	PublicKey []byte
}

// datasetModel is the gorm table backing core/dataset.Store (§4.3).
type datasetModel struct {
	ID                string `gorm:"primaryKey;size:128"`
	Owner             string `gorm:"size:255;index"`
	OwnerDisplayName  string `gorm:"size:128"`
	Name              string `gorm:"size:255"`
	Schema            string `gorm:"type:text"`
	RecordCount       uint32
	EncryptedPayload  []byte `gorm:"type:blob"`
	KeyEnvelopeHandle string `gorm:"size:128"`
	CreatedAt         time.Time
	AccessList        string `gorm:"type:text"` // comma-joined principals
}

// requestModel is the gorm table backing core/request.Store (§4.4).
type requestModel struct {
	ID              string `gorm:"primaryKey;size:128"`
	Title           string `gorm:"size:128"`
	Description     string `gorm:"type:text"`
	Requester       string `gorm:"size:255;index"`
	RequiredVoters  string `gorm:"type:text"` // comma-joined principals
	State           string `gorm:"size:32;index"`
	CreatedAt       time.Time
	InputDatasetIDs string `gorm:"type:text"`
	Result          string `gorm:"type:text"`
	ProofHandle     string `gorm:"size:128"`
	FailureReason   string `gorm:"type:text"`
}

// voteModel is the gorm table backing core/vote.Store (§4.5).
type voteModel struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	RequestID string `gorm:"size:128;uniqueIndex:idx_request_voter"`
	Voter     string `gorm:"size:255;uniqueIndex:idx_request_voter"`
	Choice    string `gorm:"size:8"`
	Timestamp time.Time
}

// proofModel is the gorm table backing core/proof.Store (§4.7).
type proofModel struct {
	Position           uint64 `gorm:"primaryKey"`
	RequestID          string `gorm:"size:128;uniqueIndex"`
	Requester          string `gorm:"size:255;index"`
	DatasetIDs         string `gorm:"type:text"`
	OracleResponseHash string `gorm:"size:64"`
	PriorHash          string `gorm:"size:64"`
	GuaranteeLabels    string `gorm:"type:text"`
	Timestamp          time.Time
}

// AutoMigrate performs all schema migrations for the coordinator.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&partyModel{},
		&handleModel{},
		&datasetModel{},
		&requestModel{},
		&voteModel{},
		&proofModel{},
	)
}
