package persistence

import (
	"gorm.io/gorm"

	"mpccoordinator/core/keyenvelope"
)

// HandleRepo implements keyenvelope.Store against the handles table.
type HandleRepo struct {
	db *gorm.DB
}

// NewHandleRepo wraps db as a keyenvelope.Store.
func NewHandleRepo(db *gorm.DB) *HandleRepo {
	return &HandleRepo{db: db}
}

// SaveHandle upserts the public half of a derived envelope.
func (r *HandleRepo) SaveHandle(handle string, rec keyenvelope.HandleRecord) error {
	m := handleModel{
		Handle:    handle,
		Principal: rec.Principal,
		Purpose:   rec.Purpose,
		PublicKey: rec.PublicKey,
	}
	return r.db.Save(&m).Error
}

// LoadHandles returns every persisted handle record, keyed by handle.
func (r *HandleRepo) LoadHandles() (map[string]keyenvelope.HandleRecord, error) {
	var rows []handleModel
	if err := r.db.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]keyenvelope.HandleRecord, len(rows))
	for _, row := range rows {
		out[row.Handle] = keyenvelope.HandleRecord{
			Principal: row.Principal,
			Purpose:   row.Purpose,
			PublicKey: row.PublicKey,
		}
	}
	return out, nil
}
