package persistence

import (
	"gorm.io/gorm"

	"mpccoordinator/core/identity"
)

// PartyRepo implements identity.Store against the parties table.
type PartyRepo struct {
	db *gorm.DB
}

// NewPartyRepo wraps db as an identity.Store.
func NewPartyRepo(db *gorm.DB) *PartyRepo {
	return &PartyRepo{db: db}
}

// SaveParty upserts a party record by principal.
func (r *PartyRepo) SaveParty(p *identity.Party) error {
	m := partyModel{
		Principal:         p.Principal,
		Name:              p.Name,
		Role:              p.Role,
		KeyEnvelopeHandle: p.KeyEnvelopeHandle,
		FirstSeen:         p.FirstSeen,
		LastSeen:          p.LastSeen,
		Active:            p.Active,
	}
	return r.db.Save(&m).Error
}

// LoadParties returns every persisted party record.
func (r *PartyRepo) LoadParties() ([]*identity.Party, error) {
	var rows []partyModel
	if err := r.db.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*identity.Party, 0, len(rows))
	for _, row := range rows {
		out = append(out, &identity.Party{
			Principal:         row.Principal,
			Name:              row.Name,
			Role:              row.Role,
			KeyEnvelopeHandle: row.KeyEnvelopeHandle,
			FirstSeen:         row.FirstSeen,
			LastSeen:          row.LastSeen,
			Active:            row.Active,
		})
	}
	return out, nil
}
