package persistence

import (
	"strings"

	"gorm.io/gorm"

	"mpccoordinator/core/dataset"
)

// DatasetRepo implements dataset.Store against the datasets table.
type DatasetRepo struct {
	db *gorm.DB
}

// NewDatasetRepo wraps db as a dataset.Store.
func NewDatasetRepo(db *gorm.DB) *DatasetRepo {
	return &DatasetRepo{db: db}
}

// SaveDataset upserts a dataset record, including its ciphertext payload.
func (r *DatasetRepo) SaveDataset(d *dataset.Dataset) error {
	access := make([]string, 0, len(d.AccessList))
	for principal := range d.AccessList {
		access = append(access, principal)
	}
	m := datasetModel{
		ID:                d.ID,
		Owner:             d.Owner,
		OwnerDisplayName:  d.OwnerDisplayName,
		Name:              d.Name,
		Schema:            d.Schema,
		RecordCount:       d.RecordCount,
		EncryptedPayload:  d.EncryptedPayload,
		KeyEnvelopeHandle: d.KeyEnvelopeHandle,
		CreatedAt:         d.CreatedAt,
		AccessList:        strings.Join(access, ","),
	}
	return r.db.Save(&m).Error
}

// LoadDatasets returns every persisted dataset.
func (r *DatasetRepo) LoadDatasets() ([]*dataset.Dataset, error) {
	var rows []datasetModel
	if err := r.db.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*dataset.Dataset, 0, len(rows))
	for _, row := range rows {
		access := make(map[string]struct{})
		for _, principal := range splitCSV(row.AccessList) {
			access[principal] = struct{}{}
		}
		out = append(out, &dataset.Dataset{
			ID:                row.ID,
			Owner:             row.Owner,
			OwnerDisplayName:  row.OwnerDisplayName,
			Name:              row.Name,
			Schema:            row.Schema,
			RecordCount:       row.RecordCount,
			EncryptedPayload:  row.EncryptedPayload,
			KeyEnvelopeHandle: row.KeyEnvelopeHandle,
			CreatedAt:         row.CreatedAt,
			AccessList:        access,
		})
	}
	return out, nil
}

// splitCSV splits a comma-joined field back into its parts, treating an
// empty string as zero parts rather than a single empty element.
func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}
