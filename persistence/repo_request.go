package persistence

import (
	"strings"

	"gorm.io/gorm"

	"mpccoordinator/core/request"
)

// RequestRepo implements request.Store against the requests table.
type RequestRepo struct {
	db *gorm.DB
}

// NewRequestRepo wraps db as a request.Store.
func NewRequestRepo(db *gorm.DB) *RequestRepo {
	return &RequestRepo{db: db}
}

// SaveRequest upserts a request record. The in-flight authorization token
// is deliberately not part of requestModel: it lives in the Key Envelope
// Service's leveldb-backed TokenStore, not the relational schema.
func (r *RequestRepo) SaveRequest(req *request.Request) error {
	m := requestModel{
		ID:              req.ID,
		Title:           req.Title,
		Description:     req.Description,
		Requester:       req.Requester,
		RequiredVoters:  strings.Join(req.RequiredVoters, ","),
		State:           string(req.State),
		CreatedAt:       req.CreatedAt,
		InputDatasetIDs: strings.Join(req.InputDatasetIDs, ","),
		Result:          req.Result,
		ProofHandle:     req.ProofHandle,
		FailureReason:   req.FailureReason,
	}
	return r.db.Save(&m).Error
}

// LoadRequests returns every persisted request.
func (r *RequestRepo) LoadRequests() ([]*request.Request, error) {
	var rows []requestModel
	if err := r.db.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*request.Request, 0, len(rows))
	for _, row := range rows {
		out = append(out, &request.Request{
			ID:              row.ID,
			Title:           row.Title,
			Description:     row.Description,
			Requester:       row.Requester,
			RequiredVoters:  splitCSV(row.RequiredVoters),
			State:           request.State(row.State),
			CreatedAt:       row.CreatedAt,
			InputDatasetIDs: splitCSV(row.InputDatasetIDs),
			Result:          row.Result,
			ProofHandle:     row.ProofHandle,
			FailureReason:   row.FailureReason,
		})
	}
	return out, nil
}
