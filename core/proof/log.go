package proof

import (
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"mpccoordinator/core/events"
)

// ErrNotFound is returned when a request id or position has no proof record.
var ErrNotFound = errors.New("proof: not found")

// Store persists proof records across restarts.
type Store interface {
	SaveProof(*Record) error
	LoadProofs() ([]*Record, error)
}

// Log implements the Proof & Audit Log component (§4.7): a total order
// over completed executions, each link content-addressed by blake3 (§8's
// prior-hash invariant). It mirrors every append to a rotated,
// human-readable audit file via lumberjack, independent of the durable
// store, so an operator can tail audit.log without a database connection.
type Log struct {
	mu        sync.Mutex
	records   []*Record
	byRequest map[string]*Record
	store     Store
	mirror    *lumberjack.Logger
	emitter   events.Emitter
	nowFn     func() time.Time
}

// Config configures the rotated audit mirror file.
type Config struct {
	MirrorPath string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// NewLog constructs a Log, hydrating its chain from store and opening the
// mirror file named by cfg.
func NewLog(store Store, cfg Config, emitter events.Emitter) (*Log, error) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	l := &Log{
		byRequest: make(map[string]*Record),
		store:     store,
		emitter:   emitter,
		nowFn:     time.Now,
	}
	if cfg.MirrorPath != "" {
		l.mirror = &lumberjack.Logger{
			Filename:   cfg.MirrorPath,
			MaxSize:    orDefault(cfg.MaxSizeMB, 50),
			MaxBackups: orDefault(cfg.MaxBackups, 10),
			MaxAge:     orDefault(cfg.MaxAgeDays, 90),
		}
	}
	if store != nil {
		existing, err := store.LoadProofs()
		if err != nil {
			return nil, err
		}
		for _, r := range existing {
			l.records = append(l.records, r)
			l.byRequest[r.RequestID] = r
		}
	}
	return l, nil
}

// SetNowFunc overrides the clock; used by tests.
func (l *Log) SetNowFunc(fn func() time.Time) {
	if fn != nil {
		l.nowFn = fn
	}
}

// Append emits the next proof record in the chain, implementing
// orchestrator.ProofAppender. Position and prior-hash are assigned under
// lock so concurrent completions across unrelated requests still produce
// a single, gap-free total order (§4.7, §5 "no cross-request ordering
// guaranteed" refers to requests, not the proof chain itself).
func (l *Log) Append(requestID, requester string, datasetIDs []string, oracleResponseHash [32]byte, guaranteeLabels []string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	prior := genesisHash
	if n := len(l.records); n > 0 {
		prior = l.records[n-1].ContentHash()
	}
	record := &Record{
		RequestID:          requestID,
		Requester:          requester,
		DatasetIDs:         append([]string(nil), datasetIDs...),
		Position:           uint64(len(l.records)) + 1,
		OracleResponseHash: oracleResponseHash,
		GuaranteeLabels:    append([]string(nil), guaranteeLabels...),
		PriorHash:          prior,
		Timestamp:          l.nowFn(),
	}

	if l.store != nil {
		if err := l.store.SaveProof(record); err != nil {
			return "", fmt.Errorf("persist proof record: %w", err)
		}
	}
	l.records = append(l.records, record)
	l.byRequest[requestID] = record
	l.writeMirror(record)
	l.emitter.Emit(events.ProofEmitted{RequestID: requestID, Position: record.Position, Hash: record.Handle()})
	return record.Handle(), nil
}

// ByRequestID returns the proof record bound to requestID.
func (l *Log) ByRequestID(requestID string) (*Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	r, ok := l.byRequest[requestID]
	if !ok {
		return nil, ErrNotFound
	}
	return r, nil
}

// ByPosition returns the proof record at a 1-based chain position.
func (l *Log) ByPosition(position uint64) (*Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if position == 0 || position > uint64(len(l.records)) {
		return nil, ErrNotFound
	}
	return l.records[position-1], nil
}

// ListAll returns the full chain in position order.
func (l *Log) ListAll() []*Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*Record, len(l.records))
	copy(out, l.records)
	return out
}

func (l *Log) writeMirror(r *Record) {
	if l.mirror == nil {
		return
	}
	line := fmt.Sprintf("%s pos=%d request=%s requester=%s datasets=%v hash=%s prior=%s\n",
		r.Timestamp.UTC().Format(time.RFC3339Nano), r.Position, r.RequestID, r.Requester, r.DatasetIDs,
		r.Handle(), hex.EncodeToString(r.PriorHash[:]))
	_, _ = l.mirror.Write([]byte(line))
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
