// Package history records executed requests so a bridge operator can
// inspect what an assistant has been running. Backends: an in-memory
// ring (default) and SQLite for persistence across restarts.
package history

import (
	"errors"
	"time"

	"github.com/rhuss/cadbridge/pkg/dispatch"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("history: record not found")

// Record is one executed request. Code is truncated at storage time to
// keep the store bounded; the full source never needs to round-trip.
type Record struct {
	ID         string
	Code       string
	Success    bool
	ErrorType  string
	Duration   time.Duration
	ExecutedAt time.Time
}

// MaxCodeLen bounds the stored code snippet.
const MaxCodeLen = 2048

// Store persists execution records. Append is called from the drain
// goroutine; reads may come from any goroutine.
type Store interface {
	Append(rec Record) error
	Recent(n int) ([]Record, error)
	Close() error
}

// Recorder adapts a Store to the dispatcher's Observer interface.
type Recorder struct {
	store Store
}

// NewRecorder wraps store for installation via Dispatcher.SetObserver.
func NewRecorder(store Store) *Recorder {
	return &Recorder{store: store}
}

var _ dispatch.Observer = (*Recorder)(nil)

// RequestExecuted records the drained request. Storage failures are
// deliberately swallowed: history is advisory and must never disturb
// the drain loop.
func (r *Recorder) RequestExecuted(req *dispatch.Request, res dispatch.Result) {
	code := req.Code
	if len(code) > MaxCodeLen {
		code = code[:MaxCodeLen]
	}
	_ = r.store.Append(Record{
		ID:         req.ID,
		Code:       code,
		Success:    res.Success,
		ErrorType:  res.ErrorType,
		Duration:   res.Duration,
		ExecutedAt: time.Now(),
	})
}
