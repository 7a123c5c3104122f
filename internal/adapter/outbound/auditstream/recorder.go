// Package auditstream writes audit entries as JSON lines to a stream,
// typically stdout. It is the development counterpart of the file and
// database recorders; nothing is retained for queries.
package auditstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"

	"github.com/spokestack/accessctl/internal/domain/audit"
)

// Recorder appends entries to a single writer under a mutex.
type Recorder struct {
	mu sync.Mutex
	w  io.Writer
}

// New creates a stream recorder.
func New(w io.Writer) *Recorder {
	return &Recorder{w: w}
}

// Record writes one entry as a JSON line, assigning an ID when absent.
func (r *Recorder) Record(_ context.Context, e audit.Entry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write audit entry: %w", err)
	}
	return nil
}

var _ audit.Recorder = (*Recorder)(nil)
