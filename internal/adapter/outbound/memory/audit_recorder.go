package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/spokestack/accessctl/internal/domain/audit"
)

// AuditRecorder implements audit.Recorder by appending to a slice.
// Entries are retrievable for assertions but never mutable.
type AuditRecorder struct {
	entries []audit.Entry
	mu      sync.Mutex

	// FailNext forces the next Record call to return failErr. Lets tests
	// exercise the mutation-plus-audit unit-of-work contract.
	failErr error
}

// NewAuditRecorder creates a new in-memory audit recorder.
func NewAuditRecorder() *AuditRecorder {
	return &AuditRecorder{}
}

// Record appends one entry, assigning its ID.
func (r *AuditRecorder) Record(ctx context.Context, e audit.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failErr != nil {
		err := r.failErr
		r.failErr = nil
		return err
	}
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	r.entries = append(r.entries, e)
	return nil
}

// Query filters recorded entries.
func (r *AuditRecorder) Query(ctx context.Context, f audit.Filter) ([]audit.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []audit.Entry
	for _, e := range r.entries {
		if f.OrganizationID != "" && e.OrganizationID != f.OrganizationID {
			continue
		}
		if f.ActorID != "" && e.ActorID != f.ActorID {
			continue
		}
		if f.Resource != "" && e.Resource != f.Resource {
			continue
		}
		if f.ResourceID != "" && e.ResourceID != f.ResourceID {
			continue
		}
		if f.Action != "" && e.Action != f.Action {
			continue
		}
		if !f.Since.IsZero() && e.OccurredAt.Before(f.Since) {
			continue
		}
		if !f.Until.IsZero() && e.OccurredAt.After(f.Until) {
			continue
		}
		result = append(result, e)
		if f.Limit > 0 && len(result) >= f.Limit {
			break
		}
	}
	return result, nil
}

// Entries returns a copy of everything recorded so far.
func (r *AuditRecorder) Entries() []audit.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]audit.Entry(nil), r.entries...)
}

// FailNext makes the next Record call fail with err.
func (r *AuditRecorder) FailNext(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failErr = err
}
