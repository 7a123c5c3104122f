package audit

import (
	"context"
	"time"
)

// Recorder persists audit entries. Interface owned by the domain per the
// hexagonal layout; adapters implement it over files or the relational
// store. The interface is deliberately append-only.
type Recorder interface {
	// Record appends one entry. A failed Record fails the mutation it
	// documents; callers treat mutation plus audit as one unit of work.
	Record(ctx context.Context, e Entry) error
}

// Filter narrows audit queries. Zero fields match everything.
type Filter struct {
	OrganizationID string
	ActorID        string
	Resource       string
	ResourceID     string
	Action         string
	Since          time.Time
	Until          time.Time
	Limit          int
}

// Reader is the optional query side implemented by recorders that retain
// entries locally. There is intentionally no update or delete companion.
type Reader interface {
	Query(ctx context.Context, f Filter) ([]Entry, error)
}
