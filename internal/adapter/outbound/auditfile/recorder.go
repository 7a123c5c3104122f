// Package auditfile persists the audit trail as JSON Lines files with
// daily rotation, size caps, retention cleanup, and an in-memory ring
// of recent entries for queries.
package auditfile

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spokestack/accessctl/internal/domain/audit"
)

// trailFilePattern matches trail filenames: audit-YYYY-MM-DD.log or
// audit-YYYY-MM-DD-N.log.
var trailFilePattern = regexp.MustCompile(`^audit-(\d{4}-\d{2}-\d{2})(?:-(\d+))?\.log$`)

// Config holds settings for the file recorder.
type Config struct {
	// Dir is where trail files live.
	Dir string
	// RetentionDays is how long rotated files are kept (default 90).
	RetentionDays int
	// MaxFileSizeMB caps one file before a suffix rotation (default 100).
	MaxFileSizeMB int
	// RecentSize is the number of entries kept in memory for Query
	// (default 1000).
	RecentSize int
}

// Recorder appends audit entries to date-named JSON Lines files. It
// implements audit.Recorder and audit.Reader; queries are served from
// the in-memory ring of recent entries.
type Recorder struct {
	dir           string
	maxFileSize   int64
	retentionDays int
	logger        *slog.Logger
	cancel        context.CancelFunc

	mu            sync.Mutex
	currentFile   *os.File
	currentDate   string
	currentSize   int64
	currentSuffix int
	closed        bool

	recent *ring
}

// New opens (creating if needed) the trail directory, opens today's
// file, runs retention cleanup, and starts the hourly cleanup loop.
func New(cfg Config, logger *slog.Logger) (*Recorder, error) {
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = 90
	}
	if cfg.MaxFileSizeMB <= 0 {
		cfg.MaxFileSizeMB = 100
	}
	if cfg.RecentSize <= 0 {
		cfg.RecentSize = 1000
	}
	if err := os.MkdirAll(cfg.Dir, 0700); err != nil {
		return nil, fmt.Errorf("create trail directory: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Recorder{
		dir:           cfg.Dir,
		maxFileSize:   int64(cfg.MaxFileSizeMB) * 1024 * 1024,
		retentionDays: cfg.RetentionDays,
		logger:        logger,
		cancel:        cancel,
		recent:        newRing(cfg.RecentSize),
	}

	today := time.Now().UTC().Format("2006-01-02")
	if err := r.openCurrentLocked(today); err != nil {
		cancel()
		return nil, fmt.Errorf("open trail file: %w", err)
	}
	r.runCleanup()
	go r.cleanupLoop(ctx)
	return r, nil
}

// Record appends one entry as a JSON line, rotating by date and size as
// needed. An ID is assigned when the caller left it empty.
func (r *Recorder) Record(_ context.Context, e audit.Entry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return fmt.Errorf("audit recorder is closed")
	}

	date := e.OccurredAt.UTC().Format("2006-01-02")
	if date != r.currentDate {
		if err := r.rotateLocked(date, 0); err != nil {
			return fmt.Errorf("date rotation: %w", err)
		}
	}
	if r.currentSize >= r.maxFileSize {
		if err := r.rotateLocked(r.currentDate, r.currentSuffix+1); err != nil {
			return fmt.Errorf("size rotation: %w", err)
		}
	}

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}
	n, err := r.currentFile.Write(append(data, '\n'))
	if err != nil {
		return fmt.Errorf("write audit entry: %w", err)
	}
	r.currentSize += int64(n)
	r.recent.add(e)
	return nil
}

// Query filters the in-memory ring, newest first. Rotated files are not
// consulted; the file trail is the long-term record, the ring the
// operational view.
func (r *Recorder) Query(_ context.Context, f audit.Filter) ([]audit.Entry, error) {
	var out []audit.Entry
	for _, e := range r.recent.newestFirst() {
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
		out = append(out, e)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out, nil
}

// Flush syncs the current file.
func (r *Recorder) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.currentFile != nil {
		return r.currentFile.Sync()
	}
	return nil
}

// Close stops the cleanup loop and closes the current file.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	r.cancel()
	if r.currentFile != nil {
		_ = r.currentFile.Sync()
		err := r.currentFile.Close()
		r.currentFile = nil
		return err
	}
	return nil
}

// openCurrentLocked opens the file for date, resuming the highest
// existing suffix. Must be called with r.mu held.
func (r *Recorder) openCurrentLocked(date string) error {
	return r.rotateLocked(date, r.highestSuffix(date))
}

// rotateLocked swaps the current file for (date, suffix). Must be
// called with r.mu held.
func (r *Recorder) rotateLocked(date string, suffix int) error {
	if r.currentFile != nil {
		_ = r.currentFile.Sync()
		_ = r.currentFile.Close()
		r.currentFile = nil
	}

	path := filepath.Join(r.dir, trailFilename(date, suffix))
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("stat %s: %w", path, err)
	}

	r.currentFile = f
	r.currentDate = date
	r.currentSize = info.Size()
	r.currentSuffix = suffix
	return nil
}

// highestSuffix returns the highest existing suffix for date, or 0.
func (r *Recorder) highestSuffix(date string) int {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return 0
	}
	highest := 0
	for _, e := range entries {
		d, suffix, ok := parseTrailFilename(e.Name())
		if ok && d == date && suffix > highest {
			highest = suffix
		}
	}
	return highest
}

// runCleanup deletes trail files older than the retention period.
func (r *Recorder) runCleanup() {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		r.logger.Error("trail cleanup failed to read directory", "dir", r.dir, "error", err)
		return
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -r.retentionDays)
	for _, e := range entries {
		date, _, ok := parseTrailFilename(e.Name())
		if !ok {
			continue
		}
		fileDate, err := time.Parse("2006-01-02", date)
		if err != nil || !fileDate.Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(r.dir, e.Name())); err != nil {
			r.logger.Error("trail cleanup failed to delete file", "file", e.Name(), "error", err)
		}
	}
}

func (r *Recorder) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.runCleanup()
		}
	}
}

func trailFilename(date string, suffix int) string {
	if suffix == 0 {
		return fmt.Sprintf("audit-%s.log", date)
	}
	return fmt.Sprintf("audit-%s-%d.log", date, suffix)
}

func parseTrailFilename(name string) (date string, suffix int, ok bool) {
	matches := trailFilePattern.FindStringSubmatch(name)
	if matches == nil {
		return "", 0, false
	}
	if matches[2] != "" {
		n, err := strconv.Atoi(matches[2])
		if err != nil {
			return "", 0, false
		}
		suffix = n
	}
	return matches[1], suffix, true
}

// ring is a fixed-size buffer of the most recent entries.
type ring struct {
	mu      sync.RWMutex
	entries []audit.Entry
	head    int
	count   int
}

func newRing(size int) *ring {
	return &ring{entries: make([]audit.Entry, size)}
}

func (c *ring) add(e audit.Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[c.head] = e
	c.head = (c.head + 1) % len(c.entries)
	if c.count < len(c.entries) {
		c.count++
	}
}

func (c *ring) newestFirst() []audit.Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]audit.Entry, c.count)
	for i := 0; i < c.count; i++ {
		out[i] = c.entries[(c.head-1-i+len(c.entries))%len(c.entries)]
	}
	return out
}

// Compile-time interface checks.
var (
	_ audit.Recorder = (*Recorder)(nil)
	_ audit.Reader   = (*Recorder)(nil)
)
