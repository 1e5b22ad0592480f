package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"quizqa/internal/evaluation"
	"quizqa/internal/fileutil"
	"quizqa/internal/logging"
	"quizqa/internal/services"
)

const (
	defaultLockTimeout = 10 * time.Second
	lockRetryDelay     = 50 * time.Millisecond
)

// Store owns the evaluation records of a run. Records live in memory and are
// flushed to a flat JSON array on disk. Every flush re-reads the file under an
// advisory lock and merges in records written by other processes, so a save
// never truncates committed work.
type Store struct {
	path        string
	logger      *slog.Logger
	lock        *flock.Flock
	lockTimeout time.Duration
	now         func() time.Time

	mu       sync.Mutex
	records  map[string]evaluation.Record
	reqs     map[string]evaluation.Requirements
	dirty    map[string]struct{}
	degraded bool
	lastErr  error
	flushes  int
	backedUp bool
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used to stamp merged records.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLockTimeout bounds how long a flush waits for the file lock.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.lockTimeout = d
		}
	}
}

// Open creates a store backed by path and loads existing records. A missing or
// corrupt file yields an empty store and a warning. An empty path keeps
// everything in memory and marks the store unsaved.
func Open(path string, logger *slog.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Store{
		path:        strings.TrimSpace(path),
		logger:      logging.NewComponentLogger(logger, "checkpoint"),
		lockTimeout: defaultLockTimeout,
		now:         time.Now,
		records:     make(map[string]evaluation.Record),
		reqs:        make(map[string]evaluation.Requirements),
		dirty:       make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.path == "" {
		s.degraded = true
		logging.WarnWithContext(s.logger, "checkpoint disabled", "checkpoint_disabled",
			logging.String(logging.FieldErrorHint, "set paths.checkpoint_file to persist results"),
			logging.String(logging.FieldImpact, "results are kept in memory only and the run is unsaved"))
		return s
	}
	s.lock = flock.New(s.path + ".lock")

	records, err := readFile(s.path)
	if err != nil {
		s.quarantine(err)
		return s
	}
	s.records = records
	s.logger.Debug("loaded checkpoint",
		logging.Int("record_count", len(records)),
		logging.String("path", s.path))
	return s
}

// Path returns the backing file, or "" for an in-memory store.
func (s *Store) Path() string { return s.path }

// Load returns a copy of every record keyed by item id.
func (s *Store) Load() map[string]evaluation.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]evaluation.Record, len(s.records))
	for id, rec := range s.records {
		out[id] = rec.Clone()
	}
	return out
}

// Get returns the record for id.
func (s *Store) Get(id string) (evaluation.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return evaluation.Record{}, false
	}
	return rec.Clone(), true
}

// Classify reports what work item id still needs given its current fingerprint.
func (s *Store) Classify(id, fingerprint string, req evaluation.Requirements, policy evaluation.Policy) evaluation.Verdict {
	s.mu.Lock()
	defer s.mu.Unlock()
	var rec *evaluation.Record
	if existing, ok := s.records[id]; ok {
		rec = &existing
	}
	return evaluation.Classify(fingerprint, rec, req, policy)
}

// Apply merges partial into the stored record for its item and returns the
// result. The change is held in memory until the next Flush.
func (s *Store) Apply(partial evaluation.Partial, req evaluation.Requirements) evaluation.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	var existing *evaluation.Record
	if rec, ok := s.records[partial.ItemID]; ok {
		existing = &rec
	}
	merged := evaluation.Merge(existing, partial, req, s.now())
	s.records[merged.ItemID] = merged
	s.reqs[merged.ItemID] = req
	s.dirty[merged.ItemID] = struct{}{}
	return merged.Clone()
}

// Put stores rec as-is, replacing any record with the same id.
func (s *Store) Put(rec evaluation.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ItemID] = rec.Clone()
	s.dirty[rec.ItemID] = struct{}{}
}

// Records returns every record sorted by item id.
func (s *Store) Records() []evaluation.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedRecords(s.records)
}

// Len returns the number of records held.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Pending returns the number of records changed since the last successful flush.
func (s *Store) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.dirty)
}

// Degraded reports whether the store is running unsaved: either no path is
// configured or the most recent flush failed.
func (s *Store) Degraded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.degraded
}

// LastError returns the most recent flush failure, if any.
func (s *Store) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Flush persists every record. Failures switch the store to degraded mode and
// are returned tagged with services.ErrStorage; callers log and continue.
// Flush ignores cancellation of ctx for the write itself so that a final flush
// during shutdown still lands.
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return nil
	}
	if len(s.dirty) == 0 && s.flushes > 0 && !s.degraded {
		return nil
	}

	err := s.flushLocked(ctx)
	if err != nil {
		wrapped := services.Wrap(services.ErrStorage, "checkpoint", "flush", s.path, err)
		s.degraded = true
		s.lastErr = wrapped
		logging.WarnWithContext(s.logger, "checkpoint flush failed", "checkpoint_unsaved",
			logging.Error(err),
			logging.String("path", s.path),
			logging.Int("pending_records", len(s.dirty)),
			logging.String(logging.FieldErrorHint, "check permissions and free space for the checkpoint directory"),
			logging.String(logging.FieldImpact, "results are kept in memory; the run will be reported unsaved unless a later flush succeeds"))
		return wrapped
	}
	if s.degraded {
		s.logger.Info("checkpoint flush recovered", logging.String("path", s.path))
	}
	s.degraded = false
	s.lastErr = nil
	s.flushes++
	return nil
}

func (s *Store) flushLocked(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create checkpoint directory: %w", err)
	}
	lockCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.lockTimeout)
	defer cancel()
	locked, err := s.lock.TryLockContext(lockCtx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !locked {
		return errors.New("acquire lock: timed out")
	}
	defer func() {
		if err := s.lock.Unlock(); err != nil {
			s.logger.Debug("release checkpoint lock failed", logging.Error(err))
		}
	}()

	onDisk, err := readFile(s.path)
	if err != nil {
		var corrupt *corruptError
		if !errors.As(err, &corrupt) {
			return err
		}
		s.backupCorrupt(err)
		onDisk = nil
	}
	merged := 0
	for id, disk := range onDisk {
		mem, ok := s.records[id]
		switch {
		case !ok:
			s.records[id] = disk
			merged++
		case disk.Fingerprint == mem.Fingerprint:
			req, known := s.reqs[id]
			s.records[id] = combine(mem, disk, req, known)
			merged++
		case disk.UpdatedAt.After(mem.UpdatedAt):
			s.records[id] = disk
			delete(s.dirty, id)
			merged++
		}
	}

	data, err := json.MarshalIndent(sortedRecords(s.records), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	data = append(data, '\n')
	if err := fileutil.WriteFileAtomic(s.path, data, 0o644); err != nil {
		return err
	}

	s.logger.Debug("checkpoint flushed",
		logging.Int("record_count", len(s.records)),
		logging.Int("written", len(s.dirty)),
		logging.Int("merged_from_disk", merged))
	s.dirty = make(map[string]struct{})
	return nil
}

// combine merges two records for the same content. The check map is the union
// of both; on a name collision the later EvaluatedAt wins, with ties going to
// the more recently updated record. Derived fields are recomputed against req
// when it is known, otherwise only the score is.
func combine(mem, disk evaluation.Record, req evaluation.Requirements, known bool) evaluation.Record {
	base, other := mem, disk
	if disk.UpdatedAt.After(mem.UpdatedAt) {
		base, other = disk, mem
	}
	out := base.Clone()
	if out.Checks == nil {
		out.Checks = make(map[string]evaluation.CheckResult, len(other.Checks))
	}
	for name, result := range other.Checks {
		current, ok := out.Checks[name]
		if !ok || result.EvaluatedAt.After(current.EvaluatedAt) {
			out.Checks[name] = result
		}
	}
	if out.ItemType == "" {
		out.ItemType = other.ItemType
	}
	if out.Group == "" {
		out.Group = other.Group
	}
	if known {
		evaluation.Refresh(&out, req)
	} else {
		out.Score = evaluation.Score(out.Checks)
	}
	return out
}

// quarantine handles an unreadable checkpoint at load time.
func (s *Store) quarantine(err error) {
	logging.WarnWithContext(s.logger, "checkpoint unreadable; starting empty", "checkpoint_load_failed",
		logging.Error(err),
		logging.String("path", s.path),
		logging.String(logging.FieldErrorHint, "inspect or delete the checkpoint file; a .corrupt copy is kept"),
		logging.String(logging.FieldImpact, "items previously evaluated will be evaluated again"))
	s.backupCorrupt(err)
}

func (s *Store) backupCorrupt(cause error) {
	var parseErr *corruptError
	if !errors.As(cause, &parseErr) || s.backedUp {
		return
	}
	s.backedUp = true
	backup := fmt.Sprintf("%s.corrupt-%s", s.path, s.now().UTC().Format("20060102T150405Z"))
	if err := fileutil.CopyFile(s.path, backup); err != nil {
		s.logger.Warn("failed to back up corrupt checkpoint",
			logging.String(logging.FieldEventType, "checkpoint_backup_failed"),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "copy the checkpoint file aside manually before the next flush"),
			logging.String(logging.FieldImpact, "the corrupt file will be overwritten"))
		return
	}
	s.logger.Info("backed up corrupt checkpoint", logging.String("backup", backup))
}

type corruptError struct{ err error }

func (e *corruptError) Error() string { return "parse checkpoint: " + e.err.Error() }
func (e *corruptError) Unwrap() error { return e.err }

// readFile parses the checkpoint at path. A missing or empty file is an empty
// map, not an error.
func readFile(path string) (map[string]evaluation.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]evaluation.Record{}, nil
		}
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return map[string]evaluation.Record{}, nil
	}
	var list []evaluation.Record
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, &corruptError{err: err}
	}
	out := make(map[string]evaluation.Record, len(list))
	for _, rec := range list {
		id := strings.TrimSpace(rec.ItemID)
		if id == "" {
			continue
		}
		if rec.Checks == nil {
			rec.Checks = map[string]evaluation.CheckResult{}
		}
		if prev, ok := out[id]; ok && prev.UpdatedAt.After(rec.UpdatedAt) {
			continue
		}
		out[id] = rec
	}
	return out, nil
}

// ReadFile loads the checkpoint at path without taking ownership of it. It is
// meant for read-only consumers such as reports.
func ReadFile(path string) ([]evaluation.Record, error) {
	records, err := readFile(path)
	if err != nil {
		return nil, services.Wrap(services.ErrStorage, "checkpoint", "read", path, err)
	}
	return sortedRecords(records), nil
}

func sortedRecords(records map[string]evaluation.Record) []evaluation.Record {
	out := make([]evaluation.Record, 0, len(records))
	for _, rec := range records {
		out = append(out, rec.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemID < out[j].ItemID })
	return out
}
