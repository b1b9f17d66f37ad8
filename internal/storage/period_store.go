// Package storage owns the on-disk period files: one JSON document per day and
// per month, each mapping operator ids to their sale counters.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"sales/internal/core"
	"sales/internal/log"
	"sales/internal/metrics"
)

const (
	filePrefix = "sales_"
	fileExt    = ".json"
)

// PeriodStore serializes every read-modify-write per file path. Files for
// different periods are independent and may be written concurrently.
type PeriodStore struct {
	root   string
	locks  *pathLocks
	open   atomic.Bool
	logger *log.Logger
}

type Option func(*PeriodStore)

func WithLogger(l *log.Logger) Option {
	return func(s *PeriodStore) {
		if l != nil {
			s.logger = l.WithComponent(log.ComponentStorage)
		}
	}
}

// NewPeriodStore creates the daily and monthly directories under root. The
// store starts closed: live mutations fail until Open is called, which the
// key migration does once its pass completes.
func NewPeriodStore(root string, opts ...Option) (*PeriodStore, error) {
	s := &PeriodStore{
		root:   root,
		locks:  newPathLocks(),
		logger: log.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	for _, g := range core.Granularities() {
		if err := os.MkdirAll(filepath.Join(root, g.Dir()), 0o755); err != nil {
			return nil, fmt.Errorf("create %s directory: %w", g.Dir(), err)
		}
	}
	return s, nil
}

// Open allows live increments and resets.
func (s *PeriodStore) Open() {
	if s.open.CompareAndSwap(false, true) {
		s.logger.Info("Period store open for live writes", log.FieldPath, s.root)
	}
}

func (s *PeriodStore) IsOpen() bool {
	return s.open.Load()
}

func (s *PeriodStore) Root() string {
	return s.root
}

// Path returns the file path for a period; the label is not validated here.
func (s *PeriodStore) Path(g core.Granularity, label string) string {
	return filepath.Join(s.root, g.Dir(), filePrefix+label+fileExt)
}

// Increment adds one sale of key for op and returns the new count for that key
// in this period. The operator's identity fields are written only when the
// operator first appears in the file.
func (s *PeriodStore) Increment(ctx context.Context, g core.Granularity, label string, op core.Operator, key string) (int64, error) {
	if !s.IsOpen() {
		return 0, core.ErrStoreNotReady
	}
	if err := g.ValidateLabel(label); err != nil {
		return 0, err
	}
	if err := op.Validate(); err != nil {
		return 0, err
	}
	if key == "" {
		return 0, core.ErrEmptySaleKey
	}

	path := s.Path(g, label)
	start := time.Now()
	unlock := s.locks.lock(path)
	defer unlock()

	data, err := s.load(path)
	if err != nil {
		s.logger.ErrorContext(ctx, "Refusing to increment unreadable period file",
			log.FieldFile, path, log.FieldError, err)
		return 0, err
	}

	id := op.ID.String()
	rec, ok := data[id]
	if !ok {
		rec = core.NewOperatorRecord(op)
	}
	rec.Sales[key]++
	data[id] = rec

	if err := s.save(path, data); err != nil {
		s.logger.ErrorContext(ctx, "Failed to persist period file",
			log.FieldFile, path, log.FieldOperatorID, id, log.FieldSaleKey, key, log.FieldError, err)
		return 0, err
	}
	metrics.PeriodWriteDuration.WithLabelValues(string(g)).Observe(time.Since(start).Seconds())

	return rec.Sales[key], nil
}

// Decrement takes back one sale of key for the operator with id and returns
// the remaining count. Counts never go below zero and a key that reaches zero
// is dropped from the file.
func (s *PeriodStore) Decrement(ctx context.Context, g core.Granularity, label string, id core.OperatorID, key string) (int64, error) {
	if !s.IsOpen() {
		return 0, core.ErrStoreNotReady
	}
	if err := g.ValidateLabel(label); err != nil {
		return 0, err
	}

	path := s.Path(g, label)
	unlock := s.locks.lock(path)
	defer unlock()

	data, err := s.load(path)
	if err != nil {
		return 0, err
	}
	rec, ok := data[id.String()]
	if !ok || rec.Sales[key] == 0 {
		return 0, nil
	}
	rec.Sales[key]--
	left := rec.Sales[key]
	if left <= 0 {
		delete(rec.Sales, key)
		left = 0
	}
	data[id.String()] = rec

	if err := s.save(path, data); err != nil {
		s.logger.ErrorContext(ctx, "Failed to persist period file",
			log.FieldFile, path, log.FieldOperatorID, id.String(), log.FieldSaleKey, key, log.FieldError, err)
		return 0, err
	}
	return left, nil
}

// Read returns the whole period; a missing file is an empty period.
func (s *PeriodStore) Read(ctx context.Context, g core.Granularity, label string) (core.PeriodData, error) {
	if err := g.ValidateLabel(label); err != nil {
		return nil, err
	}
	path := s.Path(g, label)
	unlock := s.locks.lock(path)
	defer unlock()

	data, err := s.load(path)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to read period file", log.FieldFile, path, log.FieldError, err)
		return nil, err
	}
	return data, nil
}

// ReadOperator returns one operator's record, or an empty record.
func (s *PeriodStore) ReadOperator(ctx context.Context, g core.Granularity, label string, id core.OperatorID) (core.OperatorRecord, error) {
	data, err := s.Read(ctx, g, label)
	if err != nil {
		return core.OperatorRecord{}, err
	}
	return data.Operator(id.String()), nil
}

// ResetOperator empties one operator's sales in place. Other operators and
// the operator's identity fields are kept.
func (s *PeriodStore) ResetOperator(ctx context.Context, g core.Granularity, label string, id core.OperatorID) error {
	if !s.IsOpen() {
		return core.ErrStoreNotReady
	}
	if err := g.ValidateLabel(label); err != nil {
		return err
	}

	path := s.Path(g, label)
	unlock := s.locks.lock(path)
	defer unlock()

	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	data, err := s.load(path)
	if err != nil {
		return err
	}
	rec, ok := data[id.String()]
	if !ok {
		return nil
	}
	rec.Sales = map[string]int64{}
	data[id.String()] = rec

	if err := s.save(path, data); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "Operator sales reset",
		log.FieldGranularity, string(g), log.FieldPeriod, label, log.FieldOperatorID, id.String())
	return nil
}

// RemovePeriod deletes the period file. Removing a missing period is not an error.
func (s *PeriodStore) RemovePeriod(ctx context.Context, g core.Granularity, label string) error {
	if !s.IsOpen() {
		return core.ErrStoreNotReady
	}
	if err := g.ValidateLabel(label); err != nil {
		return err
	}

	path := s.Path(g, label)
	unlock := s.locks.lock(path)
	defer unlock()

	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: remove %s: %v", core.ErrPersistenceFailure, path, err)
	}
	s.logger.InfoContext(ctx, "Period removed", log.FieldGranularity, string(g), log.FieldPeriod, label)
	return nil
}

// ListPeriods scans the directory for period files, newest label first.
// Backups, temp files and files with malformed labels are ignored.
func (s *PeriodStore) ListPeriods(g core.Granularity) ([]string, error) {
	if !g.Valid() {
		return nil, fmt.Errorf("%w: %q", core.ErrInvalidGranularity, string(g))
	}
	entries, err := os.ReadDir(filepath.Join(s.root, g.Dir()))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list %s periods: %w", g, err)
	}

	labels := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileExt) {
			continue
		}
		label := strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileExt)
		if g.ValidateLabel(label) != nil {
			continue
		}
		labels = append(labels, label)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(labels)))
	return labels, nil
}

// load reads and decodes path; the caller holds the path lock.
func (s *PeriodStore) load(path string) (core.PeriodData, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return core.PeriodData{}, nil
		}
		return nil, fmt.Errorf("%w: %v", core.ErrCorruptPeriodFile, err)
	}
	data, err := decodePeriod(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return data, nil
}

// save encodes and atomically replaces path; the caller holds the path lock.
func (s *PeriodStore) save(path string, data core.PeriodData) error {
	raw, err := encodePeriod(data)
	if err != nil {
		return fmt.Errorf("%w: encode: %v", core.ErrPersistenceFailure, err)
	}
	return writeAtomic(path, raw)
}
