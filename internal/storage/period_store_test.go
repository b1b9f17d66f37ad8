package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sales/internal/core"
)

func newOpenStore(t *testing.T) *PeriodStore {
	t.Helper()
	s, err := NewPeriodStore(t.TempDir())
	require.NoError(t, err)
	s.Open()
	return s
}

func writePeriodFile(t *testing.T, s *PeriodStore, g core.Granularity, label, content string) string {
	t.Helper()
	path := s.Path(g, label)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

var anna = core.Operator{ID: 42, Username: "anna", FullName: "Anna K"}
var boris = core.Operator{ID: 7, Username: "boris", FullName: "Boris P"}

func TestNewPeriodStoreCreatesDirectories(t *testing.T) {
	root := t.TempDir()
	_, err := NewPeriodStore(root)
	require.NoError(t, err)

	for _, dir := range []string{"daily", "monthly"} {
		info, err := os.Stat(filepath.Join(root, dir))
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}

func TestPeriodStore_Path(t *testing.T) {
	root := filepath.Join(t.TempDir(), "data")
	s, err := NewPeriodStore(root)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(root, "daily", "sales_2025-03-07.json"), s.Path(core.Day, "2025-03-07"))
	assert.Equal(t, filepath.Join(root, "monthly", "sales_2025-03.json"), s.Path(core.Month, "2025-03"))
}

func TestPeriodStore_IncrementRequiresOpen(t *testing.T) {
	s, err := NewPeriodStore(t.TempDir())
	require.NoError(t, err)

	_, err = s.Increment(context.Background(), core.Day, "2025-03-07", anna, "mts_super")
	assert.ErrorIs(t, err, core.ErrStoreNotReady)
	assert.ErrorIs(t, s.ResetOperator(context.Background(), core.Day, "2025-03-07", anna.ID), core.ErrStoreNotReady)
	assert.ErrorIs(t, s.RemovePeriod(context.Background(), core.Day, "2025-03-07"), core.ErrStoreNotReady)
	assert.NoFileExists(t, s.Path(core.Day, "2025-03-07"))
}

func TestPeriodStore_IncrementWritesFileFormat(t *testing.T) {
	s := newOpenStore(t)
	ctx := context.Background()

	n, err := s.Increment(ctx, core.Day, "2025-03-07", anna, "mts_super")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = s.Increment(ctx, core.Day, "2025-03-07", anna, "mts_super")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	raw, err := os.ReadFile(s.Path(core.Day, "2025-03-07"))
	require.NoError(t, err)
	assert.Equal(t, `{
  "42": {
    "username": "anna",
    "full_name": "Anna K",
    "sales": {
      "mts_super": 2
    }
  }
}`, strings.TrimSpace(string(raw)))
}

func TestPeriodStore_IdentitySeededOnce(t *testing.T) {
	s := newOpenStore(t)
	ctx := context.Background()

	_, err := s.Increment(ctx, core.Month, "2025-03", anna, "membrane")
	require.NoError(t, err)

	renamed := anna
	renamed.FullName = "Anna Renamed"
	_, err = s.Increment(ctx, core.Month, "2025-03", renamed, "membrane")
	require.NoError(t, err)

	rec, err := s.ReadOperator(ctx, core.Month, "2025-03", anna.ID)
	require.NoError(t, err)
	assert.Equal(t, "Anna K", rec.FullName)
	assert.Equal(t, int64(2), rec.Sales["membrane"])
}

func TestPeriodStore_ConcurrentIncrementsAreConserved(t *testing.T) {
	s := newOpenStore(t)
	ctx := context.Background()

	// GIVEN a pre-existing count of 3
	writePeriodFile(t, s, core.Day, "2025-03-07",
		`{"42": {"username": "anna", "full_name": "Anna K", "sales": {"mts_super": 3}}}`)

	// WHEN two operators increment the same file concurrently
	const n = 40
	var wg sync.WaitGroup
	errs := make(chan error, 2*n)
	for i := 0; i < n; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := s.Increment(ctx, core.Day, "2025-03-07", anna, "mts_super")
			errs <- err
		}()
		go func() {
			defer wg.Done()
			_, err := s.Increment(ctx, core.Day, "2025-03-07", boris, "membrane")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	// THEN no update was lost
	data, err := s.Read(ctx, core.Day, "2025-03-07")
	require.NoError(t, err)
	assert.Equal(t, int64(3+n), data["42"].Sales["mts_super"])
	assert.Equal(t, int64(n), data["7"].Sales["membrane"])
	assert.Equal(t, 0, s.locks.size(), "path locks should be released")
}

func TestPeriodStore_ReadMissing(t *testing.T) {
	s := newOpenStore(t)
	ctx := context.Background()

	data, err := s.Read(ctx, core.Day, "2025-01-01")
	require.NoError(t, err)
	assert.Empty(t, data)

	rec, err := s.ReadOperator(ctx, core.Day, "2025-01-01", anna.ID)
	require.NoError(t, err)
	assert.NotNil(t, rec.Sales)
	assert.Empty(t, rec.Sales)

	_, err = s.Read(ctx, core.Day, "../../etc/passwd")
	assert.ErrorIs(t, err, core.ErrInvalidPeriod)
}

func TestPeriodStore_CorruptFile(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"not json", `{"42": {"sales": `},
		{"empty", ``},
		{"negative count", `{"42": {"sales": {"mts_super": -1}}}`},
		{"array", `[1, 2]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newOpenStore(t)
			ctx := context.Background()
			path := writePeriodFile(t, s, core.Day, "2025-03-07", tt.content)

			_, err := s.Read(ctx, core.Day, "2025-03-07")
			assert.ErrorIs(t, err, core.ErrCorruptPeriodFile)

			_, err = s.Increment(ctx, core.Day, "2025-03-07", anna, "mts_super")
			assert.ErrorIs(t, err, core.ErrCorruptPeriodFile)

			raw, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.Equal(t, tt.content, string(raw), "corrupt file must not be overwritten")
		})
	}
}

func TestPeriodStore_MissingSalesFieldIsEmpty(t *testing.T) {
	s := newOpenStore(t)
	writePeriodFile(t, s, core.Month, "2025-03", `{"42": {"username": "anna", "full_name": "Anna K"}}`)

	n, err := s.Increment(context.Background(), core.Month, "2025-03", anna, "membrane")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestPeriodStore_ResetScoping(t *testing.T) {
	s := newOpenStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := s.Increment(ctx, core.Day, "2025-03-07", anna, "mts_super")
		require.NoError(t, err)
	}
	_, err := s.Increment(ctx, core.Day, "2025-03-07", boris, "membrane")
	require.NoError(t, err)

	// Resetting one operator leaves the other untouched
	require.NoError(t, s.ResetOperator(ctx, core.Day, "2025-03-07", anna.ID))
	data, err := s.Read(ctx, core.Day, "2025-03-07")
	require.NoError(t, err)
	assert.Empty(t, data["42"].Sales)
	assert.Equal(t, "Anna K", data["42"].FullName)
	assert.Equal(t, int64(1), data["7"].Sales["membrane"])

	// Unknown operator and missing file are no-ops
	require.NoError(t, s.ResetOperator(ctx, core.Day, "2025-03-07", 999))
	require.NoError(t, s.ResetOperator(ctx, core.Day, "2024-01-01", anna.ID))
	assert.NoFileExists(t, s.Path(core.Day, "2024-01-01"))

	// Resetting without an operator removes the file
	require.NoError(t, s.RemovePeriod(ctx, core.Day, "2025-03-07"))
	assert.NoFileExists(t, s.Path(core.Day, "2025-03-07"))
	require.NoError(t, s.RemovePeriod(ctx, core.Day, "2025-03-07"))
}

func TestPeriodStore_ListPeriods(t *testing.T) {
	s := newOpenStore(t)
	for _, label := range []string{"2025-03-01", "2025-03-07", "2024-12-31"} {
		writePeriodFile(t, s, core.Day, label, `{}`)
	}
	dir := filepath.Join(s.Root(), "daily")
	for _, junk := range []string{"sales_2025-03-07.json.backup", ".sales_2025-03-08.json.tmp-1", "sales_bad.json", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, junk), []byte(`{}`), 0o644))
	}
	writePeriodFile(t, s, core.Month, "2025-02", `{}`)

	labels, err := s.ListPeriods(core.Day)
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-03-07", "2025-03-01", "2024-12-31"}, labels)

	labels, err = s.ListPeriods(core.Month)
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-02"}, labels)

	_, err = s.ListPeriods("week")
	assert.ErrorIs(t, err, core.ErrInvalidGranularity)
}

func TestWriteAtomic_FailureLeavesNoTempFile(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "sales_2025-03-07.json")

	// a non-empty directory at the target path makes the rename fail
	require.NoError(t, os.MkdirAll(filepath.Join(target, "child"), 0o755))

	err := writeAtomic(target, []byte(`{}`))
	require.ErrorIs(t, err, core.ErrPersistenceFailure)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp file should be cleaned up")
	info, err := os.Stat(filepath.Join(target, "child"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	err = writeAtomic(filepath.Join(dir, "missing", "x.json"), []byte(`{}`))
	assert.ErrorIs(t, err, core.ErrPersistenceFailure)
}

func TestPeriodStore_IncrementValidation(t *testing.T) {
	s := newOpenStore(t)
	ctx := context.Background()

	_, err := s.Increment(ctx, core.Day, "2025-03-07", anna, "")
	assert.ErrorIs(t, err, core.ErrEmptySaleKey)

	_, err = s.Increment(ctx, core.Day, "2025-03-07", core.Operator{}, "x")
	assert.ErrorIs(t, err, core.ErrInvalidOperator)

	_, err = s.Increment(ctx, core.Month, "2025-03-07", anna, "x")
	assert.ErrorIs(t, err, core.ErrInvalidPeriod)
}

// readOnlyTemp hands writeAtomic a temp file it cannot write to.
func readOnlyTemp(dir, pattern string) (*os.File, error) {
	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return nil, err
	}
	name := f.Name()
	if err := f.Close(); err != nil {
		return nil, err
	}
	return os.Open(name)
}

func TestPeriodStore_FailedIncrementKeepsPriorFile(t *testing.T) {
	s := newOpenStore(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := s.Increment(ctx, core.Day, "2025-03-07", anna, "mts_super")
		require.NoError(t, err)
	}
	path := s.Path(core.Day, "2025-03-07")
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	createTemp = readOnlyTemp
	t.Cleanup(func() { createTemp = os.CreateTemp })

	_, err = s.Increment(ctx, core.Day, "2025-03-07", anna, "mts_super")
	require.ErrorIs(t, err, core.ErrPersistenceFailure)
	_, err = s.Increment(ctx, core.Day, "2025-03-07", boris, "membrane")
	require.ErrorIs(t, err, core.ErrPersistenceFailure)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after, "period file must be byte-for-byte unchanged")

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp files should be cleaned up")

	createTemp = os.CreateTemp
	n, err := s.Increment(ctx, core.Day, "2025-03-07", anna, "mts_super")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestPeriodStore_Decrement(t *testing.T) {
	s := newOpenStore(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := s.Increment(ctx, core.Month, "2025-03", anna, "membrane")
		require.NoError(t, err)
	}
	_, err := s.Increment(ctx, core.Month, "2025-03", anna, "mts_super")
	require.NoError(t, err)

	n, err := s.Decrement(ctx, core.Month, "2025-03", anna.ID, "membrane")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = s.Decrement(ctx, core.Month, "2025-03", anna.ID, "mts_super")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	rec, err := s.ReadOperator(ctx, core.Month, "2025-03", anna.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"membrane": 1}, rec.Sales)

	// nothing left to take back
	for _, tc := range []struct {
		id  core.OperatorID
		key string
	}{{anna.ID, "mts_super"}, {boris.ID, "membrane"}} {
		n, err = s.Decrement(ctx, core.Month, "2025-03", tc.id, tc.key)
		require.NoError(t, err)
		assert.Equal(t, int64(0), n)
	}
	n, err = s.Decrement(ctx, core.Month, "2024-01", anna.ID, "membrane")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
	assert.NoFileExists(t, s.Path(core.Month, "2024-01"))

	closed, err := NewPeriodStore(t.TempDir())
	require.NoError(t, err)
	_, err = closed.Decrement(ctx, core.Month, "2025-03", anna.ID, "membrane")
	assert.ErrorIs(t, err, core.ErrStoreNotReady)
}

func TestPeriodStore_UnreadableFileErrorNamesPathOnce(t *testing.T) {
	s := newOpenStore(t)
	path := s.Path(core.Month, "2025-03")
	require.NoError(t, os.Mkdir(path, 0o755))

	_, err := s.Read(context.Background(), core.Month, "2025-03")
	require.ErrorIs(t, err, core.ErrCorruptPeriodFile)
	assert.Equal(t, 1, strings.Count(err.Error(), path), err.Error())
}
