package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sales/internal/catalog"
	"sales/internal/core"
)

func newMigrationFixture(t *testing.T, opts ...MigratorOption) (*PeriodStore, *Migrator) {
	t.Helper()
	s, err := NewPeriodStore(t.TempDir())
	require.NoError(t, err)
	return s, NewMigrator(s, catalog.NewNormalizer(catalog.Default()), opts...)
}

func readSales(t *testing.T, s *PeriodStore, g core.Granularity, label, id string) map[string]int64 {
	t.Helper()
	raw, err := os.ReadFile(s.Path(g, label))
	require.NoError(t, err)
	data, err := decodePeriod(raw)
	require.NoError(t, err)
	return data[id].Sales
}

func TestMigrator_NoDoubleCounting(t *testing.T) {
	s, m := newMigrationFixture(t)
	original := `{"42": {"username": "anna", "full_name": "Anna K", "sales": {"mts_more_1 Месяц": 3, "mts_more_1month": 2}}}`
	path := writePeriodFile(t, s, core.Month, "2025-03", original)

	report, err := m.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, map[string]int64{"mts_more_1month": 5}, readSales(t, s, core.Month, "2025-03", "42"))
	assert.Equal(t, 1, report.Rewritten)
	assert.Equal(t, 1, report.MergedKeys)

	backup, err := os.ReadFile(path + ".backup")
	require.NoError(t, err)
	assert.Equal(t, original, string(backup))
}

func TestMigrator_MalformedKeyRepair(t *testing.T) {
	s, m := newMigrationFixture(t)
	original := `{"42": {"sales": {"yandex_x5_Новый клиент": 1}}}`
	path := writePeriodFile(t, s, core.Day, "2025-03-07", original)

	_, err := m.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, map[string]int64{"yandex_x5_new": 1}, readSales(t, s, core.Day, "2025-03-07", "42"))
	backup, err := os.ReadFile(path + ".backup")
	require.NoError(t, err)
	assert.Equal(t, original, string(backup))
}

func TestMigrator_SecondRunIsNoop(t *testing.T) {
	s, m := newMigrationFixture(t)
	path := writePeriodFile(t, s, core.Day, "2025-03-07",
		`{"42": {"sales": {"1 Месяц": 1, "Абонемент": 2, "membrane": 4, "legacy": 1}}}`)

	first, err := m.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, first.Rewritten)
	afterFirst, err := os.ReadFile(path)
	require.NoError(t, err)

	require.NoError(t, os.Remove(path+".backup"))

	second, err := m.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, second.Rewritten)
	assert.Equal(t, 1, second.Unchanged)

	afterSecond, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, string(afterFirst), string(afterSecond))
	assert.NoFileExists(t, path+".backup", "second run must not create a backup")
}

func TestMigrator_CanonicalFileUntouched(t *testing.T) {
	s, m := newMigrationFixture(t)
	original := `{"42":{"sales":{"mts_super":2,"membrane":1}}}`
	path := writePeriodFile(t, s, core.Day, "2025-03-07", original)
	before, err := os.Stat(path)
	require.NoError(t, err)

	report, err := m.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Unchanged)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, original, string(raw), "formatting must not churn")
	after, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, before.ModTime(), after.ModTime())
	assert.NoFileExists(t, path+".backup")
}

func TestMigrator_CorruptFileIsSkipped(t *testing.T) {
	s, m := newMigrationFixture(t)
	bad := writePeriodFile(t, s, core.Day, "2025-03-06", `{"42": {"sales": `)
	writePeriodFile(t, s, core.Day, "2025-03-07", `{"42": {"sales": {"mts_real_Абонемент": 1}}}`)
	writePeriodFile(t, s, core.Month, "2025-03", `{"42": {"sales": {"mts_real_Абонемент": 1}}}`)

	report, err := m.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Failures, 1)
	assert.Equal(t, bad, report.Failures[0].Path)
	assert.Equal(t, 3, report.Scanned)
	assert.Equal(t, 2, report.Rewritten)
	assert.Equal(t, map[string]int64{"mts_real_subscription": 1}, readSales(t, s, core.Month, "2025-03", "42"))
	assert.NoFileExists(t, bad+".backup")
	assert.True(t, s.IsOpen())
}

func TestMigrator_BackupKeepsNewestSnapshot(t *testing.T) {
	s, m := newMigrationFixture(t, WithBackupSuffix(".bak"))
	path := writePeriodFile(t, s, core.Day, "2025-03-07", `{"42": {"sales": {"1 Месяц": 1}}}`)
	require.NoError(t, os.WriteFile(path+".bak", []byte("stale snapshot"), 0o644))

	_, err := m.Run(context.Background())
	require.NoError(t, err)

	backup, err := os.ReadFile(path + ".bak")
	require.NoError(t, err)
	assert.Equal(t, `{"42": {"sales": {"1 Месяц": 1}}}`, string(backup))
	assert.Equal(t, map[string]int64{"mts_real_1month": 1}, readSales(t, s, core.Day, "2025-03-07", "42"))
}

func TestMigrator_UnresolvedKeysAreReportedNotInvented(t *testing.T) {
	s, m := newMigrationFixture(t)
	writePeriodFile(t, s, core.Day, "2025-03-07", `{"42": {"sales": {"tele2": 2}}, "7": {"sales": {"tele2": 1, "mts_super": 1}}}`)

	report, err := m.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, map[string]int64{"tele2": 3}, report.Unresolved)
	assert.Equal(t, 0, report.Rewritten)
	assert.Equal(t, map[string]int64{"tele2": 1, "mts_super": 1}, readSales(t, s, core.Day, "2025-03-07", "7"))
}

func TestMigrator_DryRun(t *testing.T) {
	s, m := newMigrationFixture(t, WithDryRun(true))
	original := `{"42": {"sales": {"mts_more_1 Месяц": 3}}}`
	path := writePeriodFile(t, s, core.Month, "2025-03", original)

	report, err := m.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, report.DryRun)
	assert.Equal(t, 1, report.Rewritten)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, original, string(raw))
	assert.NoFileExists(t, path+".backup")
	assert.False(t, s.IsOpen(), "dry run must not open the store")
}

func TestMigrator_CancelledRunKeepsStoreClosed(t *testing.T) {
	s, m := newMigrationFixture(t)
	writePeriodFile(t, s, core.Day, "2025-03-07", `{}`)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, s.IsOpen())
}

func TestMigrator_EmptyStoreOpens(t *testing.T) {
	s, m := newMigrationFixture(t)

	report, err := m.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Scanned)
	assert.True(t, s.IsOpen())

	entries, err := os.ReadDir(filepath.Join(s.Root(), "daily"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}
