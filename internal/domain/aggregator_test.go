package domain

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"funcov.dev/pkg/funcov/internal/adapter"
	m "funcov.dev/pkg/funcov/internal/model"
)

func testRunLog(target m.Path, pid int, started int64, events []m.CallEvent) m.RunLog {
	return m.RunLog{
		Identity: m.BinaryIdentity{Target: target, Digest: "0123456789abcdef"},
		PID:      pid,
		Started:  time.Unix(0, started),
		Symbols:  calcSymbolSet(),
		Events:   events,
	}
}

func writeRunLog(t *testing.T, store adapter.RunLogStore, dir m.Path, log m.RunLog) {
	t.Helper()

	_, err := store.Write(dir, log)
	require.NoError(t, err)
}

func functionStatus(t *testing.T, record m.CoverageRecord, name string) m.CallStatus {
	t.Helper()

	for _, fn := range record.Functions {
		if fn.Name == name {
			return fn.Status
		}
	}

	t.Fatalf("function %q not in record", name)

	return ""
}

func TestAggregator_Aggregate(t *testing.T) {
	store := adapter.NewLocalRunLogStore()
	dir := m.Path(t.TempDir())

	writeRunLog(t, store, dir, testRunLog("/opt/bin/calc", 100, 1000, []m.CallEvent{
		{Name: "sum"},
		{Addr: 0x401025}, // inside sub
	}))
	writeRunLog(t, store, dir, testRunLog("/opt/bin/calc", 101, 2000, []m.CallEvent{
		{Name: "sum"},
		{Name: "mystery"},
		{Addr: 0x999999},
		{Addr: 0x999999},
	}))

	records, err := NewAggregator(store).Aggregate(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, records, 1)

	record := records[0]
	assert.Equal(t, "calc", record.Identity.Name())
	assert.Equal(t, "0123456789abcdef", record.Identity.Digest)
	assert.Equal(t, 2, record.Runs)
	assert.Equal(t, 4, record.Total())
	assert.Equal(t, 2, record.Called())
	assert.Equal(t, 1, record.IgnoredDuplicates)

	assert.Equal(t, m.StatusCalled, functionStatus(t, record, "sum"))
	assert.Equal(t, m.StatusCalled, functionStatus(t, record, "sub"))
	assert.Equal(t, m.StatusUncalled, functionStatus(t, record, "mult"))
	assert.Equal(t, m.StatusUncalled, functionStatus(t, record, "div_op(int, int)"))

	// "mystery" and the repeated unknown address count once each.
	assert.Equal(t, 2, record.Unresolved)
}

func TestAggregator_FunctionsKeepAddressOrder(t *testing.T) {
	store := adapter.NewLocalRunLogStore()
	dir := m.Path(t.TempDir())

	writeRunLog(t, store, dir, testRunLog("/opt/bin/calc", 100, 1000, nil))

	records, err := NewAggregator(store).Aggregate(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, records, 1)

	names := make([]string, 0, len(records[0].Functions))
	for _, fn := range records[0].Functions {
		names = append(names, fn.Name)
	}

	assert.Equal(t, []string{"sum", "sub", "mult", "div_op(int, int)"}, names)
}

func TestAggregator_MultipleBinaries(t *testing.T) {
	store := adapter.NewLocalRunLogStore()
	dir := m.Path(t.TempDir())

	writeRunLog(t, store, dir, testRunLog("/opt/bin/zeta", 100, 1000, []m.CallEvent{{Name: "sum"}}))
	writeRunLog(t, store, dir, testRunLog("/opt/bin/alpha", 101, 2000, nil))

	records, err := NewAggregator(store).Aggregate(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, records, 2)

	// Records come out ordered by binary name.
	assert.Equal(t, "alpha", records[0].Identity.Name())
	assert.Equal(t, "zeta", records[1].Identity.Name())
	assert.Equal(t, 0, records[0].Called())
	assert.Equal(t, 1, records[1].Called())
}

func TestAggregator_UnionsSymbolUniverses(t *testing.T) {
	store := adapter.NewLocalRunLogStore()
	dir := m.Path(t.TempDir())

	writeRunLog(t, store, dir, testRunLog("/opt/bin/calc", 100, 1000, nil))

	widened := testRunLog("/opt/bin/calc", 101, 2000, []m.CallEvent{{Name: "extra"}})
	widened.Symbols.Symbols = append(widened.Symbols.Symbols,
		m.Symbol{Name: "extra", Start: 0x401080, End: 0x4010a0})
	writeRunLog(t, store, dir, widened)

	records, err := NewAggregator(store).Aggregate(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, records, 1)

	record := records[0]
	assert.Equal(t, 5, record.Total())
	assert.Equal(t, m.StatusCalled, functionStatus(t, record, "extra"))
	assert.Zero(t, record.Unresolved)
}

func TestAggregator_SkipsCorruptLogs(t *testing.T) {
	store := adapter.NewLocalRunLogStore()
	dir := m.Path(t.TempDir())

	writeRunLog(t, store, dir, testRunLog("/opt/bin/calc", 100, 1000, []m.CallEvent{{Name: "sum"}}))

	corrupt := filepath.Join(string(dir), "run_999_3000.log")
	require.NoError(t, os.WriteFile(corrupt, []byte("not a run log\n"), 0o644))

	records, err := NewAggregator(store).Aggregate(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 1, records[0].Runs)
}

func TestAggregator_MissingDirectory(t *testing.T) {
	store := adapter.NewLocalRunLogStore()

	_, err := NewAggregator(store).Aggregate(context.Background(), m.Path(filepath.Join(t.TempDir(), "nope")))
	require.ErrorIs(t, err, m.ErrNotFound)
}

func TestAggregator_EmptyDirectory(t *testing.T) {
	store := adapter.NewLocalRunLogStore()

	records, err := NewAggregator(store).Aggregate(context.Background(), m.Path(t.TempDir()))
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestAggregator_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewAggregator(adapter.NewLocalRunLogStore()).Aggregate(ctx, m.Path(t.TempDir()))
	require.ErrorIs(t, err, context.Canceled)
}
