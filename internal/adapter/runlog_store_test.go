package adapter

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	m "funcov.dev/pkg/funcov/internal/model"
	"funcov.dev/pkg/funcov/pkg"
)

func sampleRunLog() m.RunLog {
	return m.RunLog{
		FormatVersion: 1,
		Identity:      m.BinaryIdentity{Target: "/usr/local/bin/calc", Digest: "abc123"},
		PID:           4242,
		Started:       time.Unix(0, 1755801600123456789),
		Symbols: m.SymbolSet{
			Symbols: []m.Symbol{
				{Name: "sum", Start: 0x401000, End: 0x401020},
				{Name: "div_op(int, int)", Start: 0x401020, End: 0x401040},
			},
			Ignored: []string{"helper"},
		},
		Events: []m.CallEvent{
			{Name: "sum", Offset: 1500 * time.Nanosecond},
			{Name: "div_op(int, int)", Offset: 2 * time.Microsecond},
			{Addr: 0x401022, Offset: 3 * time.Microsecond},
		},
		ExitCode:      2,
		SkippedEvents: 1,
	}
}

func TestLocalRunLogStore_RoundTrip(t *testing.T) {
	dir := m.Path(t.TempDir())
	store := NewLocalRunLogStore()

	path, err := store.Write(dir, sampleRunLog())
	require.NoError(t, err)
	assert.Equal(t, "run_4242_1755801600123456789.log", filepath.Base(string(path)))

	log, err := store.Read(path)
	require.NoError(t, err)

	want := sampleRunLog()
	assert.Equal(t, want.Identity, log.Identity)
	assert.Equal(t, want.PID, log.PID)
	assert.Equal(t, want.Started.UnixNano(), log.Started.UnixNano())
	assert.Equal(t, want.Symbols.Symbols, log.Symbols.Symbols)
	assert.Equal(t, want.Symbols.Ignored, log.Symbols.Ignored)
	assert.Equal(t, want.Events, log.Events)
	assert.Equal(t, want.ExitCode, log.ExitCode)
	assert.Equal(t, want.SkippedEvents, log.SkippedEvents)
}

func TestLocalRunLogStore_WriteSpooled(t *testing.T) {
	dir := m.Path(t.TempDir())
	store := NewLocalRunLogStore()

	spill, err := pkg.NewFileSpill[m.CallEvent](t.TempDir())
	require.NoError(t, err)
	defer spill.Close()

	want := sampleRunLog()
	for _, event := range want.Events {
		require.NoError(t, spill.Append(event))
	}

	header := want
	header.Events = nil

	path, err := store.WriteSpooled(dir, header, spill)
	require.NoError(t, err)

	log, err := store.Read(path)
	require.NoError(t, err)
	assert.Equal(t, want.Events, log.Events)
}

func TestLocalRunLogStore_List(t *testing.T) {
	dir := m.Path(t.TempDir())
	store := NewLocalRunLogStore()

	second := sampleRunLog()
	second.PID = 99
	second.Started = time.Unix(0, 1755801700000000000)

	_, err := store.Write(dir, second)
	require.NoError(t, err)
	_, err = store.Write(dir, sampleRunLog())
	require.NoError(t, err)

	// Foreign files in the directory are not run logs.
	require.NoError(t, os.WriteFile(filepath.Join(string(dir), "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(string(dir), "run_dir_1.log"), 0o755))

	paths, err := store.List(dir)
	require.NoError(t, err)

	require.Len(t, paths, 2)
	assert.Equal(t, "run_4242_1755801600123456789.log", paths[0].Base())
	assert.Equal(t, "run_99_1755801700000000000.log", paths[1].Base())
}

func TestLocalRunLogStore_List_MissingDirectory(t *testing.T) {
	store := NewLocalRunLogStore()

	_, err := store.List(m.Path(filepath.Join(t.TempDir(), "absent")))

	require.Error(t, err)
	assert.ErrorIs(t, err, m.ErrNotFound)
}

func TestLocalRunLogStore_Read_CorruptHeaders(t *testing.T) {
	dir := t.TempDir()
	store := NewLocalRunLogStore()

	tests := []struct {
		name    string
		content string
	}{
		{name: "empty file", content: ""},
		{name: "foreign format", content: "some other file\n"},
		{name: "future version", content: "funcov-runlog 99\ntarget /bin/calc\ndigest abc\n"},
		{name: "missing identity", content: "funcov-runlog 1\npid 1\nstarted 5\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, "run_1_"+tt.name+".log")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))

			_, err := store.Read(m.Path(path))

			require.Error(t, err)
			assert.ErrorIs(t, err, m.ErrCorruptLog)
		})
	}
}

func TestLocalRunLogStore_Read_TruncatedRunKeepsEvents(t *testing.T) {
	dir := t.TempDir()
	store := NewLocalRunLogStore()

	// No exit trailer and one mangled call line: the run crashed mid
	// write. The readable events still count.
	content := "funcov-runlog 1\n" +
		"target /bin/calc\n" +
		"digest abc\n" +
		"pid 7\n" +
		"started 42\n" +
		"sym 401000 401020 sum\n" +
		"call 100 sum\n" +
		"call zz broken\n"

	path := filepath.Join(dir, "run_7_42.log")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	log, err := store.Read(m.Path(path))
	require.NoError(t, err)

	require.Len(t, log.Events, 1)
	assert.Equal(t, "sum", log.Events[0].Name)
	assert.Equal(t, 1, log.SkippedEvents)
	assert.Zero(t, log.ExitCode)
}
