package pkg

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type spillEvent struct {
	Name   string
	Addr   uint64
	Offset int64
}

func TestFileSpill(t *testing.T) {
	t.Run("scratch file lands in the given directory", func(t *testing.T) {
		dir := t.TempDir()

		spill, err := NewFileSpill[int](dir)
		require.NoError(t, err)
		defer spill.Close()

		require.Equal(t, dir, filepath.Dir(spill.Path()))
	})

	t.Run("empty directory falls back to the system temp dir", func(t *testing.T) {
		spill, err := NewFileSpill[int]("")
		require.NoError(t, err)
		defer spill.Close()

		require.Equal(t, os.TempDir(), filepath.Dir(spill.Path()))
	})

	t.Run("missing directory fails", func(t *testing.T) {
		_, err := NewFileSpill[int](filepath.Join(t.TempDir(), "absent"))
		require.Error(t, err)
	})

	t.Run("append then range replays items in order", func(t *testing.T) {
		spill, err := NewFileSpill[spillEvent](t.TempDir())
		require.NoError(t, err)
		defer spill.Close()

		want := []spillEvent{
			{Name: "sum", Offset: 1200},
			{Name: "sub", Offset: 2400},
			{Addr: 0x401136, Offset: 3600},
		}
		for _, event := range want {
			require.NoError(t, spill.Append(event))
		}

		require.Equal(t, uint64(len(want)), spill.Len())

		var got []spillEvent

		err = spill.Range(func(index uint64, item spillEvent) error {
			require.Equal(t, uint64(len(got)), index)
			got = append(got, item)
			return nil
		})
		require.NoError(t, err)
		require.Equal(t, want, got)
	})

	t.Run("range on an empty spill visits nothing", func(t *testing.T) {
		spill, err := NewFileSpill[int](t.TempDir())
		require.NoError(t, err)
		defer spill.Close()

		count := 0
		err = spill.Range(func(uint64, int) error {
			count++
			return nil
		})

		require.NoError(t, err)
		require.Zero(t, count)
	})

	t.Run("range stops at the first callback error", func(t *testing.T) {
		spill, err := NewFileSpill[int](t.TempDir())
		require.NoError(t, err)
		defer spill.Close()

		for i := range 3 {
			require.NoError(t, spill.Append(i))
		}

		stop := errors.New("enough")
		count := 0

		err = spill.Range(func(index uint64, _ int) error {
			count++
			if index == 1 {
				return stop
			}
			return nil
		})

		require.ErrorIs(t, err, stop)
		require.Equal(t, 2, count)
	})

	t.Run("range can replay more than once", func(t *testing.T) {
		spill, err := NewFileSpill[int](t.TempDir())
		require.NoError(t, err)
		defer spill.Close()

		for i := range 5 {
			require.NoError(t, spill.Append(i))
		}

		for range 2 {
			sum := 0
			require.NoError(t, spill.Range(func(_ uint64, item int) error {
				sum += item
				return nil
			}))
			require.Equal(t, 10, sum)
		}
	})

	t.Run("close removes the scratch file", func(t *testing.T) {
		spill, err := NewFileSpill[int](t.TempDir())
		require.NoError(t, err)
		require.NoError(t, spill.Append(1))

		path := spill.Path()
		require.NoError(t, spill.Close())

		_, err = os.Stat(path)
		require.True(t, os.IsNotExist(err))
	})

	t.Run("closed spill rejects append and range", func(t *testing.T) {
		spill, err := NewFileSpill[int](t.TempDir())
		require.NoError(t, err)
		require.NoError(t, spill.Close())

		require.Error(t, spill.Append(1))
		require.Error(t, spill.Range(func(uint64, int) error { return nil }))
	})

	t.Run("closing twice is harmless", func(t *testing.T) {
		spill, err := NewFileSpill[int](t.TempDir())
		require.NoError(t, err)

		require.NoError(t, spill.Close())
		require.NoError(t, spill.Close())
	})

	t.Run("large spill survives the round trip", func(t *testing.T) {
		spill, err := NewFileSpill[spillEvent](t.TempDir())
		require.NoError(t, err)
		defer spill.Close()

		n := 10000
		for i := range n {
			require.NoError(t, spill.Append(spillEvent{Name: "fn", Offset: int64(i)}))
		}

		var last int64 = -1
		count := 0

		require.NoError(t, spill.Range(func(_ uint64, item spillEvent) error {
			require.Equal(t, last+1, item.Offset)
			last = item.Offset
			count++
			return nil
		}))
		require.Equal(t, n, count)
	})
}

// BenchmarkSpillAppend measures the cost of spilling one item.
func BenchmarkSpillAppend(b *testing.B) {
	spill, err := NewFileSpill[spillEvent](b.TempDir())
	if err != nil {
		b.Fatalf("failed to create spill: %v", err)
	}
	defer spill.Close()

	event := spillEvent{Name: "sum", Addr: 0x401136, Offset: 1200}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = spill.Append(event)
	}
}

// BenchmarkSpillRange measures a full replay of 1000 items.
func BenchmarkSpillRange(b *testing.B) {
	spill, err := NewFileSpill[spillEvent](b.TempDir())
	if err != nil {
		b.Fatalf("failed to create spill: %v", err)
	}
	defer spill.Close()

	for i := range 1000 {
		_ = spill.Append(spillEvent{Name: "fn", Offset: int64(i)})
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = spill.Range(func(uint64, spillEvent) error {
			return nil
		})
	}
}

// FuzzSpillRoundTrip fuzzes a single append-and-replay cycle.
func FuzzSpillRoundTrip(f *testing.F) {
	f.Add("", uint64(0), int64(0))
	f.Add("sum", uint64(0x401136), int64(1200))
	f.Add("_ZN4CalcC1Ev", uint64(1), int64(-1))

	f.Fuzz(func(t *testing.T, name string, addr uint64, offset int64) {
		spill, err := NewFileSpill[spillEvent](t.TempDir())
		if err != nil {
			t.Skipf("setup failed: %v", err)
		}
		defer spill.Close()

		want := spillEvent{Name: name, Addr: addr, Offset: offset}
		if err := spill.Append(want); err != nil {
			t.Fatalf("append failed: %v", err)
		}

		seen := false

		err = spill.Range(func(index uint64, item spillEvent) error {
			if index != 0 {
				t.Fatalf("unexpected index %d", index)
			}
			if item != want {
				t.Fatalf("item mismatch: expected %+v, got %+v", want, item)
			}
			seen = true
			return nil
		})
		if err != nil {
			t.Fatalf("range failed: %v", err)
		}

		if !seen {
			t.Fatal("item was not replayed")
		}
	})
}
