package checkpoint

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/franz/djsync/internal/datectx"
	"github.com/franz/djsync/internal/util"
	"github.com/spf13/afero"
)

func TestParse(t *testing.T) {
	tests := []struct {
		line    string
		want    Checkpoint
		wantErr bool
	}{
		{"2025/05 may/20, 1747699200", Checkpoint{"2025/05 may/20", 1747699200}, false},
		{"2025/05 may/20,1747699200\n", Checkpoint{"2025/05 may/20", 1747699200}, false},
		{"no separator", Checkpoint{}, true},
		{"2025/05 may/20, soon", Checkpoint{}, true},
	}
	for _, tt := range tests {
		got, err := Parse(tt.line)
		if tt.wantErr {
			if err == nil {
				t.Errorf("Parse(%q) expected error", tt.line)
			}
			continue
		}
		if err != nil {
			t.Fatalf("Parse(%q): %v", tt.line, err)
		}
		if *got != tt.want {
			t.Errorf("Parse(%q) = %+v, want %+v", tt.line, got, tt.want)
		}
	}
}

func storesUnderTest(t *testing.T) map[string]Store {
	mem, err := NewMemoryStore("")
	if err != nil {
		t.Fatal(err)
	}
	return map[string]Store{
		"file":   NewFileStoreFs(afero.NewMemMapFs(), "/state/sync_state.txt"),
		"memory": mem,
	}
}

func TestIsProcessed(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			if ok, err := store.IsProcessed("2025/05 may/19"); err != nil || ok {
				t.Fatalf("empty store IsProcessed = %v, %v", ok, err)
			}

			if err := store.Save("2025/05 may/20"); err != nil {
				t.Fatalf("Save: %v", err)
			}

			tests := map[string]bool{
				"2025/05 may/19":      true,
				"2025/05 may/20":      true,
				"2025/05 may/21":      false,
				"2024/12 december/31": true,
			}
			for ctx, want := range tests {
				got, err := store.IsProcessed(ctx)
				if err != nil {
					t.Fatalf("IsProcessed(%q): %v", ctx, err)
				}
				if got != want {
					t.Errorf("IsProcessed(%q) = %v, want %v", ctx, got, want)
				}
			}
		})
	}
}

func TestSaveOverwrites(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			store.Save("2025/05 may/20")
			store.Save("2025/05 may/18")

			cp, err := store.Load()
			if err != nil {
				t.Fatal(err)
			}
			want, _ := datectx.ToTimestamp("2025/05 may/18")
			if cp == nil || cp.Context != "2025/05 may/18" || cp.Timestamp != want {
				t.Errorf("Load = %+v, want last write", cp)
			}
		})
	}
}

func TestSaveRejectsInvalidContext(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			if err := store.Save("not a context"); !errors.Is(err, datectx.ErrInvalidContext) {
				t.Errorf("Save error = %v, want ErrInvalidContext", err)
			}
			if cp, _ := store.Load(); cp != nil {
				t.Errorf("invalid save changed checkpoint: %+v", cp)
			}
		})
	}
}

func TestFileStoreFormat(t *testing.T) {
	fsys := afero.NewMemMapFs()
	store := NewFileStoreFs(fsys, "/state/sync_state.txt")

	if cp, err := store.Load(); err != nil || cp != nil {
		t.Fatalf("missing file Load = %+v, %v", cp, err)
	}

	if err := store.Save("2024/01 january/02"); err != nil {
		t.Fatal(err)
	}
	data, err := afero.ReadFile(fsys, "/state/sync_state.txt")
	if err != nil {
		t.Fatal(err)
	}
	if got := string(data); got != "2024/01 january/02, 1704153600" {
		t.Errorf("file content = %q", got)
	}

	entries, _ := afero.ReadDir(fsys, "/state")
	if len(entries) != 1 {
		t.Errorf("temp files left behind: %d entries", len(entries))
	}
}

func TestFileStoreOnDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "sync_state.txt")
	store := NewFileStore(path)

	if err := store.Save("2023/03 march/04"); err != nil {
		t.Fatal(err)
	}
	reopened := NewFileStore(path)
	cp, err := reopened.Load()
	if err != nil || cp == nil || cp.Context != "2023/03 march/04" {
		t.Errorf("reopened Load = %+v, %v", cp, err)
	}
}

func TestFileStoreLock(t *testing.T) {
	fsys := afero.NewMemMapFs()
	first := NewFileStoreFs(fsys, "/state/sync_state.txt")
	second := NewFileStoreFs(fsys, "/state/sync_state.txt")

	if err := first.Lock(); err != nil {
		t.Fatalf("first Lock: %v", err)
	}
	if err := second.Lock(); !errors.Is(err, util.ErrLocked) {
		t.Fatalf("second Lock error = %v, want ErrLocked", err)
	}

	// unlocking a store that never held the lock is a no-op
	if err := second.Unlock(); err != nil {
		t.Fatal(err)
	}
	if err := second.Lock(); !errors.Is(err, util.ErrLocked) {
		t.Fatal("lock released by a store that did not hold it")
	}

	if err := first.Unlock(); err != nil {
		t.Fatal(err)
	}
	if err := second.Lock(); err != nil {
		t.Fatalf("Lock after release: %v", err)
	}
	second.Unlock()
}

func TestMemoryStoreSaves(t *testing.T) {
	store, err := NewMemoryStore("2025/05 may/19")
	if err != nil {
		t.Fatal(err)
	}
	if ok, _ := store.IsProcessed("2025/05 may/19"); !ok {
		t.Error("seeded context should be processed")
	}
	if len(store.Saves()) != 0 {
		t.Errorf("seeding should not count as a save: %v", store.Saves())
	}

	store.Save("2025/05 may/20")
	store.Save("2025/05 may/21")
	saves := store.Saves()
	if len(saves) != 2 || saves[0] != "2025/05 may/20" || saves[1] != "2025/05 may/21" {
		t.Errorf("Saves = %v", saves)
	}
}
