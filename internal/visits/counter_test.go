package visits

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

type failingStore struct {
	getErr error
	setErr error
	value  string
	sets   int
}

func (f *failingStore) Get(ctx context.Context, key string) (string, bool, error) {
	if f.getErr != nil {
		return "", false, f.getErr
	}
	return f.value, f.value != "", nil
}

func (f *failingStore) Set(ctx context.Context, key, value string) error {
	f.sets++
	return f.setErr
}

func TestRegisterVisit_CountsUp(t *testing.T) {
	ctx := context.Background()
	c := NewCounter(NewMemoryStore(), nil)

	for want := 1; want <= 4; want++ {
		if got := c.RegisterVisit(ctx, "card-1"); got != want {
			t.Fatalf("Expected visit %d, got %d", want, got)
		}
	}

	if got := c.RegisterVisit(ctx, "card-2"); got != 1 {
		t.Errorf("Expected other card to start at 1, got %d", got)
	}
}

func TestRegisterVisit_ReturnsPersistedPlusOne(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	_ = store.Set(ctx, Key("card-1"), "2")

	c := NewCounter(store, nil)
	if got := c.RegisterVisit(ctx, "card-1"); got != 3 {
		t.Errorf("Expected 3, got %d", got)
	}

	v, ok, _ := store.Get(ctx, "visits:card-1")
	if !ok || v != "3" {
		t.Errorf("Expected stored value 3, got %q (present=%v)", v, ok)
	}
}

func TestRegisterVisit_DegradesToFirstVisit(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name  string
		store Store
	}{
		{"nil store", nil},
		{"read fails", &failingStore{getErr: ErrUnavailable}},
		{"write fails", &failingStore{value: "4", setErr: errors.New("quota exceeded")}},
		{"corrupt value", &failingStore{value: "lots"}},
		{"negative value", &failingStore{value: "-3"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCounter(tt.store, nil)
			if got := c.RegisterVisit(ctx, "card-1"); got != 1 {
				t.Errorf("Expected 1, got %d", got)
			}
		})
	}
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "local", "visits.db")

	store, err := OpenSQLiteStore(path)
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	c := NewCounter(store, nil)
	c.RegisterVisit(ctx, "card-1")
	c.RegisterVisit(ctx, "card-1")
	store.Close()

	store, err = OpenSQLiteStore(path)
	if err != nil {
		t.Fatalf("Failed to reopen store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	c = NewCounter(store, nil)
	if got := c.RegisterVisit(ctx, "card-1"); got != 3 {
		t.Errorf("Expected 3 after reopen, got %d", got)
	}
}

func TestSQLiteStore_MissingKey(t *testing.T) {
	store, err := OpenSQLiteStore(filepath.Join(t.TempDir(), "visits.db"))
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	_, ok, err := store.Get(context.Background(), Key("nope"))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if ok {
		t.Error("Expected missing key")
	}
}

func TestSQLiteStore_ClosedIsUnavailable(t *testing.T) {
	store, err := OpenSQLiteStore(filepath.Join(t.TempDir(), "visits.db"))
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	store.Close()

	_, _, err = store.Get(context.Background(), Key("card-1"))
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("Expected ErrUnavailable, got %v", err)
	}

	if got := NewCounter(store, nil).RegisterVisit(context.Background(), "card-1"); got != 1 {
		t.Errorf("Expected degraded count 1, got %d", got)
	}
}

func TestOpenSQLiteStore_EmptyPath(t *testing.T) {
	if _, err := OpenSQLiteStore(""); err == nil {
		t.Error("Expected error for empty path")
	}
}
