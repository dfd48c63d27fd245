package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"simpleml/internal/ml"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestNew(t *testing.T) {
	tempDir := t.TempDir()

	store, err := New(tempDir)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	if store.db == nil {
		t.Error("Store database is nil")
	}

	dbPath := filepath.Join(tempDir, FileName)
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Database file was not created")
	}
}

func TestNew_InvalidPath(t *testing.T) {
	invalidPath := filepath.Join(t.TempDir(), "missing", "dir")

	_, err := New(invalidPath)
	if err == nil {
		t.Error("Expected error for invalid path, got nil")
	}
}

func TestStore_CloseNilDB(t *testing.T) {
	store := &Store{db: nil}
	if err := store.Close(); err != nil {
		t.Errorf("Expected no error for nil db, got: %v", err)
	}
}

func TestStore_Upload(t *testing.T) {
	store := newTestStore(t)

	upload := Upload{
		ID:        "5f0c7d2e-1111-4b6a-9d7e-000000000001",
		Filename:  "kelas5A.csv",
		CreatedAt: time.Now().UTC(),
		Data:      []byte("NAMA,UJIAN1\nAisyah,80\n"),
	}
	if err := store.SaveUpload(upload); err != nil {
		t.Fatalf("Failed to save upload: %v", err)
	}

	got, err := store.GetUpload(upload.ID)
	if err != nil {
		t.Fatalf("Failed to get upload: %v", err)
	}
	if got.Filename != upload.Filename {
		t.Errorf("Expected filename %s, got %s", upload.Filename, got.Filename)
	}
	if string(got.Data) != string(upload.Data) {
		t.Errorf("Upload data changed: %q", got.Data)
	}
	if !got.CreatedAt.Equal(upload.CreatedAt) {
		t.Errorf("Expected created at %v, got %v", upload.CreatedAt, got.CreatedAt)
	}

	n, err := store.Count()
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected 1 stored upload, got %d", n)
	}
}

func TestStore_EmptyID(t *testing.T) {
	store := newTestStore(t)

	if err := store.SaveUpload(Upload{}); err == nil {
		t.Error("Expected error for upload without id")
	}
	if err := store.SaveResult(Result{}); err == nil {
		t.Error("Expected error for result without id")
	}
}

func TestStore_Result(t *testing.T) {
	store := newTestStore(t)

	result := Result{
		ID:           "session-1",
		CreatedAt:    time.Now().UTC(),
		ModelVersion: "1.0.0",
		Threshold:    0.5,
		Rows:         3,
		AtRisk:       2,
		Features:     []string{"JANTINA", "GREDSPM"},
		Expected:     -0.25,
		Importance: []ml.FeatureImportance{
			{Name: "GREDSPM", MeanAbsSHAP: 0.8},
			{Name: "JANTINA", MeanAbsSHAP: 0.1},
		},
		CSV: []byte("NAMA,Risk_Level\nAisyah,Safe\n"),
	}
	if err := store.SaveResult(result); err != nil {
		t.Fatalf("Failed to save result: %v", err)
	}

	got, err := store.GetResult("session-1")
	if err != nil {
		t.Fatalf("Failed to get result: %v", err)
	}
	if got.AtRisk != 2 || got.Rows != 3 {
		t.Errorf("Unexpected counts: %+v", got)
	}
	if len(got.Importance) != 2 || got.Importance[0].Name != "GREDSPM" {
		t.Errorf("Unexpected importance: %+v", got.Importance)
	}
	if string(got.CSV) != string(result.CSV) {
		t.Errorf("Result CSV changed: %q", got.CSV)
	}
}

func TestStore_NotFound(t *testing.T) {
	store := newTestStore(t)

	if _, err := store.GetUpload("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for upload, got %v", err)
	}
	if _, err := store.GetResult("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for result, got %v", err)
	}
}

func TestStore_PurgeExpired(t *testing.T) {
	store := newTestStore(t)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	sessions := map[string]time.Time{
		"old":    now.Add(-2 * time.Hour),
		"recent": now.Add(-10 * time.Minute),
	}
	for id, created := range sessions {
		if err := store.SaveUpload(Upload{ID: id, CreatedAt: created, Data: []byte("a\n1\n")}); err != nil {
			t.Fatalf("Failed to save upload: %v", err)
		}
		if err := store.SaveResult(Result{ID: id, CreatedAt: created}); err != nil {
			t.Fatalf("Failed to save result: %v", err)
		}
	}

	purged, err := store.PurgeExpired(now, 30*time.Minute)
	if err != nil {
		t.Fatalf("PurgeExpired failed: %v", err)
	}
	if purged != 1 {
		t.Errorf("Expected 1 purged session, got %d", purged)
	}

	if _, err := store.GetUpload("old"); !errors.Is(err, ErrNotFound) {
		t.Error("Expected old upload to be purged")
	}
	if _, err := store.GetResult("old"); !errors.Is(err, ErrNotFound) {
		t.Error("Expected old result to be purged")
	}
	if _, err := store.GetUpload("recent"); err != nil {
		t.Errorf("Expected recent upload to survive: %v", err)
	}
	if _, err := store.GetResult("recent"); err != nil {
		t.Errorf("Expected recent result to survive: %v", err)
	}

	purged, err = store.PurgeExpired(now, 30*time.Minute)
	if err != nil {
		t.Fatalf("Second purge failed: %v", err)
	}
	if purged != 0 {
		t.Errorf("Expected nothing left to purge, got %d", purged)
	}
}

func TestStore_Reopen(t *testing.T) {
	dir := t.TempDir()

	store, err := New(dir)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	if err := store.SaveUpload(Upload{ID: "keep", CreatedAt: time.Now()}); err != nil {
		t.Fatalf("Failed to save upload: %v", err)
	}
	store.Close()

	reopened, err := New(dir)
	if err != nil {
		t.Fatalf("Failed to reopen store: %v", err)
	}
	defer reopened.Close()

	if _, err := reopened.GetUpload("keep"); err != nil {
		t.Errorf("Expected upload to survive reopen: %v", err)
	}
}
