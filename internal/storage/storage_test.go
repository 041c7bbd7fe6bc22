package storage

import (
	"os"
	"testing"

	"github.com/dgraph-io/badger/v4"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "duckchess-storage-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	opts := badger.DefaultOptions(tmpDir)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		t.Fatalf("failed to open badger: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return &Storage{db: db}
}

func TestEngineOptionsDefaults(t *testing.T) {
	s := newTestStorage(t)

	opts, err := s.LoadEngineOptions()
	if err != nil {
		t.Fatalf("LoadEngineOptions failed: %v", err)
	}
	if opts.HashMB != 64 {
		t.Errorf("expected default HashMB 64, got %d", opts.HashMB)
	}
	if opts.BookPath != "" || opts.EvalFile != "" {
		t.Errorf("expected empty BookPath/EvalFile defaults, got %+v", opts)
	}
}

func TestEngineOptionsRoundTrip(t *testing.T) {
	s := newTestStorage(t)

	want := EngineOptions{HashMB: 256, BookPath: "/books/komodo.bin", EvalFile: "/nnue/net.bin"}
	if err := s.SaveEngineOptions(want); err != nil {
		t.Fatalf("SaveEngineOptions failed: %v", err)
	}

	got, err := s.LoadEngineOptions()
	if err != nil {
		t.Fatalf("LoadEngineOptions failed: %v", err)
	}
	if got != want {
		t.Errorf("LoadEngineOptions = %+v, want %+v", got, want)
	}
}

func TestCachedWeightsMiss(t *testing.T) {
	s := newTestStorage(t)

	_, ok, err := s.LoadCachedWeights("/nnue/net.bin", 12345)
	if err != nil {
		t.Fatalf("LoadCachedWeights failed: %v", err)
	}
	if ok {
		t.Error("expected cache miss for unseen path")
	}
}

func TestCachedWeightsRoundTrip(t *testing.T) {
	s := newTestStorage(t)

	path := "/nnue/net.bin"
	modTime := int64(1700000000)
	blob := []byte{0x44, 0x4B, 0x43, 0x48, 1, 2, 3, 4}

	if err := s.CacheWeights(path, modTime, blob); err != nil {
		t.Fatalf("CacheWeights failed: %v", err)
	}

	got, ok, err := s.LoadCachedWeights(path, modTime)
	if err != nil {
		t.Fatalf("LoadCachedWeights failed: %v", err)
	}
	if !ok {
		t.Fatal("expected cache hit")
	}
	if string(got) != string(blob) {
		t.Errorf("LoadCachedWeights = %v, want %v", got, blob)
	}

	// A different modification time must miss: the file changed.
	_, ok, err = s.LoadCachedWeights(path, modTime+1)
	if err != nil {
		t.Fatalf("LoadCachedWeights failed: %v", err)
	}
	if ok {
		t.Error("expected cache miss after modification time changed")
	}
}

func TestDataPaths(t *testing.T) {
	dataDir, err := GetDataDir()
	if err != nil {
		t.Fatalf("GetDataDir failed: %v", err)
	}
	if dataDir == "" {
		t.Error("GetDataDir returned empty path")
	}

	if _, err := os.Stat(dataDir); os.IsNotExist(err) {
		t.Errorf("data directory was not created: %s", dataDir)
	}
}
