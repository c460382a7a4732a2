package config

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"songgen-studio/internal/domain"
)

// TestDefaultSettings verifies baseline defaults are present.
func TestDefaultSettings(t *testing.T) {
	cfg := DefaultSettings("/srv/data")
	if cfg.LowMem {
		t.Fatal("low mem should default to false")
	}
	if !cfg.FlashAttn {
		t.Fatal("flash attention should default to true")
	}
	if cfg.OutputDir != filepath.Join("/srv/data", "outputs") {
		t.Fatalf("output dir = %q", cfg.OutputDir)
	}
	if cfg.CurrentModel != "" {
		t.Fatalf("current model = %q, want empty", cfg.CurrentModel)
	}
}

// TestJSONStoreLoadMissingReturnsDefaults checks first-run behavior.
func TestJSONStoreLoadMissingReturnsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "settings.json")
	store := NewJSONStore(path, DefaultSettings("data"))

	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !got.FlashAttn {
		t.Fatal("expected default flash attention")
	}
}

// TestJSONStoreSaveAndLoadRoundTrip checks persisted settings fidelity.
func TestJSONStoreSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg", "settings.json")
	store := NewJSONStore(path, DefaultSettings("data"))
	want := domain.Settings{
		LowMem:       true,
		FlashAttn:    false,
		OutputDir:    "/out",
		CurrentModel: "SongGeneration-base",
	}

	if err := store.Save(want); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got != want {
		t.Fatalf("settings = %+v, want %+v", got, want)
	}
}

// TestJSONStorePartialFileKeepsDefaults checks missing keys fall back.
func TestJSONStorePartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	if err := os.WriteFile(path, []byte(`{"currentModel":"SongGeneration-large"}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := NewJSONStore(path, DefaultSettings("data")).Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.CurrentModel != "SongGeneration-large" || !got.FlashAttn {
		t.Fatalf("settings = %+v", got)
	}
}

// TestJSONStoreLoadInvalidJSON checks parse error handling.
func TestJSONStoreLoadInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg", "settings.json")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte("{not-json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	store := NewJSONStore(path, DefaultSettings("data"))
	if _, err := store.Load(); err == nil {
		t.Fatal("expected json parse error")
	}
}

// TestJSONStoreGet checks string key access.
func TestJSONStoreGet(t *testing.T) {
	store := NewJSONStore(filepath.Join(t.TempDir(), "settings.json"), DefaultSettings("data"))
	if _, err := store.Update(func(s *domain.Settings) { s.LowMem = true; s.CurrentModel = "m" }); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	cases := map[string]string{
		KeyLowMem:       "true",
		KeyFlashAttn:    "true",
		KeyCurrentModel: "m",
	}
	for key, want := range cases {
		got, err := store.Get(key)
		if err != nil {
			t.Fatalf("Get(%s) error = %v", key, err)
		}
		if got != want {
			t.Fatalf("Get(%s) = %q, want %q", key, got, want)
		}
	}

	if _, err := store.Get("nope"); !errors.Is(err, ErrUnknownSetting) {
		t.Fatalf("Get(nope) error = %v, want %v", err, ErrUnknownSetting)
	}
}

// TestJSONStoreConcurrentUpdates checks that updates do not lose writes.
func TestJSONStoreConcurrentUpdates(t *testing.T) {
	store := NewJSONStore(filepath.Join(t.TempDir(), "settings.json"), DefaultSettings("data"))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = store.Update(func(s *domain.Settings) {
				if i%2 == 0 {
					s.LowMem = true
				} else {
					s.CurrentModel = "m"
				}
			})
		}(i)
	}
	wg.Wait()

	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !got.LowMem || got.CurrentModel != "m" {
		t.Fatalf("lost update: %+v", got)
	}
}
