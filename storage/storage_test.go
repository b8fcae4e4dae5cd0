package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/redis/go-redis/v9"

	"scspa/platform"
)

func exerciseStorage(t *testing.T, s platform.Storage) {
	t.Helper()
	ctx := context.Background()

	if _, ok, err := s.Get(ctx, "_sc_rt"); err != nil || ok {
		t.Fatalf("expected missing key, ok=%v err=%v", ok, err)
	}
	if err := s.Set(ctx, "_sc_rt", "refresh-1"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, ok, err := s.Get(ctx, "_sc_rt")
	if err != nil || !ok || v != "refresh-1" {
		t.Fatalf("Get = %q, %v, %v", v, ok, err)
	}
	if err := s.Set(ctx, "_sc_rt", "refresh-2"); err != nil {
		t.Fatalf("Set overwrite: %v", err)
	}
	if v, _, _ := s.Get(ctx, "_sc_rt"); v != "refresh-2" {
		t.Fatalf("expected overwrite, got %q", v)
	}
	if err := s.Remove(ctx, "_sc_rt"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "_sc_rt"); ok {
		t.Fatalf("expected key removed")
	}
	if err := s.Remove(ctx, "_sc_rt"); err != nil {
		t.Fatalf("Remove missing key: %v", err)
	}
}

func TestMemoryStorage(t *testing.T) {
	m := NewMemory()
	exerciseStorage(t, m)
	if m.Len() != 0 {
		t.Fatalf("expected empty store, got %d keys", m.Len())
	}
}

func TestFileStorage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.yaml")
	f, err := OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	exerciseStorage(t, f)
}

func TestFileStorageSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.yaml")
	f, err := OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	if err := f.Set(context.Background(), "_sc_code_verifier", "verifier"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	reopened, err := OpenFile(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	v, ok, err := reopened.Get(context.Background(), "_sc_code_verifier")
	if err != nil || !ok || v != "verifier" {
		t.Fatalf("expected persisted verifier, got %q %v %v", v, ok, err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("unexpected file mode %v", info.Mode().Perm())
	}
}

func TestOpenFileRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.yaml")
	if err := os.WriteFile(path, []byte("- not\n- a mapping\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := OpenFile(path); err == nil {
		t.Fatalf("expected parse error")
	}
	if _, err := OpenFile(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

func TestRedisStorage(t *testing.T) {
	addr := os.Getenv("SCSPA_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("SCSPA_TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis unavailable: %v", err)
	}

	exerciseStorage(t, NewRedis(client, "scspa-test:"))
}
