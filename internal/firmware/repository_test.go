package firmware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/koios/trmnl-renderer/pkg/models"
	"go.uber.org/zap"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func newFirmwareServer(t *testing.T, status int, body string) (*httptest.Server, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/firmware/latest" {
			http.NotFound(w, r)
			return
		}
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestRepositoryLatest(t *testing.T) {
	srv, hits := newFirmwareServer(t, http.StatusOK, `{"url":"https://example.com/fw.bin","version":"1.6.2"}`)
	clock := newFakeClock()
	repo := NewRepository(srv.URL+"/api", NewMemoryStore(clock.Now), time.Hour, zap.NewNop(), WithClock(clock.Now))

	ctx := context.Background()

	t.Run("fetches descriptor", func(t *testing.T) {
		fw, err := repo.Latest(ctx)
		if err != nil {
			t.Fatalf("Latest failed: %v", err)
		}
		if fw.Version != "1.6.2" || fw.URL != "https://example.com/fw.bin" {
			t.Errorf("unexpected descriptor: %+v", fw)
		}
		if !fw.FetchedAt.Equal(clock.Now()) {
			t.Errorf("FetchedAt = %v, want %v", fw.FetchedAt, clock.Now())
		}
	})

	t.Run("served from cache within window", func(t *testing.T) {
		clock.Advance(30 * time.Minute)
		if _, err := repo.Latest(ctx); err != nil {
			t.Fatalf("Latest failed: %v", err)
		}
		if got := atomic.LoadInt32(hits); got != 1 {
			t.Errorf("expected 1 upstream request, got %d", got)
		}
	})

	t.Run("refetched after window", func(t *testing.T) {
		clock.Advance(time.Hour)
		if _, err := repo.Latest(ctx); err != nil {
			t.Fatalf("Latest failed: %v", err)
		}
		if got := atomic.LoadInt32(hits); got != 2 {
			t.Errorf("expected 2 upstream requests, got %d", got)
		}
	})
}

func TestRepositoryLatestErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, ``},
		{"bad json", http.StatusOK, `{not json`},
		{"missing version", http.StatusOK, `{"url":"https://example.com/fw.bin"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newFirmwareServer(t, tt.status, tt.body)
			repo := NewRepository(srv.URL+"/api", NewMemoryStore(nil), time.Hour, zap.NewNop())

			if _, err := repo.Latest(context.Background()); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	clock := newFakeClock()
	store := NewMemoryStore(clock.Now)
	ctx := context.Background()

	if _, ok, _ := store.Get(ctx); ok {
		t.Fatal("empty store should miss")
	}

	store.Set(ctx, &models.Firmware{Version: "1.0.0", URL: "u"}, time.Minute)

	if fw, ok, _ := store.Get(ctx); !ok || fw.Version != "1.0.0" {
		t.Fatalf("expected cached descriptor, got %v %v", fw, ok)
	}

	clock.Advance(time.Minute)
	if _, ok, _ := store.Get(ctx); ok {
		t.Error("descriptor should expire exactly at ttl")
	}
}
