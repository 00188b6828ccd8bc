package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/homeseek/homeseek/engine/domain"
	"github.com/homeseek/homeseek/engine/search"
	"github.com/homeseek/homeseek/engine/store"
)

type fakeIndex struct {
	mu      sync.Mutex
	deleted []int64
}

func (f *fakeIndex) Search(context.Context, []float32, int, *search.Prefilter) ([]search.Scored, error) {
	return nil, nil
}

func (f *fakeIndex) Upsert(context.Context, []domain.Listing) error { return nil }

func (f *fakeIndex) Delete(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return nil
}

func seedStore(t *testing.T) *store.Memory {
	t.Helper()
	st := store.NewMemory()
	lon, lat := 116.4, 39.9
	rows := []domain.Listing{
		{ID: 1, Name: "a", District: "chaoyang", Lon: &lon, Lat: &lat},
		{ID: 2, Name: "b", District: "chaoyang"},
		{ID: 3, Name: "c", District: "haidian", Lon: &lon, Lat: &lat},
	}
	for _, l := range rows {
		if err := st.Upsert(context.Background(), l); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	return st
}

func TestHandleStats(t *testing.T) {
	st := seedStore(t)

	w := httptest.NewRecorder()
	handleStats(st)(w, httptest.NewRequest("GET", "/api/stats", nil))

	if w.Code != 200 {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var got statsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := statsResponse{TotalListings: 3, Geocoded: 2, Districts: 2}
	if got != want {
		t.Fatalf("stats = %+v, want %+v", got, want)
	}
}

func TestHandleClearListings(t *testing.T) {
	st := seedStore(t)
	idx := &fakeIndex{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	w := httptest.NewRecorder()
	handleClearListings(st, idx, logger)(w, httptest.NewRequest("DELETE", "/api/listings", nil))

	if w.Code != 200 {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var got map[string]int
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["cleared"] != 3 {
		t.Fatalf("cleared = %d, want 3", got["cleared"])
	}
	if st.Len() != 0 {
		t.Fatalf("store still holds %d listings", st.Len())
	}
	if len(idx.deleted) != 3 {
		t.Fatalf("index deletes = %v, want all three ids", idx.deleted)
	}
}
