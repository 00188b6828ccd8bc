package store

import (
	"context"
	"errors"
	"testing"

	"github.com/homeseek/homeseek/engine/domain"
	"github.com/homeseek/homeseek/engine/filter"
	"github.com/homeseek/homeseek/engine/geo"
)

func fp(v float64) *float64 { return &v }

func seed(t *testing.T) *Memory {
	t.Helper()
	s := NewMemory()
	ctx := context.Background()
	listings := []domain.Listing{
		{ID: 1, District: "chaoyang", Lon: fp(116.45), Lat: fp(39.92), PriceTotal: fp(500)},
		{ID: 2, District: "haidian", Lon: fp(116.30), Lat: fp(39.99), PriceTotal: fp(700)},
		{ID: 3, District: "chaoyang", PriceTotal: fp(450)}, // no geocode
	}
	for _, l := range listings {
		if err := s.Upsert(ctx, l); err != nil {
			t.Fatalf("upsert %d: %v", l.ID, err)
		}
	}
	return s
}

func TestMemoryGet(t *testing.T) {
	s := seed(t)
	ctx := context.Background()

	l, err := s.Get(ctx, 2)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if l.District != "haidian" {
		t.Fatalf("district = %q", l.District)
	}

	_, err = s.Get(ctx, 404)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestMemoryUpsertReplaces(t *testing.T) {
	s := seed(t)
	ctx := context.Background()

	if err := s.Upsert(ctx, domain.Listing{ID: 1, District: "dongcheng"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	l, err := s.Get(ctx, 1)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if l.District != "dongcheng" || l.PriceTotal != nil {
		t.Fatalf("replace was partial: %+v", l)
	}
	if s.Len() != 3 {
		t.Fatalf("len = %d, want 3", s.Len())
	}
}

func TestMemoryQueryBoxExcludesUngeocoded(t *testing.T) {
	s := seed(t)
	box := &geo.Box{MinLon: 116.0, MaxLon: 117.0, MinLat: 39.0, MaxLat: 41.0}

	out, err := s.Query(context.Background(), box, nil)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	// Listing 3 has no geocode and can never satisfy a geo predicate.
	if len(out) != 2 {
		t.Fatalf("got %d listings, want 2", len(out))
	}
	for _, l := range out {
		if l.ID == 3 {
			t.Fatal("ungeocoded listing leaked through the box")
		}
	}
}

func TestMemoryQueryConditions(t *testing.T) {
	s := seed(t)
	conds := []filter.Condition{
		{Field: filter.FieldDistrict, Op: filter.OpEquals, Equals: "chaoyang"},
		{Field: filter.FieldPriceTotal, Op: filter.OpRange, Max: fp(480)},
	}
	out, err := s.Query(context.Background(), nil, conds)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(out) != 1 || out[0].ID != 3 {
		t.Fatalf("out = %+v, want only listing 3", out)
	}
}

func TestMemoryDeleteIdempotent(t *testing.T) {
	s := seed(t)
	ctx := context.Background()

	if err := s.Delete(ctx, 1); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.Delete(ctx, 1); err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if _, err := s.Get(ctx, 1); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestMemoryScanStopsOnError(t *testing.T) {
	s := seed(t)
	sentinel := errors.New("stop")
	calls := 0
	err := s.Scan(context.Background(), func(domain.Listing) error {
		calls++
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("err = %v", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}
