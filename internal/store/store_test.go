package store

import (
	"context"
	"errors"
	"testing"

	"github.com/openfleet/location-relay/internal/model"
)

func TestMemoryStore_PutGet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	want := model.LocationSample{
		EntityID: "bus-7",
		Lat:      10,
		Lng:      20,
		SpeedMPS: 5,
		ServerTS: 1000,
	}

	if err := s.Put(ctx, want); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := s.Get(ctx, "bus-7")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != want {
		t.Errorf("sample = %+v, want %+v", got, want)
	}
}

func TestMemoryStore_Overwrite(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	first := model.LocationSample{EntityID: "bus-7", Lat: 1}
	second := model.LocationSample{EntityID: "bus-7", Lat: 2}

	if err := s.Put(ctx, first); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := s.Put(ctx, second); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := s.Get(ctx, "bus-7")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Lat != 2 {
		t.Errorf("Lat = %v, want 2", got.Lat)
	}
}

func TestMemoryStore_Missing(t *testing.T) {
	s := NewMemoryStore()

	_, err := s.Get(context.Background(), "bus-404")
	if !errors.Is(err, ErrNoSample) {
		t.Errorf("err = %v, want ErrNoSample", err)
	}
}
