package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/roadside-dispatch/internal/ingest"
)

// fakeUpdater implements RedisUpdater for tests
type fakeUpdater struct {
	failGeo  int // number of times to fail GeoAdd before succeeding
	failH    int // number of times to fail HSet before succeeding
	geoCalls int
	hCalls   int
	lastMeta map[string]interface{}
}

func (f *fakeUpdater) GeoAdd(ctx context.Context, key string, loc *redis.GeoLocation) error {
	f.geoCalls++
	if f.geoCalls <= f.failGeo {
		return errors.New("geo fail")
	}
	return nil
}

func (f *fakeUpdater) HSet(ctx context.Context, key string, values map[string]interface{}) error {
	f.hCalls++
	if f.hCalls <= f.failH {
		return errors.New("hset fail")
	}
	f.lastMeta = values
	return nil
}

func TestApplyWithRetry_SucceedsAfterRetries(t *testing.T) {
	f := &fakeUpdater{failGeo: 1, failH: 1}
	ev := ingest.LocationEvent{DriverID: "d1", Lat: 23.61, Lon: 58.4, At: time.Now()}
	start := time.Now()
	if err := applyWithRetry(context.Background(), f, "drivers_geo", ev, 3, 10*time.Millisecond); err != nil {
		t.Fatalf("expected success, got err=%v", err)
	}
	if f.geoCalls < 2 || f.hCalls < 2 {
		t.Fatalf("expected retries, got geo=%d h=%d", f.geoCalls, f.hCalls)
	}
	if time.Since(start) < 10*time.Millisecond {
		t.Fatalf("expected at least one backoff")
	}
}

func TestApplyWithRetry_FailsWhenExhausted(t *testing.T) {
	f := &fakeUpdater{failGeo: 5}
	ev := ingest.LocationEvent{DriverID: "d1", Lat: 1, Lon: 2, At: time.Now()}
	if err := applyWithRetry(context.Background(), f, "drivers_geo", ev, 3, 5*time.Millisecond); err == nil {
		t.Fatalf("expected error after retries")
	}
}

func TestApplyWithRetry_OnlineFlagWritten(t *testing.T) {
	f := &fakeUpdater{}
	online := true
	ev := ingest.LocationEvent{DriverID: "d1", Lat: 1, Lon: 2, Online: &online, At: time.Now()}
	if err := applyWithRetry(context.Background(), f, "drivers_geo", ev, 1, time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if f.lastMeta["online"] != "true" {
		t.Fatalf("expected online=true in meta, got %v", f.lastMeta)
	}
}
