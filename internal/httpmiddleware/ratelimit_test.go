package httpmiddleware

import (
	"testing"
	"time"
)

func TestTokenBucketLimitsAndRefills(t *testing.T) {
	now := time.Date(2024, 5, 1, 7, 0, 0, 0, time.UTC)
	l := NewTokenBucket(2, 60)
	l.now = func() time.Time { return now }

	if !l.allow("a") || !l.allow("a") {
		t.Fatal("first two requests should pass")
	}
	if l.allow("a") {
		t.Fatal("third request should be limited")
	}
	if !l.allow("b") {
		t.Fatal("other keys are independent")
	}

	now = now.Add(2 * time.Second)
	if !l.allow("a") {
		t.Fatal("bucket should refill after two seconds at 60/min")
	}
}

func TestZeroCapacityUsesRate(t *testing.T) {
	l := NewTokenBucket(0, 3)
	if l.capacity != 3 {
		t.Fatalf("capacity = %d, want 3", l.capacity)
	}
}
