package cache

import (
	"context"
	"testing"
	"time"
)

func TestMemoryCache_ExpiresAfterTTL(t *testing.T) {
	now := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	c := NewMemoryCache(func() time.Time { return now })
	ctx := context.Background()

	if err := c.Set(ctx, "assorted_categories", []byte(`[1]`), 0); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	tests := []struct {
		name    string
		advance time.Duration
		wantHit bool
	}{
		{name: "fresh", advance: 0, wantHit: true},
		{name: "just_before_expiry", advance: DefaultTTL - time.Second, wantHit: true},
		{name: "at_expiry", advance: time.Second, wantHit: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			now = now.Add(tt.advance)
			_, ok, err := c.Get(ctx, "assorted_categories")
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			if ok != tt.wantHit {
				t.Fatalf("expected hit=%v, got %v", tt.wantHit, ok)
			}
		})
	}
}

func TestMemoryCache_InvalidatePrefix(t *testing.T) {
	c := NewMemoryCache(nil)
	ctx := context.Background()
	for _, key := range []string{"assorted_categories", "assorted_dashboard", "other"} {
		if err := c.Set(ctx, key, []byte("{}"), time.Minute); err != nil {
			t.Fatalf("Set(%s) error = %v", key, err)
		}
	}

	if err := c.InvalidatePrefix(ctx, "assorted_"); err != nil {
		t.Fatalf("InvalidatePrefix() error = %v", err)
	}
	if c.Len() != 1 {
		t.Fatalf("expected only the unrelated key to survive, got %d entries", c.Len())
	}
	if _, ok, _ := c.Get(ctx, "other"); !ok {
		t.Fatal("expected unrelated key to remain")
	}
}

func TestMemoryCache_ReturnsCopies(t *testing.T) {
	c := NewMemoryCache(nil)
	ctx := context.Background()
	value := []byte("abc")
	_ = c.Set(ctx, "k", value, time.Minute)
	value[0] = 'z'

	got, _, _ := c.Get(ctx, "k")
	if string(got) != "abc" {
		t.Fatalf("expected stored copy, got %q", got)
	}
}
