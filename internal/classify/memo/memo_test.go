package memo

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"chitieu/internal/classify"
	"chitieu/internal/core"
)

func countingClassifier(calls *atomic.Int32, err error) classify.Classifier {
	return classify.Func(func(_ context.Context, fragment string) (core.Draft, error) {
		calls.Add(1)
		if err != nil {
			return core.Draft{}, err
		}
		return core.Draft{Amount: 30000, Type: core.Expense, Category: core.CategoryEntertainment, Description: fragment}, nil
	})
}

func TestClassifierRemembersAnswers(t *testing.T) {
	var calls atomic.Int32
	c := New(countingClassifier(&calls, nil), time.Hour)
	ctx := context.Background()

	first, err := c.Classify(ctx, "Cafe  30000")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	for _, again := range []string{"cafe 30000", " CAFE 30000 "} {
		d, err := c.Classify(ctx, again)
		if err != nil {
			t.Fatalf("Classify(%q): %v", again, err)
		}
		if d != first {
			t.Fatalf("Classify(%q) = %+v, want %+v", again, d, first)
		}
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf("backend called %d times, want 1", n)
	}
	if c.Len() != 1 {
		t.Fatalf("Len = %d", c.Len())
	}

	c.Flush()
	if _, err := c.Classify(ctx, "cafe 30000"); err != nil {
		t.Fatalf("Classify after flush: %v", err)
	}
	if n := calls.Load(); n != 2 {
		t.Fatalf("backend called %d times after flush, want 2", n)
	}
}

func TestClassifierDoesNotRememberFailures(t *testing.T) {
	var calls atomic.Int32
	boom := errors.New("quota exceeded")
	c := New(countingClassifier(&calls, boom), 0)

	for i := 0; i < 2; i++ {
		if _, err := c.Classify(context.Background(), "pho 50000"); !errors.Is(err, boom) {
			t.Fatalf("expected backend error, got %v", err)
		}
	}
	if n := calls.Load(); n != 2 {
		t.Fatalf("backend called %d times, want 2", n)
	}
	if c.Len() != 0 {
		t.Fatalf("failures must not be cached")
	}
}

func TestCacheKey(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Phở  50000", "phở 50000"},
		{"  ăn phố\t20k ", "ăn phố 20k"},
	}
	for _, tt := range tests {
		if got := cacheKey(tt.in); got != tt.want {
			t.Errorf("cacheKey(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
