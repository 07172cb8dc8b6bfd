package repository

import (
	"errors"
	"testing"
)

func TestReconcileTotalSpace(t *testing.T) {
	cases := []struct {
		name             string
		total, remaining int64
		newTotal         int64
		wantRemaining    int64
		wantErr          error
	}{
		{"grow keeps committed space", 100, 40, 150, 90, nil},
		{"shrink within free margin", 100, 40, 80, 20, nil},
		{"shrink to exactly committed", 100, 40, 60, 0, nil},
		{"shrink below committed", 100, 40, 50, 0, ErrConflict},
		{"untouched listing shrinks freely", 100, 100, 1, 1, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := reconcileTotalSpace(tc.total, tc.remaining, tc.newTotal)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("err = %v, want %v", err, tc.wantErr)
			}
			if err != nil {
				return
			}
			if got != tc.wantRemaining {
				t.Fatalf("remaining = %d, want %d", got, tc.wantRemaining)
			}
			consumed := tc.total - tc.remaining
			if consumed+got != tc.newTotal {
				t.Fatalf("committed %d + remaining %d != new total %d", consumed, got, tc.newTotal)
			}
		})
	}
}
