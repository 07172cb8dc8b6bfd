package repository

import (
	"strings"
	"testing"
)

// MySQL applies UPDATE SET assignments left to right, and later assignments
// see the values written by earlier ones.  The availability derivation must
// therefore read the bare column after the decrement; subtracting the amount
// again would evaluate original-2*amount and flip a listing unavailable while
// space remains.
func TestTakeSpaceDerivesAvailabilityFromUpdatedRemaining(t *testing.T) {
	where := strings.Index(takeSpaceStmt, "WHERE")
	if where < 0 {
		t.Fatalf("statement has no WHERE clause: %s", takeSpaceStmt)
	}
	set := takeSpaceStmt[:where]

	if !strings.Contains(set, "is_available = (remaining_space > 0)") {
		t.Fatalf("availability must be derived from the post-decrement column, got: %s", set)
	}
	if got := strings.Count(set, "remaining_space - ?"); got != 1 {
		t.Fatalf("amount must be subtracted exactly once in the SET clause, got %d in: %s", got, set)
	}
	if strings.Index(set, "remaining_space = remaining_space - ?") > strings.Index(set, "is_available") {
		t.Fatalf("decrement must precede the availability assignment: %s", set)
	}
}
