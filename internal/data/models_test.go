package data

import (
	"testing"
	"time"

	apperrors "github.com/PaulBabatuyi/houseye/internal/errors"
)

func TestFormatTimestamp(t *testing.T) {
	ts := time.Date(2024, time.March, 5, 7, 8, 9, 0, time.Local)
	if got := FormatTimestamp(ts); got != "05/03/2024 07:08:09" {
		t.Fatalf("FormatTimestamp = %q", got)
	}
}

func TestPairKeyIsUnordered(t *testing.T) {
	if PairKey("alice", "bob") != PairKey("bob", "alice") {
		t.Fatalf("PairKey must not depend on argument order")
	}
	if PairKey("ab", "c") == PairKey("a", "bc") {
		t.Fatalf("PairKey must keep names apart")
	}
	// names carrying separator-like bytes still map to distinct keys
	if PairKey("a\x00b", "c") == PairKey("a", "b\x00c") {
		t.Fatalf("PairKey collides on embedded NUL")
	}
	if PairKey("a:b", "c") == PairKey("a", "b:c") {
		t.Fatalf("PairKey collides on embedded colon")
	}
}

func TestStatusValid(t *testing.T) {
	if !StatusIn.Valid() || !StatusOut.Valid() {
		t.Fatalf("In and Out must be valid")
	}
	if Status("Away").Valid() || Status("").Valid() {
		t.Fatalf("unknown status must be invalid")
	}
}

func TestUserDocument(t *testing.T) {
	doc, err := userDocument(map[string]any{
		"username": "  alice ",
		"image":    "./images/alice.jpg",
		"status":   StatusIn,
		"nickname": "al",
	})
	if err != nil {
		t.Fatalf("userDocument failed: %v", err)
	}
	if doc["username"] != "alice" || doc["image"] != "images/alice.jpg" || doc["status"] != "In" || doc["nickname"] != "al" {
		t.Fatalf("unexpected document: %v", doc)
	}

	bad := []map[string]any{
		{"_id": "x"},
		{"username": ""},
		{"username": 42},
		{"status": "Away"},
	}
	for _, fields := range bad {
		if _, err := userDocument(fields); !apperrors.IsCode(err, apperrors.CodeInvalidArgument) {
			t.Fatalf("userDocument(%v): expected INVALID_ARGUMENT, got %v", fields, err)
		}
	}
}
