package analysis

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"
)

func TestFingerprint_Deterministic(t *testing.T) {
	fields := BookFields{
		Title:       "The Go Programming Language",
		Author:      "Donovan & Kernighan",
		Description: "A classic introduction",
		AssetRef:    "book-file/gopl.pdf",
	}

	first := Fingerprint(fields)
	for i := 0; i < 10; i++ {
		if got := Fingerprint(fields); got != first {
			t.Fatalf("Fingerprint not deterministic: %s != %s", got, first)
		}
	}

	if len(first) != 64 {
		t.Errorf("fingerprint length = %d, want 64 hex chars", len(first))
	}
}

func TestFingerprint_Sensitivity(t *testing.T) {
	base := BookFields{Title: "t", Author: "a", Description: "d", AssetRef: "r"}
	baseFP := Fingerprint(base)

	variants := map[string]BookFields{
		"title":       {Title: "t2", Author: "a", Description: "d", AssetRef: "r"},
		"author":      {Title: "t", Author: "a2", Description: "d", AssetRef: "r"},
		"description": {Title: "t", Author: "a", Description: "d2", AssetRef: "r"},
		"asset_ref":   {Title: "t", Author: "a", Description: "d", AssetRef: "r2"},
	}

	for name, fields := range variants {
		if Fingerprint(fields) == baseFP {
			t.Errorf("changing %s did not change the fingerprint", name)
		}
	}

	// Tags are not part of the fingerprint.
	tagged := base
	tagged.Tags = []string{"x", "y"}
	if Fingerprint(tagged) != baseFP {
		t.Error("tags should not affect the fingerprint")
	}
}

func TestFingerprint_KnownValue(t *testing.T) {
	// The digest is sha256 over the pipe-joined fields, so it stays
	// stable across implementations.
	fields := BookFields{Title: "t", Author: "a", Description: "d", AssetRef: "r"}
	sum := sha256.Sum256([]byte("t|a|d|r"))
	want := hex.EncodeToString(sum[:])

	if got := Fingerprint(fields); got != want {
		t.Errorf("Fingerprint = %s, want %s", got, want)
	}
}

func TestFingerprint_EmptyFields(t *testing.T) {
	empty := Fingerprint(BookFields{})
	sum := sha256.Sum256([]byte("|||"))
	if empty != hex.EncodeToString(sum[:]) {
		t.Error("empty fields should hash the bare delimiters")
	}
}
