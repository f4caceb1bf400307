package results

import (
	"strings"
	"testing"

	"github.com/yungbote/birdscan-backend/internal/types"
)

func TestPrimaryRoundTrip(t *testing.T) {
	in := []types.PrimaryRow{
		{Name: "a.jpg", Count: 2},
		{Name: "b.png", Count: 0},
		{Name: "name with spaces.gif", Count: 14},
	}
	out, err := ParsePrimary(EncodePrimary(in))
	if err != nil {
		t.Fatalf("ParsePrimary: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("rows=%d, want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("row %d = %+v, want %+v", i, out[i], in[i])
		}
	}
}

func TestPrimaryHeaderOnly(t *testing.T) {
	b := EncodePrimary(nil)
	if got := strings.TrimSpace(string(b)); got != "itemName,count" {
		t.Fatalf("encoded=%q", got)
	}
	rows, err := ParsePrimary(b)
	if err != nil {
		t.Fatalf("ParsePrimary: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("rows=%v, want none", rows)
	}
}

func TestParsePrimaryRejectsBadInput(t *testing.T) {
	cases := map[string]string{
		"empty":      "",
		"bad header": "name,total\na.jpg,2\n",
		"bad count":  "itemName,count\na.jpg,two\n",
	}
	for name, in := range cases {
		if _, err := ParsePrimary([]byte(in)); err == nil {
			t.Fatalf("%s: parse unexpectedly succeeded", name)
		}
	}
}

func TestEnhancedRoundTripRaggedRows(t *testing.T) {
	conf := 0.87
	in := []types.EnhancedRow{
		{Name: "a.jpg", Count: 2, Category: "sparrow", Confidence: &conf},
		{Name: "b.png", Count: 5},
	}
	b := EncodeEnhanced(in)

	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines=%v", lines)
	}
	if lines[0] != "itemName,count,category,confidence" {
		t.Fatalf("header=%q", lines[0])
	}
	if lines[1] != "a.jpg,2,sparrow,0.87" {
		t.Fatalf("classified row=%q", lines[1])
	}
	if lines[2] != "b.png,5" {
		t.Fatalf("pass-through row=%q", lines[2])
	}

	out, err := ParseEnhanced(b)
	if err != nil {
		t.Fatalf("ParseEnhanced: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("rows=%d, want 2", len(out))
	}
	if out[0].Category != "sparrow" || out[0].Confidence == nil || *out[0].Confidence != 0.87 {
		t.Fatalf("classified row=%+v", out[0])
	}
	if out[1].Category != "" || out[1].Confidence != nil {
		t.Fatalf("pass-through row=%+v", out[1])
	}
}

func TestKindOfKey(t *testing.T) {
	cases := []struct {
		key  string
		kind types.TableKind
		ok   bool
	}{
		{"public/results/bird-results-batch-1.csv", types.TableKindPrimary, true},
		{"public/results/enhanced-bird-results-batch-1.csv", types.TableKindEnhanced, true},
		{"public/results/bird-results-batch-1.json", "", false},
		{"public/results/notes.csv", "", false},
		{"public/extracted/batch-1/a.jpg", "", false},
	}
	for _, tc := range cases {
		kind, ok := KindOfKey(tc.key)
		if kind != tc.kind || ok != tc.ok {
			t.Fatalf("KindOfKey(%q) = %v %v, want %v %v", tc.key, kind, ok, tc.kind, tc.ok)
		}
	}
}

func TestBatchOfKeyRoundTrip(t *testing.T) {
	const batch = "survey-2026-08-28T10-00-00-ab12cd34"
	for _, key := range []string{
		PrimaryKey("public/results/", batch),
		EnhancedKey("public/results/", batch),
	} {
		got, ok := BatchOfKey(key)
		if !ok || got != batch {
			t.Fatalf("BatchOfKey(%q) = %q %v", key, got, ok)
		}
	}
	if _, ok := BatchOfKey("public/results/other.csv"); ok {
		t.Fatalf("non-table key yielded a batch")
	}
}
