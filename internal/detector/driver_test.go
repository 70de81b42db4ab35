package detector

import (
	"strings"
	"testing"
)

func TestNormalizeSubmissionLengthPadsShortContent(t *testing.T) {
	out := normalizeSubmissionLength("short text")
	if len(out) < padFloor {
		t.Errorf("expected padded content to reach padFloor (%d), got length %d", padFloor, len(out))
	}
	if !strings.Contains(out, "short text") {
		t.Error("expected padded content to still contain the original text")
	}
}

func TestNormalizeSubmissionLengthLeavesMidLengthContentUnchanged(t *testing.T) {
	content := strings.Repeat("word ", padFloor/5)
	out := normalizeSubmissionLength(content)
	if out != content {
		t.Error("expected content already at or above padFloor to pass through unchanged")
	}
}

func TestNormalizeSubmissionLengthTruncatesLongContent(t *testing.T) {
	content := strings.Repeat("x", truncateCeiling*2)
	out := normalizeSubmissionLength(content)
	if len(out) != truncateCeiling {
		t.Errorf("expected truncation to truncateCeiling (%d), got length %d", truncateCeiling, len(out))
	}
}

func TestExtractPercentage(t *testing.T) {
	tests := []struct {
		text      string
		wantScore float64
		wantOK    bool
	}{
		{"AI probability: 87.5%", 87.5, true},
		{"This tool has a 98%+ accuracy rate, score: 12%", 12, true},
		{"no percentage here", 0, false},
	}
	for _, tt := range tests {
		score, ok := extractPercentage(tt.text)
		if ok != tt.wantOK {
			t.Errorf("extractPercentage(%q) ok = %v, want %v", tt.text, ok, tt.wantOK)
			continue
		}
		if ok && score != tt.wantScore {
			t.Errorf("extractPercentage(%q) = %v, want %v", tt.text, score, tt.wantScore)
		}
	}
}
