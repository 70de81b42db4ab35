package prompt

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/kaiven11/artical-generate/internal/store"
	"github.com/kaiven11/artical-generate/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

func TestDeriveBand(t *testing.T) {
	tests := []struct {
		aiProbability float64
		round         int
		want          types.Band
	}{
		{10, 1, types.BandLight},
		{25, 1, types.BandStandard},
		{50, 1, types.BandStandard},
		{51, 1, types.BandHeavy},
		{10, 2, types.BandStandard}, // round >= 2 forces at least standard
		{60, 3, types.BandHeavy},
	}
	for _, tt := range tests {
		if got := DeriveBand(tt.aiProbability, tt.round); got != tt.want {
			t.Errorf("DeriveBand(%v, %d) = %s, want %s", tt.aiProbability, tt.round, got, tt.want)
		}
	}
}

func TestDeriveContentType(t *testing.T) {
	c := New(store.NewMemStore(), testLogger)

	tests := []struct {
		title, content string
		want           types.ContentType
	}{
		{"Kubernetes and Docker on the Cloud", "An API for algorithm tuning.", types.ContentTechnical},
		{"How to learn Go", "This tutorial walks you step by step through getting started.", types.ContentTutorial},
		{"Breaking news today", "Latest update on the release.", types.ContentNews},
		{"A quiet afternoon", "Nothing technical here at all.", types.ContentGeneral},
	}
	for _, tt := range tests {
		if got := c.DeriveContentType(tt.title, tt.content); got != tt.want {
			t.Errorf("DeriveContentType(%q, %q) = %s, want %s", tt.title, tt.content, got, tt.want)
		}
	}
}

func TestSelectFallsBackToBuiltinDefault(t *testing.T) {
	c := New(store.NewMemStore(), testLogger)

	text, tmpl, err := c.Select(context.Background(), Selection{
		Stage:       types.PromptTranslation,
		ContentType: types.ContentGeneral,
		Band:        types.BandStandard,
		Round:       1,
		Variables:   VariablesFor("hello world", types.TargetLengthMedium, nil),
	})
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if tmpl != nil {
		t.Error("expected nil template when no stored template matches (built-in default used)")
	}
	if text == "" {
		t.Error("expected non-empty built-in prompt text")
	}
}

func TestSelectPrefersHighestPriorityActiveTemplate(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemStore()
	c := New(s, testLogger)

	lowID, err := s.CreateTemplate(ctx, &types.PromptTemplate{
		Name: "opt-low", Type: types.PromptOptimisation, ContentType: types.ContentGeneral,
		Template: "low priority {content}", Priority: 1, IsActive: true,
	})
	if err != nil {
		t.Fatalf("create low: %v", err)
	}
	_, err = s.CreateTemplate(ctx, &types.PromptTemplate{
		Name: "opt-high", Type: types.PromptOptimisation, ContentType: types.ContentGeneral,
		Template: "high priority {content}", Priority: 10, IsActive: true,
	})
	if err != nil {
		t.Fatalf("create high: %v", err)
	}

	text, tmpl, err := c.Select(ctx, Selection{
		Stage:       types.PromptOptimisation,
		ContentType: types.ContentGeneral,
		Band:        types.BandStandard,
		Round:       1,
		Variables:   VariablesFor("x", types.TargetLengthMedium, nil),
	})
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if tmpl == nil || tmpl.ID == lowID {
		t.Errorf("expected the higher-priority template to win, got %+v", tmpl)
	}
	if text != "high priority x" {
		t.Errorf("expected instantiated high-priority template, got %q", text)
	}
}

func TestSelectHonorsOverridePromptID(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemStore()
	c := New(s, testLogger)

	id, err := s.CreateTemplate(ctx, &types.PromptTemplate{
		Name: "explicit", Type: types.PromptOptimisation, ContentType: types.ContentGeneral,
		Template: "explicit override {content}", Priority: 1, IsActive: true,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	text, tmpl, err := c.Select(ctx, Selection{
		Stage:            types.PromptOptimisation,
		ContentType:      types.ContentGeneral,
		OverridePromptID: &id,
		Variables:        VariablesFor("y", types.TargetLengthMedium, nil),
	})
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if tmpl == nil || tmpl.ID != id {
		t.Fatalf("expected the overridden template to be returned, got %+v", tmpl)
	}
	if text != "explicit override y" {
		t.Errorf("expected instantiated override template, got %q", text)
	}
}

func TestVariablesForIncludesTargetLength(t *testing.T) {
	vars := VariablesFor("body text", types.TargetLengthShort, map[string]string{"topic": "go"})
	if vars["content"] != "body text" {
		t.Errorf("expected content variable, got %q", vars["content"])
	}
	if vars["target_length"] != "500-800" {
		t.Errorf("expected target_length 500-800, got %q", vars["target_length"])
	}
	if vars["topic"] != "go" {
		t.Errorf("expected extra variable to be merged in, got %q", vars["topic"])
	}
}
