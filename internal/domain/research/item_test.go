package research

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/turtacn/ResearchPool-Intelligence/pkg/errors"
	rtypes "github.com/turtacn/ResearchPool-Intelligence/pkg/types/research"
)

func newTestItem(t *testing.T) *ResearchItem {
	t.Helper()
	item, err := NewResearchItem(
		rtypes.SourceBiomed,
		"Creatine monohydrate and strength outcomes",
		"A randomized controlled trial of creatine supplementation in resistance-trained adults.",
		"https://pubmed.example.org/articles/38412345",
		[]string{"Creatine", "strength training"},
		map[string]interface{}{"external_id": "38412345"},
		time.Now().UTC(),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return item
}

func TestNewResearchItem(t *testing.T) {
	discovered := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	item, err := NewResearchItem(
		rtypes.SourceBiomed,
		"  Creatine and cognition  ",
		"Systematic review of creatine effects on cognitive performance.",
		"https://pubmed.example.org/articles/1",
		[]string{"Creatine", "creatine", "Cognitive Function"},
		nil,
		discovered,
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if item.ID == "" {
		t.Error("ID should be assigned")
	}
	if item.Title != "Creatine and cognition" {
		t.Errorf("title not trimmed: %q", item.Title)
	}
	if !item.CreatedAt.Equal(discovered) {
		t.Errorf("CreatedAt = %v, want discovery time %v", item.CreatedAt, discovered)
	}
	if item.Version != 1 {
		t.Errorf("new item version = %d, want 1", item.Version)
	}
	if item.Score != rtypes.MinScore {
		t.Errorf("new item score = %v, want %v", item.Score, rtypes.MinScore)
	}
	if item.Compliance != rtypes.ComplianceWarning {
		t.Errorf("new item compliance = %s, want WARNING until validated", item.Compliance)
	}
	wantTags := []string{"cognitive_function", "creatine"}
	if !reflect.DeepEqual(item.Tags, wantTags) {
		t.Errorf("tags = %v, want %v", item.Tags, wantTags)
	}

	events := item.Events()
	if len(events) != 1 {
		t.Fatalf("expected 1 event after construction, got %d", len(events))
	}
	published, ok := events[0].(*ItemPublishedEvent)
	if !ok {
		t.Fatalf("expected *ItemPublishedEvent, got %T", events[0])
	}
	if published.AggregateID() != item.ID.String() {
		t.Error("event aggregate ID mismatch")
	}
}

func TestNewResearchItem_ZeroDiscoveryTime(t *testing.T) {
	item, err := NewResearchItem(
		rtypes.SourceNews,
		"Title",
		"Content body.",
		"https://example.org/a",
		nil, nil, time.Time{},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if item.CreatedAt.IsZero() {
		t.Error("zero discovery time should fall back to now")
	}
}

func TestNewResearchItem_Validation(t *testing.T) {
	valid := func() (rtypes.Source, string, string, string) {
		return rtypes.SourceVideo, "Title", "Content body.", "https://example.org/v/1"
	}

	tests := []struct {
		name   string
		mutate func(*rtypes.Source, *string, *string, *string)
	}{
		{"unsupported source", func(s *rtypes.Source, _, _, _ *string) { *s = "forum" }},
		{"empty title", func(_ *rtypes.Source, title, _, _ *string) { *title = "   " }},
		{"oversized title", func(_ *rtypes.Source, title, _, _ *string) {
			*title = strings.Repeat("t", MaxTitleBytes+1)
		}},
		{"empty content", func(_ *rtypes.Source, _, content, _ *string) { *content = "" }},
		{"oversized content", func(_ *rtypes.Source, _, content, _ *string) {
			*content = strings.Repeat("c", MaxContentBytes+1)
		}},
		{"empty url", func(_ *rtypes.Source, _, _, url *string) { *url = "" }},
		{"non-http scheme", func(_ *rtypes.Source, _, _, url *string) { *url = "ftp://example.org/f" }},
		{"oversized url", func(_ *rtypes.Source, _, _, url *string) {
			*url = "https://example.org/" + strings.Repeat("u", MaxURLBytes)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source, title, content, url := valid()
			tt.mutate(&source, &title, &content, &url)
			_, err := NewResearchItem(source, title, content, url, nil, nil, time.Now())
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !errors.IsValidation(err) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}

func TestNormalizeTags(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{"lowercase and trim", []string{"  Creatine "}, []string{"creatine"}},
		{"whitespace collapses to underscore",
			[]string{"strength  training", "vo2\tmax"},
			[]string{"strength_training", "vo2_max"}},
		{"non-ascii dropped", []string{"créatine", "creatine"}, []string{"creatine"}},
		{"too short dropped", []string{"a", "ok"}, []string{"ok"}},
		{"too long dropped", []string{strings.Repeat("x", MaxTagBytes+1), "fits"}, []string{"fits"}},
		{"dedupe after normalization", []string{"Creatine", "CREATINE", "creatine"}, []string{"creatine"}},
		{"sorted output", []string{"zinc", "creatine", "magnesium"},
			[]string{"creatine", "magnesium", "zinc"}},
		{"empty input", nil, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeTags(tt.in)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("NormalizeTags(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeTags_CapAppliesAfterSort(t *testing.T) {
	raw := []string{"k1", "j1", "i1", "h1", "g1", "f1", "e1", "d1", "c1", "b1", "a1"}
	got := NormalizeTags(raw)
	if len(got) != MaxTags {
		t.Fatalf("expected %d tags, got %d", MaxTags, len(got))
	}
	// The cap keeps the lexicographically first MaxTags entries, so "k1"
	// falls off, not "a1".
	if got[0] != "a1" {
		t.Errorf("first tag = %q, want a1", got[0])
	}
	for _, tag := range got {
		if tag == "k1" {
			t.Error("k1 should have been dropped by the cap")
		}
	}
}

func TestRoundScore(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{7.125, 7.13},
		{7.124, 7.12},
		{0, 0},
		{9.999, 10.0},
		{3.14159, 3.14},
	}
	for _, tt := range tests {
		if got := RoundScore(tt.in); got != tt.want {
			t.Errorf("RoundScore(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSetScore(t *testing.T) {
	item := newTestItem(t)
	item.Events() // drain construction event

	if err := item.SetScore(7.126); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if item.Score != 7.13 {
		t.Errorf("score = %v, want 7.13", item.Score)
	}
	if item.Version != 2 {
		t.Errorf("version = %d, want 2 after mutation", item.Version)
	}

	events := item.Events()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	evt, ok := events[0].(*ScoreUpdatedEvent)
	if !ok {
		t.Fatalf("expected *ScoreUpdatedEvent, got %T", events[0])
	}
	if evt.PreviousScore != 0 || evt.Score != 7.13 {
		t.Errorf("event scores = (%v, %v), want (0, 7.13)", evt.PreviousScore, evt.Score)
	}
}

func TestSetScore_NoOpOnSameValue(t *testing.T) {
	item := newTestItem(t)
	_ = item.SetScore(5.5)
	item.Events()
	version := item.Version

	if err := item.SetScore(5.5); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if item.Version != version {
		t.Error("setting an unchanged score should not bump the version")
	}
	if len(item.Events()) != 0 {
		t.Error("setting an unchanged score should not record an event")
	}
}

func TestSetScore_OutOfRange(t *testing.T) {
	item := newTestItem(t)
	for _, score := range []float64{-0.01, 10.01} {
		if err := item.SetScore(score); err == nil {
			t.Errorf("SetScore(%v) should fail", score)
		}
	}
}

func TestSetScore_RejectedItemsStayZero(t *testing.T) {
	item := newTestItem(t)
	if err := item.SetCompliance(rtypes.ComplianceRejected); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := item.SetScore(4.2); err == nil {
		t.Error("expected error scoring a rejected item")
	}
	if err := item.SetScore(0); err != nil {
		t.Errorf("score 0 must remain legal for rejected items: %v", err)
	}
}

func TestSetCompliance(t *testing.T) {
	item := newTestItem(t)
	_ = item.SetScore(6.0)
	item.Events()

	if err := item.SetCompliance(rtypes.ComplianceRejected); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if item.Compliance != rtypes.ComplianceRejected {
		t.Errorf("compliance = %s, want REJECTED", item.Compliance)
	}
	if item.Score != 0 {
		t.Errorf("rejection must force score to 0, got %v", item.Score)
	}

	events := item.Events()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	evt, ok := events[0].(*ComplianceChangedEvent)
	if !ok {
		t.Fatalf("expected *ComplianceChangedEvent, got %T", events[0])
	}
	if evt.PreviousCompliance != rtypes.ComplianceWarning {
		t.Errorf("previous compliance = %s, want WARNING", evt.PreviousCompliance)
	}
	if evt.Score != 0 {
		t.Errorf("event score = %v, want 0", evt.Score)
	}
}

func TestSetCompliance_InvalidAndNoOp(t *testing.T) {
	item := newTestItem(t)
	item.Events()

	if err := item.SetCompliance("PENDING"); err == nil {
		t.Error("expected error for unknown compliance status")
	}

	version := item.Version
	if err := item.SetCompliance(rtypes.ComplianceWarning); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if item.Version != version {
		t.Error("setting an unchanged status should not bump the version")
	}
	if len(item.Events()) != 0 {
		t.Error("setting an unchanged status should not record an event")
	}
}

func TestApplyPatch(t *testing.T) {
	item := newTestItem(t)
	item.Events()

	title := "Updated title"
	score := 8.255
	compliance := rtypes.ComplianceCompliant
	tags := []string{"Beta Alanine", "creatine"}

	err := item.ApplyPatch(Patch{
		Title:      &title,
		Score:      &score,
		Compliance: &compliance,
		Tags:       &tags,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if item.Title != "Updated title" {
		t.Errorf("title = %q", item.Title)
	}
	if item.Score != 8.26 {
		t.Errorf("score = %v, want 8.26", item.Score)
	}
	if item.Compliance != rtypes.ComplianceCompliant {
		t.Errorf("compliance = %s, want COMPLIANT", item.Compliance)
	}
	wantTags := []string{"beta_alanine", "creatine"}
	if !reflect.DeepEqual(item.Tags, wantTags) {
		t.Errorf("tags = %v, want %v", item.Tags, wantTags)
	}

	events := item.Events()
	if len(events) != 2 {
		t.Fatalf("expected score + compliance events, got %d", len(events))
	}
}

func TestApplyPatch_Empty(t *testing.T) {
	item := newTestItem(t)
	if err := item.ApplyPatch(Patch{}); err == nil {
		t.Error("expected error for empty patch")
	}
}

func TestApplyPatch_RejectedWithNonZeroScore(t *testing.T) {
	item := newTestItem(t)
	score := 3.0
	compliance := rtypes.ComplianceRejected

	err := item.ApplyPatch(Patch{Score: &score, Compliance: &compliance})
	if err == nil {
		t.Fatal("expected error patching a rejected item with a non-zero score")
	}
	if item.Compliance == rtypes.ComplianceRejected {
		t.Error("failed patch must not partially apply")
	}
}

func TestApplyPatch_RejectionForcesScoreZero(t *testing.T) {
	item := newTestItem(t)
	_ = item.SetScore(6.5)
	item.Events()

	compliance := rtypes.ComplianceRejected
	if err := item.ApplyPatch(Patch{Compliance: &compliance}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if item.Score != 0 {
		t.Errorf("score = %v, want 0 after rejection", item.Score)
	}
}

func TestApplyPatch_FailureLeavesItemUntouched(t *testing.T) {
	item := newTestItem(t)
	before := *item

	title := "New title"
	badURL := "not-a-url"
	err := item.ApplyPatch(Patch{Title: &title, URL: &badURL})
	if err == nil {
		t.Fatal("expected error for invalid url")
	}
	if item.Title != before.Title || item.URL != before.URL || item.Version != before.Version {
		t.Error("failed patch must leave the item untouched")
	}
}

func TestEvents_Drain(t *testing.T) {
	item := newTestItem(t)
	if len(item.Events()) != 1 {
		t.Error("expected construction event on first drain")
	}
	if len(item.Events()) != 0 {
		t.Error("second drain should return nothing")
	}
}

func TestExternalID(t *testing.T) {
	item := newTestItem(t)
	if got := item.ExternalID(); got != "38412345" {
		t.Errorf("ExternalID() = %q, want 38412345", got)
	}

	item.SourceMetadata = nil
	if got := item.ExternalID(); got != "" {
		t.Errorf("ExternalID() without metadata = %q, want empty", got)
	}

	item.SourceMetadata = map[string]interface{}{"external_id": 42}
	if got := item.ExternalID(); got != "" {
		t.Errorf("ExternalID() with non-string value = %q, want empty", got)
	}
}

func TestToDTO(t *testing.T) {
	item := newTestItem(t)
	_ = item.SetScore(7.5)
	_ = item.SetCompliance(rtypes.ComplianceCompliant)

	dto := item.ToDTO()
	if dto.ID != item.ID {
		t.Error("ID mismatch")
	}
	if dto.Source != item.Source || dto.Title != item.Title || dto.URL != item.URL {
		t.Error("identity fields mismatch")
	}
	if dto.Score != 7.5 || dto.ComplianceStatus != rtypes.ComplianceCompliant {
		t.Error("score or compliance mismatch")
	}
	if !time.Time(dto.CreatedAt).Equal(item.CreatedAt) {
		t.Error("CreatedAt mismatch")
	}
}
