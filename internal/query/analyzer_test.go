package query

import (
	"testing"
	"time"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestAnalyzer_ClassifiesQuestionType(t *testing.T) {
	a := NewAnalyzer(fixedClock(time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)))

	tests := []struct {
		query string
		want  QuestionType
	}{
		{"who leads the research team?", QuestionFactual},
		{"when did the meeting happen?", QuestionTemporal},
		{"compare Alice versus Bob", QuestionComparative},
		{"how many observations does Alice have?", QuestionAggregation},
		{"why does the decay engine reset confidence?", QuestionConceptual},
		{"find the location and then summarize the faction", QuestionMultiHop},
	}
	for _, tt := range tests {
		got := a.Analyze(tt.query).QuestionType
		if got != tt.want {
			t.Errorf("Analyze(%q).QuestionType = %q, want %q", tt.query, got, tt.want)
		}
	}
}

func TestAnalyzer_ExtractsPersonsAndLocations(t *testing.T) {
	a := NewAnalyzer(nil)
	analysis := a.Analyze("Dr. Alameda met Bob in Riverside yesterday")

	if len(analysis.Persons) == 0 {
		t.Error("expected at least one person extracted")
	}
	found := false
	for _, p := range analysis.Persons {
		if p == "Alameda" {
			found = true
		}
	}
	if !found {
		t.Errorf("Persons = %v, want to contain Alameda", analysis.Persons)
	}

	if len(analysis.Locations) == 0 || analysis.Locations[0] != "Riverside" {
		t.Errorf("Locations = %v, want [Riverside]", analysis.Locations)
	}
}

func TestAnalyzer_ResolvesRelativeTemporalPhrase(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	a := NewAnalyzer(fixedClock(now))

	analysis := a.Analyze("what happened yesterday?")
	if analysis.TemporalRange == nil {
		t.Fatal("expected a temporal range for 'yesterday'")
	}
	if analysis.TemporalRange.Relative != "yesterday" {
		t.Errorf("Relative = %q, want yesterday", analysis.TemporalRange.Relative)
	}
}

func TestAnalyzer_SplitsSubQueriesOnAndThen(t *testing.T) {
	a := NewAnalyzer(nil)
	analysis := a.Analyze("find the faction and then summarize its leader")
	if len(analysis.SubQueries) != 2 {
		t.Fatalf("SubQueries = %v, want 2 entries", analysis.SubQueries)
	}
}

func TestAnalyzer_ComplexityScalesWithEntityCount(t *testing.T) {
	a := NewAnalyzer(nil)
	low := a.Analyze("hi there")
	high := a.Analyze("Dr. Alameda met Bob and Carol in Riverside near the Acme Corp outpost yesterday")

	if low.Complexity != ComplexityLow {
		t.Errorf("short query Complexity = %q, want low", low.Complexity)
	}
	if high.Complexity == ComplexityLow {
		t.Errorf("entity-dense query Complexity = %q, want medium or high", high.Complexity)
	}
}
