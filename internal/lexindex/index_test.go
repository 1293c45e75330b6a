package lexindex

import (
	"math"
	"testing"
)

func approxEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestIndex_AddDocument_IDFDecreasesAsCorpusGrows(t *testing.T) {
	t.Parallel()

	idx := New()
	idx.AddDocument("doc1", "hiking mountains")
	idf1 := idx.IDF("hiking")
	if !approxEqual(idf1, 0) {
		t.Fatalf("IDF(hiking) with N=1, df=1 = %v, want 0 (ln(1/1))", idf1)
	}

	idx.AddDocument("doc2", "cooking recipes")
	idfAfterUnrelated := idx.IDF("hiking")
	want := math.Log(2.0 / 1.0)
	if !approxEqual(idfAfterUnrelated, want) {
		t.Fatalf("IDF(hiking) after adding an unrelated doc = %v, want %v (ln(2/1))", idfAfterUnrelated, want)
	}

	idx.AddDocument("doc3", "hiking trails")
	idfAfterShared := idx.IDF("hiking")
	want = math.Log(3.0 / 2.0)
	if !approxEqual(idfAfterShared, want) {
		t.Fatalf("IDF(hiking) after a second doc shares the term = %v, want %v (ln(3/2))", idfAfterShared, want)
	}
}

func TestIndex_RemoveDocument_RecomputesIDFAndDropsEmptyTokens(t *testing.T) {
	t.Parallel()

	idx := New()
	idx.AddDocument("doc1", "hiking mountains")
	idx.AddDocument("doc2", "hiking trails")

	idx.RemoveDocument("doc2")

	if idx.DocumentCount() != 1 {
		t.Fatalf("DocumentCount = %d, want 1", idx.DocumentCount())
	}
	if got := idx.IDF("hiking"); !approxEqual(got, 0) {
		t.Fatalf("IDF(hiking) with N=1, df=1 after removal = %v, want 0", got)
	}
	candidates := idx.CandidateNames([]string{"trails"})
	if len(candidates) != 0 {
		t.Fatalf("candidates for a token only doc2 had = %v, want none (token fully removed)", candidates)
	}
}

func TestIndex_UpdateDocument_OnlyRecomputesChangedTokens(t *testing.T) {
	t.Parallel()

	idx := New()
	idx.AddDocument("doc1", "hiking mountains")
	idx.AddDocument("doc2", "cooking recipes")

	idfCookingBefore := idx.IDF("cooking")

	idx.UpdateDocument("doc1", "hiking trails")

	if idx.DocumentCount() != 2 {
		t.Fatalf("DocumentCount after update = %d, want 2 (N unaffected by UpdateDocument)", idx.DocumentCount())
	}
	if got := idx.IDF("mountains"); got != 0 {
		t.Fatalf("IDF(mountains) after it was dropped from doc1 = %v, want 0 (token no longer indexed)", got)
	}
	if _, ok := idx.CandidateNames([]string{"mountains"})["doc1"]; ok {
		t.Error("doc1 should no longer be a candidate for 'mountains'")
	}
	if _, ok := idx.CandidateNames([]string{"trails"})["doc1"]; !ok {
		t.Error("doc1 should now be a candidate for the newly added 'trails'")
	}
	if got := idx.IDF("cooking"); !approxEqual(got, idfCookingBefore) {
		t.Errorf("IDF(cooking) = %v, want unchanged %v: editing doc1 must not touch a token it never shared", got, idfCookingBefore)
	}
}

func TestIndex_Score_SumsTermFrequencyTimesIDFAcrossQueryTokens(t *testing.T) {
	t.Parallel()

	idx := New()
	idx.AddDocument("doc1", "hiking hiking mountains")
	idx.AddDocument("doc2", "cooking recipes")

	scores := idx.Score([]string{"hiking", "mountains"})
	if scores["doc2"] != 0 {
		t.Errorf("doc2 has neither query token, want score 0, got %v", scores["doc2"])
	}
	if scores["doc1"] <= 0 {
		t.Errorf("doc1 should have a positive combined score, got %v", scores["doc1"])
	}
}

func TestIndex_Rebuild_ReplacesEntireIndex(t *testing.T) {
	t.Parallel()

	idx := New()
	idx.AddDocument("stale", "old content")

	idx.Rebuild(map[string]string{
		"doc1": "hiking mountains",
		"doc2": "cooking recipes",
	})

	if idx.DocumentCount() != 2 {
		t.Fatalf("DocumentCount after Rebuild = %d, want 2", idx.DocumentCount())
	}
	if _, ok := idx.DocumentText("stale"); ok {
		t.Error("Rebuild must discard documents not present in the new set")
	}
}

func TestIndex_IsStale(t *testing.T) {
	t.Parallel()

	idx := New()
	idx.AddDocument("doc1", "hiking")
	idx.AddDocument("doc2", "cooking")

	if idx.IsStale(map[string]bool{"doc1": true, "doc2": true}) {
		t.Error("index matching the expected name set must not be stale")
	}
	if !idx.IsStale(map[string]bool{"doc1": true}) {
		t.Error("index with an extra document must be stale")
	}
	if !idx.IsStale(map[string]bool{"doc1": true, "doc2": true, "doc3": true}) {
		t.Error("index missing an expected document must be stale")
	}
}
