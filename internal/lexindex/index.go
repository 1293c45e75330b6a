// Package lexindex implements the TF/IDF inverted index (C3): per-document
// term frequencies, global IDF, and incremental maintenance driven by the
// graph's change-event bus.
package lexindex

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/cortexkg/cortexkg/internal/events"
)

// Document is one entity's indexed text.
type Document struct {
	Name         string
	Terms        map[string]int // token -> count
	DocumentText string
}

// Index is the inverted TF/IDF index. Safe for concurrent use.
type Index struct {
	mu sync.RWMutex

	documents map[string]*Document
	df        map[string]int     // token -> document frequency
	idf       map[string]float64 // token -> ln(N/df)
	inverted  map[string]map[string]bool // token -> set of entity names

	version    int
	lastUpdate time.Time

	subscribed bool
}

// CurrentVersion is bumped whenever the persisted file shape changes
// incompatibly.
const CurrentVersion = 1

// New returns an empty Index.
func New() *Index {
	return &Index{
		documents: make(map[string]*Document),
		df:        make(map[string]int),
		idf:       make(map[string]float64),
		inverted:  make(map[string]map[string]bool),
		version:   CurrentVersion,
	}
}

// Subscribe wires the index to bus so graph mutations keep it current
//. A listener name lets callers enable/disable it
// idempotently for bulk loads.
func (idx *Index) Subscribe(bus *events.Bus, listenerName string, textOf func(entityName string) (string, bool)) {
	bus.Subscribe(listenerName, func(ev events.Event) {
		switch ev.Kind {
		case events.EntityCreated:
			if text, ok := textOf(ev.EntityName); ok {
				idx.AddDocument(ev.EntityName, text)
			}
		case events.EntityUpdated, events.ObservationAdded:
			if text, ok := textOf(ev.EntityName); ok {
				idx.UpdateDocument(ev.EntityName, text)
			}
		case events.EntityDeleted:
			idx.RemoveDocument(ev.EntityName)
		}
	})
	idx.subscribed = true
}

// AddDocument indexes text under name. IDF is recomputed for every token
// currently in the index because N (document count) changed.
func (idx *Index) AddDocument(name, text string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	terms := TermFrequencies(text)
	idx.documents[name] = &Document{Name: name, Terms: terms, DocumentText: text}
	for token := range terms {
		idx.df[token]++
		idx.addInvertedLocked(token, name)
	}
	idx.recomputeAllIDFLocked()
	idx.lastUpdate = time.Now().UTC()
}

// RemoveDocument deletes name's document. IDF is recomputed for every
// remaining token because N changed.
func (idx *Index) RemoveDocument(name string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	doc, ok := idx.documents[name]
	if !ok {
		return
	}
	for token := range doc.Terms {
		idx.df[token]--
		if idx.df[token] <= 0 {
			delete(idx.df, token)
			delete(idx.idf, token)
		}
		idx.removeInvertedLocked(token, name)
	}
	delete(idx.documents, name)
	idx.recomputeAllIDFLocked()
	idx.lastUpdate = time.Now().UTC()
}

// UpdateDocument replaces name's text. N is unchanged, so IDF is
// recomputed only for the tokens the diff added or removed. A name not
// yet indexed is added as a new document, with a full IDF recompute.
func (idx *Index) UpdateDocument(name, text string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	newTerms := TermFrequencies(text)
	oldDoc, existed := idx.documents[name]
	var oldTerms map[string]int
	if existed {
		oldTerms = oldDoc.Terms
	}

	changed := make(map[string]bool)
	for token := range oldTerms {
		if _, stillPresent := newTerms[token]; !stillPresent {
			idx.df[token]--
			if idx.df[token] <= 0 {
				delete(idx.df, token)
				delete(idx.idf, token)
			}
			idx.removeInvertedLocked(token, name)
			changed[token] = true
		}
	}
	for token := range newTerms {
		if _, wasPresent := oldTerms[token]; !wasPresent {
			idx.df[token]++
			idx.addInvertedLocked(token, name)
			changed[token] = true
		}
	}

	idx.documents[name] = &Document{Name: name, Terms: newTerms, DocumentText: text}
	if !existed {
		idx.recomputeAllIDFLocked()
	} else {
		for token := range changed {
			idx.recomputeOneIDFLocked(token)
		}
	}
	idx.lastUpdate = time.Now().UTC()
}

// Score computes Σ tf(t,d)·idf(t) over queryTokens for every document
// that contains at least one of them.
func (idx *Index) Score(queryTokens []string) map[string]float64 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	scores := make(map[string]float64)
	for _, token := range queryTokens {
		idfVal, ok := idx.idf[token]
		if !ok {
			continue
		}
		for name := range idx.inverted[token] {
			doc := idx.documents[name]
			if doc == nil {
				continue
			}
			scores[name] += float64(doc.Terms[token]) * idfVal
		}
	}
	return scores
}

// DocumentText returns the indexed text for name, if present.
func (idx *Index) DocumentText(name string) (string, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	doc, ok := idx.documents[name]
	if !ok {
		return "", false
	}
	return doc.DocumentText, true
}

// CandidateNames returns every name with a token overlapping queryTokens
// — the candidate set before scoring/filtering.
func (idx *Index) CandidateNames(queryTokens []string) map[string]bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make(map[string]bool)
	for _, token := range queryTokens {
		for name := range idx.inverted[token] {
			out[name] = true
		}
	}
	return out
}

// DocumentCount returns N, the number of indexed documents.
func (idx *Index) DocumentCount() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.documents)
}

// IDF returns the current idf score for a token, or 0 if unseen.
func (idx *Index) IDF(token string) float64 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.idf[token]
}

func (idx *Index) addInvertedLocked(token, name string) {
	set, ok := idx.inverted[token]
	if !ok {
		set = make(map[string]bool)
		idx.inverted[token] = set
	}
	set[name] = true
}

func (idx *Index) removeInvertedLocked(token, name string) {
	set, ok := idx.inverted[token]
	if !ok {
		return
	}
	delete(set, name)
	if len(set) == 0 {
		delete(idx.inverted, token)
	}
}

func (idx *Index) recomputeAllIDFLocked() {
	for token := range idx.df {
		idx.recomputeOneIDFLocked(token)
	}
}

func (idx *Index) recomputeOneIDFLocked(token string) {
	df := idx.df[token]
	if df <= 0 {
		delete(idx.idf, token)
		return
	}
	n := len(idx.documents)
	if n == 0 {
		idx.idf[token] = 0
		return
	}
	idx.idf[token] = math.Log(float64(n) / float64(df))
}

// Rebuild clears the index and re-indexes every (name, text) pair —
// used on load when the persisted file's version doesn't match
// CurrentVersion, or explicitly after a bulk load with events disabled
//.
func (idx *Index) Rebuild(docs map[string]string) {
	idx.mu.Lock()
	idx.documents = make(map[string]*Document)
	idx.df = make(map[string]int)
	idx.idf = make(map[string]float64)
	idx.inverted = make(map[string]map[string]bool)
	idx.mu.Unlock()

	for name, text := range docs {
		idx.AddDocument(name, text)
	}
}

// IsStale reports whether the index's document set diverges from the
// expected name set — used for the post-bulk-load staleness check.
func (idx *Index) IsStale(expectedNames map[string]bool) bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if len(expectedNames) != len(idx.documents) {
		return true
	}
	for name := range expectedNames {
		if _, ok := idx.documents[name]; !ok {
			return true
		}
	}
	return false
}

func (idx *Index) String() string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return fmt.Sprintf("lexindex.Index{documents=%d, tokens=%d, version=%d}", len(idx.documents), len(idx.idf), idx.version)
}
