package lexindex

import (
	"encoding/json"
	"os"
	"time"
)

// fileDocument is the persisted shape of one document entry: name
// paired with its term frequencies and document text.
type fileDocument struct {
	Name         string         `json:"name"`
	Terms        map[string]int `json:"terms"`
	DocumentText string         `json:"document_text"`
}

type fileIDF struct {
	Token string  `json:"token"`
	Score float64 `json:"score"`
}

// file is the single versioned JSON index file.
type file struct {
	Version    int            `json:"version"`
	LastUpdated time.Time     `json:"last_updated"`
	Documents  []fileDocument `json:"documents"`
	IDF        []fileIDF      `json:"idf"`
}

// Save writes the index to a single versioned JSON file.
func (idx *Index) Save(path string) error {
	idx.mu.RLock()
	f := file{Version: idx.version, LastUpdated: idx.lastUpdate}
	for _, doc := range idx.documents {
		f.Documents = append(f.Documents, fileDocument{Name: doc.Name, Terms: doc.Terms, DocumentText: doc.DocumentText})
	}
	for token, score := range idx.idf {
		f.IDF = append(f.IDF, fileIDF{Token: token, Score: score})
	}
	idx.mu.RUnlock()

	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644) //nolint:gosec
}

// Load reads path. A version mismatch or missing/corrupt file signals
// the caller (via ok=false) to trigger a full rebuild from the graph.
func Load(path string) (idx *Index, ok bool, err error) {
	data, readErr := os.ReadFile(path) //nolint:gosec
	if readErr != nil {
		if os.IsNotExist(readErr) {
			return New(), false, nil
		}
		return nil, false, readErr
	}

	var f file
	if err := json.Unmarshal(data, &f); err != nil {
		return New(), false, nil // corrupt file: signal rebuild rather than hard-fail
	}
	if f.Version != CurrentVersion {
		return New(), false, nil
	}

	newIdx := New()
	newIdx.lastUpdate = f.LastUpdated
	for _, d := range f.Documents {
		newIdx.documents[d.Name] = &Document{Name: d.Name, Terms: d.Terms, DocumentText: d.DocumentText}
		for token := range d.Terms {
			newIdx.df[token]++
			newIdx.addInvertedLocked(token, d.Name)
		}
	}
	for _, e := range f.IDF {
		newIdx.idf[e.Token] = e.Score
	}
	return newIdx, true, nil
}
