package graph

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// record is the on-disk line shape: one JSON object per line, entities
// first then relations. record_kind distinguishes the two so a
// streaming reader never has to guess from field presence alone —
// grounded on steveyegge-beads/internal/jsonl's line-oriented format,
// extended with a discriminant since this store interleaves two record
// shapes in a single file.
type record struct {
	Kind     string    `json:"record_kind"`
	Entity   *Entity   `json:"entity,omitempty"`
	Relation *Relation `json:"relation,omitempty"`
}

const (
	kindEntity   = "entity"
	kindRelation = "relation"
)

// maxLineBytes bounds a single JSONL line; matches beads' 64MB scanner
// ceiling, generous for any single entity/relation record.
const maxLineBytes = 64 * 1024 * 1024

// readJSONL streams path line by line. A missing file means an empty
// graph, not an error.
func readJSONL(path string) ([]*Entity, []*Relation, error) {
	f, err := os.Open(path) //nolint:gosec // path is operator-controlled, not request input
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, nil
		}
		return nil, nil, err
	}
	defer f.Close()

	var entities []*Entity
	var relations []*Relation

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), maxLineBytes)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec record
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		switch rec.Kind {
		case kindEntity:
			if rec.Entity != nil {
				entities = append(entities, rec.Entity)
			}
		case kindRelation:
			if rec.Relation != nil {
				relations = append(relations, rec.Relation)
			}
		default:
			return nil, nil, fmt.Errorf("line %d: unknown record_kind %q", lineNo, rec.Kind)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("scan: %w", err)
	}
	return entities, relations, nil
}

// writeJSONL writes entities then relations as newline-delimited JSON
// records via a temp-file-then-rename so a crash mid-write never leaves a
// partially-written graph file in place.
func writeJSONL(path string, entities []*Entity, relations []*Relation) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".graph-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once rename succeeds

	w := bufio.NewWriter(tmp)
	enc := json.NewEncoder(w)

	for _, e := range entities {
		if err := enc.Encode(record{Kind: kindEntity, Entity: e}); err != nil {
			tmp.Close()
			return err
		}
	}
	for _, r := range relations {
		if err := enc.Encode(record{Kind: kindRelation, Relation: r}); err != nil {
			tmp.Close()
			return err
		}
	}

	if err := w.Flush(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}
