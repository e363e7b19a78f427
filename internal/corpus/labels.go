package corpus

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"flowset/internal/contract"
)

// LabelIndexFile is the file name the index is persisted under.
const LabelIndexFile = "label2idx.json"

// LabelIndex maps labels to dense ids in [0, Len()), assigned in
// lexicographic label order. It is immutable after construction.
type LabelIndex struct {
	labels []string
	ids    map[string]int
}

// NewLabelIndex builds an index over the distinct values of labels.
func NewLabelIndex(labels []string) *LabelIndex {
	seen := make(map[string]struct{}, len(labels))
	uniq := make([]string, 0, len(labels))
	for _, l := range labels {
		if _, ok := seen[l]; ok {
			continue
		}
		seen[l] = struct{}{}
		uniq = append(uniq, l)
	}
	sort.Strings(uniq)

	ids := make(map[string]int, len(uniq))
	for i, l := range uniq {
		ids[l] = i
	}
	return &LabelIndex{labels: uniq, ids: ids}
}

// BuildLabelIndex derives the index from the corpus. When expected is
// positive the number of distinct labels must match it, otherwise a
// *contract.CardinalityError is returned.
func BuildLabelIndex(records []VideoRecord, expected int) (*LabelIndex, error) {
	labels := make([]string, len(records))
	for i, r := range records {
		labels[i] = r.Label
	}
	idx := NewLabelIndex(labels)
	if expected > 0 && idx.Len() != expected {
		return nil, &contract.CardinalityError{Got: idx.Len(), Want: expected}
	}
	return idx, nil
}

func (li *LabelIndex) Len() int { return len(li.labels) }

// ID returns the id of label.
func (li *LabelIndex) ID(label string) (int, bool) {
	id, ok := li.ids[label]
	return id, ok
}

// Label returns the label with the given id.
func (li *LabelIndex) Label(id int) (string, bool) {
	if id < 0 || id >= len(li.labels) {
		return "", false
	}
	return li.labels[id], true
}

// Save writes the index as a JSON object label -> id. The file is written
// next to its destination and renamed into place.
func (li *LabelIndex) Save(path string) error {
	data, err := json.MarshalIndent(li.ids, "", "  ")
	if err != nil {
		return fmt.Errorf("error marshaling label index: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-label2idx-")
	if err != nil {
		return fmt.Errorf("error creating label index file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("error writing label index: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("error writing label index: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("error writing label index: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}

// LoadLabelIndex reads an index written by Save and checks the ids are
// dense and consistent with label order.
func LoadLabelIndex(path string) (*LabelIndex, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read label index: %w", err)
	}
	var ids map[string]int
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("parse label index: %w", err)
	}
	labels := make([]string, 0, len(ids))
	for l := range ids {
		labels = append(labels, l)
	}
	idx := NewLabelIndex(labels)
	for l, id := range ids {
		if idx.ids[l] != id {
			return nil, fmt.Errorf("label index %s: %q has id %d, expected %d", path, l, id, idx.ids[l])
		}
	}
	return idx, nil
}
