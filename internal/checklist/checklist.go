package checklist

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dshills/docreview/internal/review"
)

// entry is one raw checklist entry before ids are assigned. ID 0 means
// unassigned.
type entry struct {
	ID      int    `yaml:"id" json:"id"`
	Content string `yaml:"content" json:"content"`
}

// UnmarshalYAML accepts either a scalar or a mapping.
func (e *entry) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		e.Content = node.Value
		return nil
	}
	type plain entry
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*e = entry(p)
	return nil
}

// UnmarshalJSON accepts either a string or an object.
func (e *entry) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		e.Content = s
		return nil
	}
	type plain entry
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*e = entry(p)
	return nil
}

type document struct {
	Items []entry `yaml:"items" json:"items"`
}

// Load reads a checklist file. The format follows the extension.
func Load(path string) ([]review.ChecklistItem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading checklist: %w", err)
	}
	items, err := Parse(filepath.Ext(path), data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return items, nil
}

// Parse decodes checklist data in the format named by ext (".yaml", ".yml",
// ".json" or ".csv").
func Parse(ext string, data []byte) ([]review.ChecklistItem, error) {
	var (
		entries []entry
		err     error
	)
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		entries, err = parseYAML(data)
	case ".json":
		entries, err = parseJSON(data)
	case ".csv":
		entries, err = parseCSV(data)
	default:
		return nil, fmt.Errorf("unsupported checklist format %q", ext)
	}
	if err != nil {
		return nil, err
	}
	return assign(entries)
}

func parseYAML(data []byte) ([]entry, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	if len(node.Content) == 0 {
		return nil, nil
	}
	root := node.Content[0]
	if root.Kind == yaml.MappingNode {
		var doc document
		if err := root.Decode(&doc); err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
		return doc.Items, nil
	}
	var entries []entry
	if err := root.Decode(&entries); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	return entries, nil
}

func parseJSON(data []byte) ([]entry, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var doc document
		if err := json.Unmarshal(trimmed, &doc); err != nil {
			return nil, fmt.Errorf("parse json: %w", err)
		}
		return doc.Items, nil
	}
	var entries []entry
	if err := json.Unmarshal(trimmed, &entries); err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}
	return entries, nil
}

func parseCSV(data []byte) ([]entry, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.TrimLeadingSpace = true
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	idCol, contentCol := -1, -1
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "id":
			idCol = i
		case "content", "item":
			contentCol = i
		}
	}
	if contentCol < 0 {
		return nil, errors.New(`csv checklist needs a "content" column`)
	}

	var entries []entry
	for line := 2; ; line++ {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse csv: %w", err)
		}
		var e entry
		if contentCol < len(row) {
			e.Content = row[contentCol]
		}
		if idCol >= 0 && idCol < len(row) && strings.TrimSpace(row[idCol]) != "" {
			e.ID, err = strconv.Atoi(strings.TrimSpace(row[idCol]))
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid id %q", line, row[idCol])
			}
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// assign validates entries and fills in missing ids.
func assign(entries []entry) ([]review.ChecklistItem, error) {
	taken := make(map[int]bool, len(entries))
	for i, e := range entries {
		if e.ID < 0 {
			return nil, fmt.Errorf("item %d: id must be positive", i+1)
		}
		if e.ID == 0 {
			continue
		}
		if taken[e.ID] {
			return nil, fmt.Errorf("item %d: duplicate id %d", i+1, e.ID)
		}
		taken[e.ID] = true
	}

	items := make([]review.ChecklistItem, 0, len(entries))
	next := 1
	for i, e := range entries {
		content := strings.TrimSpace(e.Content)
		if content == "" {
			return nil, fmt.Errorf("item %d: empty content", i+1)
		}
		id := e.ID
		if id == 0 {
			for taken[next] {
				next++
			}
			id = next
			taken[id] = true
		}
		items = append(items, review.ChecklistItem{ID: id, Content: content})
	}
	if len(items) == 0 {
		return nil, errors.New("checklist has no items")
	}
	return items, nil
}
