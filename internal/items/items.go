package items

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"quizqa/internal/config"
	"quizqa/internal/services"
)

// Field is one named content value. Order follows the configured column list.
type Field struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Item is one unit of work loaded from the item source.
type Item struct {
	ID      string
	Type    string
	Group   string
	Context string
	// Content holds the fields sent to backends.
	Content []Field
	// Covered holds the fields whose change forces re-evaluation.
	Covered []Field
}

// Value returns the content value for name, or "".
func (it Item) Value(name string) string {
	for _, f := range it.Content {
		if f.Name == name {
			return f.Value
		}
	}
	return ""
}

// Schema maps source columns onto Item fields.
type Schema struct {
	IDColumn           string
	TypeColumn         string
	GroupColumn        string
	ContextColumn      string
	ContentColumns     []string
	FingerprintColumns []string
}

// SchemaFromConfig builds a Schema from the [items] config section. The
// fingerprint covers the content columns unless configured otherwise.
func SchemaFromConfig(cfg config.Items) Schema {
	covered := cfg.FingerprintColumns
	if len(covered) == 0 {
		covered = cfg.ContentColumns
	}
	return Schema{
		IDColumn:           cfg.IDColumn,
		TypeColumn:         cfg.TypeColumn,
		GroupColumn:        cfg.GroupColumn,
		ContextColumn:      cfg.ContextColumn,
		ContentColumns:     append([]string(nil), cfg.ContentColumns...),
		FingerprintColumns: append([]string(nil), covered...),
	}
}

// LoadCSV reads items from a CSV file with a header row.
func LoadCSV(path string, schema Schema) ([]Item, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "items", "open", path, err)
	}
	defer file.Close()
	return ReadCSV(file, schema)
}

// ReadCSV parses items from r. Duplicate or empty identifiers and missing
// columns are configuration errors: the run cannot proceed on ambiguous input.
func ReadCSV(r io.Reader, schema Schema) ([]Item, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, services.Wrap(services.ErrConfiguration, "items", "read header", "item source is empty", nil)
		}
		return nil, services.Wrap(services.ErrConfiguration, "items", "read header", "", err)
	}
	index, err := indexColumns(header, schema)
	if err != nil {
		return nil, err
	}

	var out []Item
	seen := make(map[string]int)
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, services.Wrap(services.ErrConfiguration, "items", "read row", "", err)
		}
		line, _ := reader.FieldPos(0)

		item := Item{
			ID:      cell(record, index, schema.IDColumn),
			Type:    cell(record, index, schema.TypeColumn),
			Group:   cell(record, index, schema.GroupColumn),
			Context: cell(record, index, schema.ContextColumn),
		}
		if item.ID == "" {
			return nil, services.Wrap(services.ErrConfiguration, "items", "read row",
				fmt.Sprintf("line %d: empty %s", line, schema.IDColumn), nil)
		}
		if prev, ok := seen[item.ID]; ok {
			return nil, services.Wrap(services.ErrConfiguration, "items", "read row",
				fmt.Sprintf("line %d: duplicate id %q (first seen on line %d)", line, item.ID, prev), nil)
		}
		seen[item.ID] = line

		item.Content = fields(record, index, schema.ContentColumns)
		item.Covered = fields(record, index, schema.FingerprintColumns)
		out = append(out, item)
	}
	return out, nil
}

func indexColumns(header []string, schema Schema) (map[string]int, error) {
	index := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimSpace(name)
		if i == 0 {
			name = strings.TrimPrefix(name, "\ufeff")
		}
		index[name] = i
	}

	required := []string{schema.IDColumn, schema.TypeColumn, schema.GroupColumn, schema.ContextColumn}
	required = append(required, schema.ContentColumns...)
	required = append(required, schema.FingerprintColumns...)
	var missing []string
	for _, name := range required {
		if name == "" {
			continue
		}
		if _, ok := index[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, services.Wrap(services.ErrConfiguration, "items", "read header",
			"missing columns: "+strings.Join(missing, ", "), nil)
	}
	return index, nil
}

func cell(record []string, index map[string]int, column string) string {
	if column == "" {
		return ""
	}
	i, ok := index[column]
	if !ok || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

func fields(record []string, index map[string]int, columns []string) []Field {
	out := make([]Field, 0, len(columns))
	for _, name := range columns {
		out = append(out, Field{Name: name, Value: cell(record, index, name)})
	}
	return out
}
