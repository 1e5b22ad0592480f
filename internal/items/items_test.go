package items

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"quizqa/internal/services"
)

func testSchema() Schema {
	return Schema{
		IDColumn:           "id",
		TypeColumn:         "type",
		GroupColumn:        "passage_id",
		ContextColumn:      "passage",
		ContentColumns:     []string{"question", "answer"},
		FingerprintColumns: []string{"question", "answer"},
	}
}

func TestReadCSVMapsColumns(t *testing.T) {
	input := "\ufeffid,type,passage_id,passage,question,answer,notes\n" +
		"q1,multiple_choice,p1,\"Once upon a time, a fox.\",Who?, fox ,ignored\n" +
		"q2,short,p1,\"Once upon a time, a fox.\",Where?,forest,\n"

	got, err := ReadCSV(strings.NewReader(input), testSchema())
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 items, got %d", len(got))
	}
	first := got[0]
	if first.ID != "q1" || first.Type != "multiple_choice" || first.Group != "p1" {
		t.Fatalf("unexpected item: %+v", first)
	}
	if first.Context != "Once upon a time, a fox." {
		t.Fatalf("unexpected context %q", first.Context)
	}
	if first.Value("answer") != "fox" {
		t.Fatalf("expected trimmed answer, got %q", first.Value("answer"))
	}
	if len(first.Covered) != 2 || first.Covered[0].Name != "question" {
		t.Fatalf("unexpected covered fields %+v", first.Covered)
	}
}

func TestReadCSVRejectsDuplicateIDs(t *testing.T) {
	input := "id,type,passage_id,passage,question,answer\n" +
		"q1,mc,p1,text,a,b\n" +
		"q1,mc,p1,text,c,d\n"
	_, err := ReadCSV(strings.NewReader(input), testSchema())
	if err == nil || !strings.Contains(err.Error(), "duplicate id") {
		t.Fatalf("expected duplicate id error, got %v", err)
	}
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestReadCSVRejectsEmptyID(t *testing.T) {
	input := "id,type,passage_id,passage,question,answer\n" +
		" ,mc,p1,text,a,b\n"
	if _, err := ReadCSV(strings.NewReader(input), testSchema()); err == nil {
		t.Fatal("expected error for empty id")
	}
}

func TestReadCSVReportsMissingColumns(t *testing.T) {
	input := "id,question\nq1,a\n"
	_, err := ReadCSV(strings.NewReader(input), testSchema())
	if err == nil {
		t.Fatal("expected missing column error")
	}
	for _, col := range []string{"type", "passage", "answer"} {
		if !strings.Contains(err.Error(), col) {
			t.Fatalf("expected %q in %v", col, err)
		}
	}
}

func TestReadCSVOptionalColumns(t *testing.T) {
	schema := Schema{IDColumn: "id", ContentColumns: []string{"question"}, FingerprintColumns: []string{"question"}}
	got, err := ReadCSV(strings.NewReader("id,question\nq1,What?\n"), schema)
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if got[0].Type != "" || got[0].Group != "" || got[0].Context != "" {
		t.Fatalf("expected empty optional fields, got %+v", got[0])
	}
}

func TestLoadCSVMissingFile(t *testing.T) {
	_, err := LoadCSV(filepath.Join(t.TempDir(), "nope.csv"), testSchema())
	if !errors.Is(err, services.ErrConfiguration) || !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected configuration error wrapping not-exist, got %v", err)
	}
}

func TestReadCSVEmptySource(t *testing.T) {
	if _, err := ReadCSV(strings.NewReader(""), testSchema()); err == nil {
		t.Fatal("expected error for empty source")
	}
}
