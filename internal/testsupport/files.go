package testsupport

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

// ItemHeader is the column layout matching config defaults.
var ItemHeader = []string{"id", "type", "passage_id", "passage", "question", "choice_a", "choice_b", "choice_c", "choice_d", "correct_answer"}

// ItemRows generates n multiple-choice rows spread across groups passages.
func ItemRows(n, groups int) [][]string {
	if groups <= 0 {
		groups = 1
	}
	rows := make([][]string, 0, n)
	for i := 1; i <= n; i++ {
		group := (i-1)%groups + 1
		rows = append(rows, []string{
			fmt.Sprintf("q-%03d", i),
			"multiple_choice",
			fmt.Sprintf("p-%02d", group),
			fmt.Sprintf("Passage %d text about topic %d.", group, group),
			fmt.Sprintf("Question %d?", i),
			"Alpha", "Beta", "Gamma", "Delta",
			"B",
		})
	}
	return rows
}

// WriteItemsCSV writes header and rows as CSV to path.
func WriteItemsCSV(t testing.TB, path string, header []string, rows [][]string) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		t.Fatalf("write header: %v", err)
	}
	if err := w.WriteAll(rows); err != nil {
		t.Fatalf("write rows: %v", err)
	}
}
