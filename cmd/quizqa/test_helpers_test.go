package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"quizqa/internal/testsupport"
)

type cliTestEnv struct {
	baseDir    string
	configPath string
	itemsPath  string
	checkpoint string
	reportDir  string
	server     *httptest.Server
	calls      atomic.Int64
}

// completionContent satisfies both the health ping and every evaluation.
const completionContent = `{"ok":true,"checks":{` +
	`"single_correct_answer":{"score":1,"passed":true,"rationale":"one key"},` +
	`"plausible_distractors":{"score":0,"passed":false,"rationale":"choice D is absurd"},` +
	`"answerable_from_passage":{"score":1,"passed":true,"rationale":"stated in passage"}}}`

func setupCLITestEnv(t *testing.T, items int) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	t.Setenv("HOME", filepath.Join(base, "home"))
	env := &cliTestEnv{
		baseDir:    base,
		configPath: filepath.Join(base, "quizqa.toml"),
		itemsPath:  filepath.Join(base, "items.csv"),
		checkpoint: filepath.Join(base, "state", "checkpoint.json"),
		reportDir:  filepath.Join(base, "reports"),
	}
	env.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		env.calls.Add(1)
		payload := map[string]any{
			"model": "demo-model",
			"choices": []any{
				map[string]any{"message": map[string]any{"content": completionContent}},
			},
		}
		_ = json.NewEncoder(w).Encode(payload)
	}))
	t.Cleanup(env.server.Close)

	testsupport.WriteItemsCSV(t, env.itemsPath, testsupport.ItemHeader, testsupport.ItemRows(items, 2))
	writeTestConfig(t, env)
	return env
}

func writeTestConfig(t *testing.T, env *cliTestEnv) {
	t.Helper()

	var b strings.Builder
	fmt.Fprintf(&b, "[paths]\nitems_file = %q\ncheckpoint_file = %q\nreport_dir = %q\nlog_dir = %q\n\n",
		env.itemsPath, env.checkpoint, env.reportDir, filepath.Join(env.baseDir, "logs"))
	b.WriteString("[run]\nbatch_size = 4\npreflight = true\n\n")
	for _, name := range []string{testsupport.BackendA, testsupport.BackendB} {
		fmt.Fprintf(&b, "[backends.%s]\nkind = \"openai\"\napi_key = \"test\"\nbase_url = %q\nmodel = \"demo-model\"\n", name, env.server.URL)
		b.WriteString("rate_per_minute = 60000\nmin_rate_per_minute = 600\nmax_rate_per_minute = 120000\nburst = 1000\n")
		b.WriteString("max_retries = 2\nbase_delay_ms = 1\nmax_delay_ms = 5\njitter_ms = 0\n\n")
	}
	checks := [][2]string{
		{testsupport.CheckSingleAnswer, testsupport.BackendA},
		{testsupport.CheckDistractors, testsupport.BackendA},
		{testsupport.CheckAnswerable, testsupport.BackendB},
	}
	for _, c := range checks {
		fmt.Fprintf(&b, "[[checks]]\nname = %q\nbackend = %q\ninstruction = \"Judge it.\"\n\n", c[0], c[1])
	}
	b.WriteString("[logging]\nlevel = \"error\"\n")

	if err := os.WriteFile(env.configPath, []byte(b.String()), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()

	cmd := newRootCommand()
	if configPath != "" {
		args = append([]string{"--config", configPath}, args...)
	}
	cmd.SetArgs(args)
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, haystack, needle string) {
	t.Helper()
	if !strings.Contains(haystack, needle) {
		t.Fatalf("expected output to contain %q\nfull output:\n%s", needle, haystack)
	}
}
