package preflight

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"quizqa/internal/backend"
	"quizqa/internal/services"
	"quizqa/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckBackend(t *testing.T) {
	healthy := testsupport.NewFakeBackend("alpha", nil)
	if r := CheckBackend(context.Background(), "alpha", healthy); !r.Passed || r.Kind != KindBackend {
		t.Fatalf("expected healthy backend to pass: %+v", r)
	}

	down := testsupport.NewFakeBackend("beta", nil)
	down.SetHealth(services.Wrap(services.ErrPermanent, "fake", "health", "unauthorized", nil))
	r := CheckBackend(context.Background(), "beta", down)
	if r.Passed {
		t.Fatal("expected unhealthy backend to fail")
	}
	if r.Detail == "" {
		t.Fatal("expected a failure detail")
	}

	if r := CheckBackend(context.Background(), "gamma", nil); r.Passed {
		t.Fatal("nil backend must fail")
	}
}

func TestRunAllChecksBackendsAndDirectories(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatal(err)
	}
	down := testsupport.NewFakeBackend(testsupport.BackendB, nil)
	down.SetHealth(errors.New("connection refused"))
	backends := map[string]backend.Backend{
		testsupport.BackendA: testsupport.NewFakeBackend(testsupport.BackendA, nil),
		testsupport.BackendB: down,
	}

	results := RunAll(context.Background(), cfg, backends)
	if len(results) != 4 {
		t.Fatalf("expected 2 backend + 2 directory checks, got %d", len(results))
	}
	if results[0].Name != testsupport.BackendA || !results[0].Passed {
		t.Fatalf("unexpected first result %+v", results[0])
	}
	if results[1].Name != testsupport.BackendB || results[1].Passed {
		t.Fatalf("unexpected second result %+v", results[1])
	}
	for _, r := range results[2:] {
		if r.Kind != KindDirectory || !r.Passed {
			t.Errorf("directory check %q failed: %s", r.Name, r.Detail)
		}
	}

	a, err := Assess(results)
	if err != nil {
		t.Fatalf("a partial outage must not be fatal: %v", err)
	}
	if len(a.Reachable) != 1 || len(a.Unreachable) != 1 || len(a.Storage) != 0 {
		t.Fatalf("unexpected assessment %+v", a)
	}
}

func TestAssessFailsWhenNoBackendReachable(t *testing.T) {
	results := []Result{
		{Name: "alpha", Kind: KindBackend, Detail: "timed out"},
		{Name: "beta", Kind: KindBackend, Detail: "rejected"},
		{Name: "Report directory", Kind: KindDirectory, Detail: "read-only"},
	}
	a, err := Assess(results)
	if !errors.Is(err, services.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if len(a.Storage) != 1 {
		t.Fatalf("directory failure should be reported as storage: %+v", a)
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	if results := RunAll(context.Background(), nil, nil); results != nil {
		t.Fatal("expected nil results for nil config")
	}
}
