package preflight

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"quizqa/internal/backend"
	"quizqa/internal/config"
	"quizqa/internal/services"
)

// Kind groups checks by what they probe.
type Kind string

const (
	KindBackend   Kind = "backend"
	KindDirectory Kind = "directory"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Kind   Kind
	Passed bool
	Detail string
}

// RunAll checks every backend in backends concurrently, then the checkpoint
// and report directories. Results come back backends first, sorted by name.
func RunAll(ctx context.Context, cfg *config.Config, backends map[string]backend.Backend) []Result {
	if cfg == nil {
		return nil
	}

	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)

	results := make([]Result, len(names))
	var g errgroup.Group
	for i, name := range names {
		g.Go(func() error {
			results[i] = CheckBackend(ctx, name, backends[name])
			return nil
		})
	}
	_ = g.Wait()

	if cfg.Paths.CheckpointFile != "" {
		results = append(results, CheckDirectoryAccess("Checkpoint directory", filepath.Dir(cfg.Paths.CheckpointFile)))
	}
	if cfg.Paths.ReportDir != "" {
		results = append(results, CheckDirectoryAccess("Report directory", cfg.Paths.ReportDir))
	}
	return results
}

// Assessment summarizes a preflight pass.
type Assessment struct {
	Reachable   []string
	Unreachable []string
	// Storage lists failed directory checks. They degrade persistence but do
	// not stop the run.
	Storage []Result
}

// Assess interprets results. It fails with services.ErrUnavailable when
// backend checks ran and none of them passed, because no progress is
// possible.
func Assess(results []Result) (Assessment, error) {
	var a Assessment
	var details []string
	for _, r := range results {
		switch r.Kind {
		case KindBackend:
			if r.Passed {
				a.Reachable = append(a.Reachable, r.Name)
			} else {
				a.Unreachable = append(a.Unreachable, r.Name)
				details = append(details, fmt.Sprintf("%s: %s", r.Name, r.Detail))
			}
		case KindDirectory:
			if !r.Passed {
				a.Storage = append(a.Storage, r)
			}
		}
	}
	if len(a.Reachable) == 0 && len(a.Unreachable) > 0 {
		return a, services.Wrap(services.ErrUnavailable, "preflight", "assess",
			"no backend reachable: "+strings.Join(details, "; "), nil)
	}
	return a, nil
}
