package checks

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"quizqa/internal/config"
	"quizqa/internal/evaluation"
	"quizqa/internal/services"
)

// Check is one named quality criterion evaluated by exactly one backend.
type Check struct {
	Name        string
	Backend     string
	Instruction string
	// ItemTypes restricts the check to items of these types. Empty means all.
	ItemTypes []string
}

// AppliesTo reports whether the check is required for items of itemType.
func (c Check) AppliesTo(itemType string) bool {
	if len(c.ItemTypes) == 0 {
		return true
	}
	return slices.Contains(c.ItemTypes, itemType)
}

// Catalog is the configured set of checks.
type Catalog struct {
	checks []Check
	byName map[string]Check
}

// New builds a catalog from [[checks]] config entries.
func New(defs []config.Check) (*Catalog, error) {
	c := &Catalog{byName: make(map[string]Check, len(defs))}
	for _, def := range defs {
		name := strings.TrimSpace(def.Name)
		if name == "" {
			return nil, services.Wrap(services.ErrConfiguration, "checks", "catalog", "check name is empty", nil)
		}
		if _, dup := c.byName[name]; dup {
			return nil, services.Wrap(services.ErrConfiguration, "checks", "catalog", fmt.Sprintf("duplicate check %q", name), nil)
		}
		if strings.TrimSpace(def.Backend) == "" {
			return nil, services.Wrap(services.ErrConfiguration, "checks", "catalog", fmt.Sprintf("check %q has no backend", name), nil)
		}
		check := Check{
			Name:        name,
			Backend:     strings.TrimSpace(def.Backend),
			Instruction: strings.TrimSpace(def.Instruction),
			ItemTypes:   append([]string(nil), def.ItemTypes...),
		}
		c.checks = append(c.checks, check)
		c.byName[name] = check
	}
	return c, nil
}

// Checks returns all checks in configuration order.
func (c *Catalog) Checks() []Check {
	return append([]Check(nil), c.checks...)
}

// Lookup returns the named check.
func (c *Catalog) Lookup(name string) (Check, bool) {
	check, ok := c.byName[name]
	return check, ok
}

// Backends returns every backend referenced by a check, sorted.
func (c *Catalog) Backends() []string {
	seen := map[string]struct{}{}
	for _, check := range c.checks {
		seen[check.Backend] = struct{}{}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Requirements returns the backend-to-checks map required for itemType.
func (c *Catalog) Requirements(itemType string) evaluation.Requirements {
	req := evaluation.Requirements{}
	for _, check := range c.checks {
		if !check.AppliesTo(itemType) {
			continue
		}
		req[check.Backend] = append(req[check.Backend], check.Name)
	}
	for backend := range req {
		sort.Strings(req[backend])
	}
	return req
}
