package checks

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"quizqa/internal/backend"
	"quizqa/internal/items"
	"quizqa/internal/services"
)

var systemTemplate = template.Must(template.New("system").Parse(`You review quiz items for quality.
Evaluate the item against each check below. Judge each check independently.

Checks:
{{range .Checks}}- {{.Name}}: {{.Instruction}}
{{end}}
For every check, report score 1 and passed true when the item satisfies it,
otherwise score 0 and passed false. Give a rationale of one or two sentences.

Respond with a single JSON object and nothing else. It must match this schema:
{{.Schema}}
`))

var sharedTemplate = template.Must(template.New("shared").Parse(`Shared context for this group of items:
{{.}}
`))

var itemTemplate = template.Must(template.New("item").Parse(`Item {{.ID}}{{if .Type}} ({{.Type}}){{end}}
{{range .Content}}{{.Name}}: {{.Value}}
{{end}}`))

// BuildRequest renders the prompt asking backendName to evaluate the named
// checks for item. Every name must be a catalog check owned by backendName.
func (c *Catalog) BuildRequest(item items.Item, backendName string, names []string, correlationID string) (backend.Request, error) {
	if len(names) == 0 {
		return backend.Request{}, services.Wrap(services.ErrConfiguration, "checks", "prompt", "no checks requested", nil)
	}
	selected := make([]Check, 0, len(names))
	for _, name := range names {
		check, ok := c.byName[name]
		if !ok {
			return backend.Request{}, services.Wrap(services.ErrConfiguration, "checks", "prompt", fmt.Sprintf("unknown check %q", name), nil)
		}
		if check.Backend != backendName {
			return backend.Request{}, services.Wrap(services.ErrConfiguration, "checks", "prompt",
				fmt.Sprintf("check %q belongs to backend %q, not %q", name, check.Backend, backendName), nil)
		}
		selected = append(selected, check)
	}

	checkNames := make([]string, len(selected))
	for i, check := range selected {
		checkNames[i] = check.Name
	}

	system, err := render(systemTemplate, struct {
		Checks []Check
		Schema string
	}{selected, backend.SchemaJSON(checkNames)})
	if err != nil {
		return backend.Request{}, err
	}
	prompt, err := render(itemTemplate, item)
	if err != nil {
		return backend.Request{}, err
	}
	var shared string
	if strings.TrimSpace(item.Context) != "" {
		if shared, err = render(sharedTemplate, item.Context); err != nil {
			return backend.Request{}, err
		}
	}

	return backend.Request{
		ItemID:        item.ID,
		CorrelationID: correlationID,
		System:        system,
		Shared:        shared,
		Prompt:        prompt,
		Checks:        checkNames,
	}, nil
}

func render(tmpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", services.Wrap(services.ErrConfiguration, "checks", "render "+tmpl.Name(), "", err)
	}
	return buf.String(), nil
}
