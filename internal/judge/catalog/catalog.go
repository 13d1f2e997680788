// Package catalog holds the read-only set of problems the sandbox can run.
package catalog

import (
	"fmt"
	"strings"

	"dsajudge/internal/judge/model"
	appErr "dsajudge/pkg/errors"
)

// Catalog is an immutable, validated problem set. It is safe for concurrent use.
// Definitions returned by Get share fixture slices with the catalog and must
// be treated as read-only.
type Catalog struct {
	problems map[string]model.ProblemDefinition
	order    []string
	checksum string
}

// New validates and normalizes defs. Problems keep their document order.
func New(defs []model.ProblemDefinition) (*Catalog, error) {
	c := &Catalog{
		problems: make(map[string]model.ProblemDefinition, len(defs)),
		order:    make([]string, 0, len(defs)),
	}
	for i, def := range defs {
		if err := validate(&def); err != nil {
			return nil, appErr.Wrapf(err, appErr.InvalidProblemDefinition, "problem %d (%q): %v", i, def.ID, err)
		}
		if _, dup := c.problems[def.ID]; dup {
			return nil, appErr.New(appErr.InvalidProblemDefinition).WithMessagef("duplicate problem id %q", def.ID)
		}
		c.problems[def.ID] = def
		c.order = append(c.order, def.ID)
	}
	return c, nil
}

func validate(def *model.ProblemDefinition) error {
	def.ID = strings.TrimSpace(def.ID)
	if def.ID == "" {
		return fmt.Errorf("id is required")
	}
	if err := def.Normalize(); err != nil {
		return err
	}
	if def.EntryKind == model.EntryConstructor && def.EntryName == "" {
		return fmt.Errorf("constructor-kind problems need functionName")
	}
	if len(def.TestCases) == 0 {
		return fmt.Errorf("at least one test case is required")
	}
	if def.EntryKind == model.EntryConstructor {
		for i, tc := range def.TestCases {
			if len(tc.Input) != 2 {
				return appErr.New(appErr.TestCaseInvalid).WithMessagef("testCases[%d]: constructor-kind input must be [names, arguments]", i)
			}
		}
	}
	return nil
}

// Len returns the number of problems.
func (c *Catalog) Len() int {
	return len(c.order)
}

// Checksum is the sha256 of the document the catalog was loaded from, if known.
func (c *Catalog) Checksum() string {
	return c.checksum
}

// Get returns the problem with id.
func (c *Catalog) Get(id string) (model.ProblemDefinition, error) {
	def, ok := c.problems[id]
	if !ok {
		return model.ProblemDefinition{}, appErr.ProblemMissing(id)
	}
	return def, nil
}

// List returns summaries of all problems in catalog order.
func (c *Catalog) List() []model.Summary {
	return c.Search("")
}

// Search returns problems whose title or description contains query,
// ignoring case. An empty query matches everything.
func (c *Catalog) Search(query string) []model.Summary {
	query = strings.ToLower(strings.TrimSpace(query))
	out := make([]model.Summary, 0, len(c.order))
	for _, id := range c.order {
		def := c.problems[id]
		if query != "" &&
			!strings.Contains(strings.ToLower(def.Title), query) &&
			!strings.Contains(strings.ToLower(def.Description), query) {
			continue
		}
		out = append(out, def.Summarize())
	}
	return out
}
