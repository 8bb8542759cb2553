// Package narration renders player-facing text for lifecycle events from a
// YAML catalog of text/template lines.
package narration

import (
	"bytes"
	_ "embed"
	"fmt"
	"math/rand/v2"
	"os"
	"sort"
	"strings"
	"text/template"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

//go:embed messages.yml
var defaultCatalog []byte

// Catalog maps "group.name" categories to their candidate templates.
type Catalog struct {
	lines map[string][]*template.Template
	pick  func(n int) int
}

// Default returns the embedded catalog.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// Load reads the embedded catalog and overlays the file at path, if any.
// Categories in the file replace the embedded ones.
func Load(path string) (*Catalog, error) {
	c, err := Default()
	if err != nil || path == "" {
		return c, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read narration catalog: %w", err)
	}
	override, err := Parse(data)
	if err != nil {
		return nil, err
	}
	for k, v := range override.lines {
		c.lines[k] = v
	}
	return c, nil
}

// Parse builds a catalog from YAML of the form group: {name: [lines]}.
func Parse(data []byte) (*Catalog, error) {
	var raw map[string]map[string][]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse narration catalog: %w", err)
	}
	c := &Catalog{lines: make(map[string][]*template.Template), pick: rand.IntN}
	for group, entries := range raw {
		for name, lines := range entries {
			key := group + "." + name
			for i, line := range lines {
				tpl, err := template.New(fmt.Sprintf("%s[%d]", key, i)).Option("missingkey=zero").Parse(line)
				if err != nil {
					return nil, fmt.Errorf("narration %s: %w", key, err)
				}
				c.lines[key] = append(c.lines[key], tpl)
			}
		}
	}
	return c, nil
}

// Categories lists every known category, sorted.
func (c *Catalog) Categories() []string {
	out := make([]string, 0, len(c.lines))
	for k := range c.lines {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Render picks a line for category and executes it with vars. Unknown
// categories and failing templates render as empty strings.
func (c *Catalog) Render(relic uuid.UUID, category string, vars map[string]any) string {
	tpls := c.lines[category]
	if len(tpls) == 0 {
		return ""
	}
	data := make(map[string]any, len(vars)+1)
	for k, v := range vars {
		data[k] = v
	}
	if relic != uuid.Nil {
		data["Relic"] = strings.SplitN(relic.String(), "-", 2)[0]
	}
	var buf bytes.Buffer
	if err := tpls[c.pick(len(tpls))].Execute(&buf, data); err != nil {
		return ""
	}
	return buf.String()
}
