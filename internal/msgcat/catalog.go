// Package msgcat holds the user-facing console texts as text/template strings.
package msgcat

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/template"

	yaml "gopkg.in/yaml.v3"
)

//go:embed messages.en.yaml
var defaultFiles embed.FS

// Catalog maps dot-keys such as "move.sent" to parsed templates.
// It is read-only once New returns.
type Catalog struct {
	tpls map[string]*template.Template
}

// New loads the embedded messages, then the *.yaml/*.yml files of overrideDir in
// name order. Every template is parsed up front so a broken override fails here.
func New(overrideDir string) (*Catalog, error) {
	c := &Catalog{tpls: make(map[string]*template.Template)}
	raw, err := defaultFiles.ReadFile("messages.en.yaml")
	if err != nil {
		return nil, fmt.Errorf("read embedded messages: %w", err)
	}
	flat, err := flatten(raw)
	if err != nil {
		return nil, fmt.Errorf("parse embedded messages: %w", err)
	}
	if err := c.add(flat); err != nil {
		return nil, err
	}
	if strings.TrimSpace(overrideDir) != "" {
		if err := c.overrideFrom(overrideDir); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Catalog) overrideFrom(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read messages dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if !e.IsDir() && (ext == ".yaml" || ext == ".yml") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	owner := make(map[string]string) // key -> file that overrides it
	for _, name := range files {
		raw, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		flat, err := flatten(raw)
		if err != nil {
			return fmt.Errorf("parse %s: %w", name, err)
		}
		for k := range flat {
			if prev, ok := owner[k]; ok {
				return fmt.Errorf("duplicate override key %q in %s and %s", k, prev, name)
			}
			owner[k] = name
		}
		if err := c.add(flat); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

func (c *Catalog) add(flat map[string]string) error {
	for k, text := range flat {
		t, err := template.New(k).Option("missingkey=error").Parse(text)
		if err != nil {
			return fmt.Errorf("template %s: %w", k, err)
		}
		c.tpls[k] = t
	}
	return nil
}

// flatten turns nested YAML maps into dot-keys; leaves must be strings.
func flatten(raw []byte) (map[string]string, error) {
	var m map[string]any
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	out := make(map[string]string)
	var walk func(prefix string, v any) error
	walk = func(prefix string, v any) error {
		switch v := v.(type) {
		case map[string]any:
			for k, vv := range v {
				key := k
				if prefix != "" {
					key = prefix + "." + k
				}
				if err := walk(key, vv); err != nil {
					return err
				}
			}
		case string:
			if prefix == "" {
				return fmt.Errorf("string value without key")
			}
			out[prefix] = v
		case nil:
		default:
			return fmt.Errorf("unsupported value at %s: %T", prefix, v)
		}
		return nil
	}
	if err := walk("", m); err != nil {
		return nil, err
	}
	return out, nil
}

// Render executes the template for key. Unknown keys and missing data fields are errors.
func (c *Catalog) Render(key string, data any) (string, error) {
	t, ok := c.tpls[strings.TrimSpace(key)]
	if !ok {
		return "", fmt.Errorf("template not found: %s", key)
	}
	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		return "", err
	}
	return b.String(), nil
}

// Text renders key and falls back to the key itself on any error.
func (c *Catalog) Text(key string, data any) string {
	s, err := c.Render(key, data)
	if err != nil {
		return key
	}
	return s
}
