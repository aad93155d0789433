// Package texts holds the terminal message catalog. Messages are looked up by
// dotted key and menu mode, so the same screen can be rendered differently
// for each display style the user picks.
package texts

import (
	_ "embed"
	"fmt"
	"log"
	"regexp"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed texts.yaml
var embedded []byte

// Catalog is an immutable set of messages keyed by dotted path and menu mode.
type Catalog struct {
	root map[string]any
}

// Parse loads a catalog from YAML.
func Parse(data []byte) (*Catalog, error) {
	var root map[string]any
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parse text catalog: %w", err)
	}
	if root == nil {
		root = map[string]any{}
	}
	return &Catalog{root: root}, nil
}

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
)

// Default returns the catalog compiled into the binary.
func Default() *Catalog {
	defaultOnce.Do(func() {
		c, err := Parse(embedded)
		if err != nil {
			panic(err)
		}
		defaultCatalog = c
	})
	return defaultCatalog
}

// Get returns the message for key in the given menu mode. Mode "4" falls
// back to mode 2. List values are joined with CRLF.
func (c *Catalog) Get(key, mode string) (string, bool) {
	var node any = c.root
	for _, part := range strings.Split(key, ".") {
		m, ok := node.(map[string]any)
		if !ok {
			return "", false
		}
		if node, ok = m[part]; !ok {
			return "", false
		}
	}

	leaf, ok := node.(map[string]any)
	if !ok {
		return "", false
	}
	value, ok := leaf["mode_"+mode]
	if !ok {
		value, ok = leaf[mode]
	}
	if !ok && mode == "4" {
		value, ok = leaf["mode_2"]
	}
	if !ok || value == nil {
		return "", false
	}

	switch v := value.(type) {
	case []any:
		lines := make([]string, len(v))
		for i, line := range v {
			lines[i] = fmt.Sprint(line)
		}
		return strings.Join(lines, "\r\n"), true
	default:
		return fmt.Sprint(v), true
	}
}

var placeholder = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)(?::([<>])(\d+))?\}`)

// Render returns the message for key with {name} placeholders substituted
// from vars, line endings normalized to CRLF and a trailing CRLF. A
// placeholder may carry a width, {name:<20} or {name:>5}. Unknown
// placeholders are left as they are. A missing key renders as "".
func (c *Catalog) Render(key, mode string, vars map[string]string) string {
	text, ok := c.Get(key, mode)
	if !ok {
		log.Printf("[texts] no text for %s (mode %s)", key, mode)
		return ""
	}
	text = Format(text, vars)
	text = NormalizeNewlines(text)
	if !strings.HasSuffix(text, "\r\n") {
		text += "\r\n"
	}
	return text
}

// Format substitutes {name} placeholders in text.
func Format(text string, vars map[string]string) string {
	if len(vars) == 0 {
		return text
	}
	return placeholder.ReplaceAllStringFunc(text, func(m string) string {
		sub := placeholder.FindStringSubmatch(m)
		v, ok := vars[sub[1]]
		if !ok {
			return m
		}
		if sub[2] == "" {
			return v
		}
		var w int
		fmt.Sscanf(sub[3], "%d", &w)
		if sub[2] == "<" {
			return fmt.Sprintf("%-*s", w, v)
		}
		return fmt.Sprintf("%*s", w, v)
	})
}

// NormalizeNewlines converts bare LF and CRLF line endings to CRLF.
func NormalizeNewlines(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, "\r\n", "\n"), "\n", "\r\n")
}
