package texts

import (
	"strings"
	"testing"
)

const testCatalog = `
greeting:
  mode_1: "hi {name}"
  mode_2:
    - "hello"
    - "{name}"
menu:
  top:
    mode_2: "top\nmenu"
bad_leaf: "not keyed by mode"
`

func mustParse(t *testing.T, s string) *Catalog {
	t.Helper()
	c, err := Parse([]byte(s))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return c
}

func TestGet(t *testing.T) {
	c := mustParse(t, testCatalog)

	tests := []struct {
		key, mode string
		want      string
		ok        bool
	}{
		{"greeting", "1", "hi {name}", true},
		{"greeting", "2", "hello\r\n{name}", true},
		{"greeting", "4", "hello\r\n{name}", true}, // falls back to mode_2
		{"greeting", "3", "", false},
		{"menu.top", "2", "top\nmenu", true},
		{"menu.missing", "2", "", false},
		{"menu", "2", "", false},
		{"bad_leaf", "2", "", false},
		{"greeting.deeper", "1", "", false},
	}
	for _, tt := range tests {
		got, ok := c.Get(tt.key, tt.mode)
		if got != tt.want || ok != tt.ok {
			t.Errorf("Get(%q, %q) = %q, %v; want %q, %v", tt.key, tt.mode, got, ok, tt.want, tt.ok)
		}
	}
}

func TestRender(t *testing.T) {
	c := mustParse(t, testCatalog)

	if got := c.Render("greeting", "1", map[string]string{"name": "alice"}); got != "hi alice\r\n" {
		t.Errorf("Render = %q", got)
	}
	if got := c.Render("menu.top", "2", nil); got != "top\r\nmenu\r\n" {
		t.Errorf("Render normalized = %q", got)
	}
	if got := c.Render("nope", "2", nil); got != "" {
		t.Errorf("missing key rendered %q", got)
	}
}

func TestFormat(t *testing.T) {
	vars := map[string]string{"name": "bob", "speed": "2400"}
	tests := []struct {
		in, want string
	}{
		{"{name}", "bob"},
		{"{name:<6}|", "bob   |"},
		{"{speed:>6}", "  2400"},
		{"{unknown} {name}", "{unknown} bob"},
		{"{ not a placeholder }", "{ not a placeholder }"},
	}
	for _, tt := range tests {
		if got := Format(tt.in, vars); got != tt.want {
			t.Errorf("Format(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeNewlines(t *testing.T) {
	if got := NormalizeNewlines("a\nb\r\nc"); got != "a\r\nb\r\nc" {
		t.Errorf("NormalizeNewlines = %q", got)
	}
}

func TestDefaultCatalog(t *testing.T) {
	c := Default()
	keys := []string{
		"welcome", "last_login", "first_login", "top_menu.menu", "top_menu.prompt",
		"who.header", "who.row", "speed.current", "speed.changed", "speed.unknown",
		"memo.prompt", "memo.result", "memo.empty", "time.now", "help",
		"unknown_command", "logoff", "notice.evicted", "notice.kicked",
		"notice.broadcast", "notice.shutdown",
	}
	for _, key := range keys {
		for _, mode := range []string{"1", "2", "4"} {
			if _, ok := c.Get(key, mode); !ok {
				t.Errorf("default catalog lacks %s for mode %s", key, mode)
			}
		}
	}

	banner, _ := c.Get("welcome", "2")
	if !strings.Contains(banner, "\x1b[1;36m") {
		t.Errorf("escape sequences not decoded: %q", banner)
	}
}

func TestParseInvalid(t *testing.T) {
	if _, err := Parse([]byte("key: [unclosed")); err == nil {
		t.Error("invalid YAML accepted")
	}
}
