// Package bbs is the board's command loop. It drives a terminal session's
// Channel like a serial line: print a prompt, read a line, act on it.
package bbs

import (
	"context"
	"errors"
	"log"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/gluk-w/grbbs/internal/terminal"
	"github.com/gluk-w/grbbs/internal/texts"
)

// Config is shared by every session's Menu.
type Config struct {
	BBSName  string
	Registry *terminal.Registry
	Texts    *texts.Catalog
	// Now is the clock used for the T command and presence durations.
	Now func() time.Time
	// SaveMenuMode persists a registered user's display mode. Nil keeps
	// the change for this session only.
	SaveMenuMode func(userID uint, mode string) error
}

// MenuModes are the display styles a user can pick with the D command.
var MenuModes = []string{"1", "2", "3", "4"}

const maxDisplayNameWidth = 20

// Menu is the top-level command loop for one session.
type Menu struct {
	cfg       Config
	lastLogin *time.Time
}

// New creates the command loop for a session. lastLogin is the user's
// previous login, nil for a first visit or a guest.
func New(cfg Config, lastLogin *time.Time) *Menu {
	if cfg.Texts == nil {
		cfg.Texts = texts.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Menu{cfg: cfg, lastLogin: lastLogin}
}

// Run implements terminal.Logic. It returns nil when the user logs off and
// io.EOF when the connection goes away.
func (m *Menu) Run(ctx context.Context, s *terminal.Session) error {
	ch := s.Channel()
	id := s.Identity()

	m.send(s, "welcome", map[string]string{"name": id.DisplayName})
	switch {
	case m.lastLogin != nil:
		m.send(s, "last_login", map[string]string{
			"last_login": m.lastLogin.Local().Format("2006-01-02 15:04"),
		})
	case !id.IsGuest():
		m.send(s, "first_login", nil)
	}
	m.showMenu(s)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		ch.Send(m.text(s, "top_menu.prompt", nil))

		line, err := ch.ProcessInput()
		if errors.Is(err, terminal.ErrTimeout) {
			ch.Send("\r\n")
			continue
		}
		if err != nil {
			return err
		}

		cmd, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
		switch strings.ToUpper(cmd) {
		case "":
			m.showMenu(s)
		case "W":
			m.who(s)
		case "S":
			m.speed(s, strings.TrimSpace(arg))
		case "M":
			if err := m.memo(s); err != nil {
				return err
			}
		case "D":
			m.menuMode(s, strings.TrimSpace(arg))
		case "N":
			if err := m.rename(s); err != nil {
				return err
			}
		case "T":
			m.send(s, "time.now", map[string]string{
				"time": m.cfg.Now().Format("2006-01-02 15:04:05 MST"),
			})
		case "?", "H":
			m.send(s, "help", nil)
		case "G", "BYE":
			m.send(s, "logoff", map[string]string{"name": s.Identity().DisplayName})
			return nil
		default:
			m.send(s, "unknown_command", map[string]string{"command": cmd})
		}
	}
}

func (m *Menu) showMenu(s *terminal.Session) {
	s.Channel().Send(terminal.ModeToggle(terminal.ModeTopMenu, true))
	m.send(s, "top_menu.menu", nil)
}

func (m *Menu) who(s *terminal.Session) {
	if m.cfg.Registry == nil {
		return
	}
	now := m.cfg.Now()
	online := m.cfg.Registry.ListPresence()

	m.send(s, "who.header", map[string]string{"count": strconv.Itoa(len(online))})
	for _, p := range online {
		d := max(p.Duration(now), 0)
		m.send(s, "who.row", map[string]string{
			"name":     p.DisplayName,
			"speed":    p.Speed,
			"duration": d.Truncate(time.Second).String(),
		})
	}
}

func (m *Menu) speed(s *terminal.Session, profile string) {
	rates := terminal.DefaultRateModel()
	if m.cfg.Registry != nil {
		rates = m.cfg.Registry.Rates()
	}
	vars := map[string]string{
		"speed":    profile,
		"profiles": strings.Join(rates.Profiles(), ", "),
	}

	switch {
	case profile == "":
		vars["speed"] = s.Speed()
		m.send(s, "speed.current", vars)
	case rates.Has(strings.ToLower(profile)):
		s.SetSpeed(strings.ToLower(profile))
		vars["speed"] = s.Speed()
		m.send(s, "speed.changed", vars)
	default:
		m.send(s, "speed.unknown", vars)
	}
}

// menuMode shows or switches the display style. The confirmation is
// rendered in the new style.
func (m *Menu) menuMode(s *terminal.Session, mode string) {
	vars := map[string]string{
		"mode":  mode,
		"modes": strings.Join(MenuModes, ", "),
	}
	switch {
	case mode == "":
		vars["mode"] = s.Identity().MenuMode
		m.send(s, "mode.current", vars)
		return
	case !slices.Contains(MenuModes, mode):
		m.send(s, "mode.unknown", vars)
		return
	}

	s.SetMenuMode(mode)
	id := s.Identity()
	if !id.IsGuest() && m.cfg.SaveMenuMode != nil {
		if err := m.cfg.SaveMenuMode(id.UserID, mode); err != nil {
			log.Printf("[bbs] failed to save menu mode for %s: %v", id.Username, err)
		}
	}
	m.send(s, "mode.changed", vars)
	m.showMenu(s)
}

// rename lets a guest pick the name shown to other users. The client is
// asked to open its line editor prefilled with the current name.
func (m *Menu) rename(s *terminal.Session) error {
	current := s.Identity()
	if !current.IsGuest() {
		m.send(s, "rename.not_guest", nil)
		return nil
	}

	ch := s.Channel()
	prompt := m.text(s, "rename.prompt", nil)
	ch.Send(terminal.Command("LINE_EDIT", prompt, current.DisplayName))
	ch.Send(prompt)

	line, err := ch.ProcessInput()
	if errors.Is(err, terminal.ErrTimeout) {
		ch.Send("\r\n")
		return nil
	}
	if err != nil {
		return err
	}

	name := strings.TrimSpace(line)
	vars := map[string]string{"name": name, "max": strconv.Itoa(maxDisplayNameWidth)}
	switch {
	case name == "" || name == current.DisplayName:
		vars["name"] = current.DisplayName
		m.send(s, "rename.unchanged", vars)
		return nil
	case displayWidth(name) > maxDisplayNameWidth || strings.ContainsFunc(name, isControl):
		m.send(s, "rename.invalid", vars)
		return nil
	}

	if err := s.SetDisplayName(name); errors.Is(err, terminal.ErrNotGuest) {
		m.send(s, "rename.not_guest", nil)
		return nil
	}
	m.send(s, "rename.changed", vars)
	return nil
}

func displayWidth(s string) int {
	w := 0
	for _, r := range s {
		w += terminal.RuneWidth(r)
	}
	return w
}

func isControl(r rune) bool {
	return r < 0x20 || r == 0x7f
}

// memo opens the multiline editor and echoes the submission back.
func (m *Menu) memo(s *terminal.Session) error {
	m.send(s, "memo.prompt", nil)

	text, err := s.Channel().ProcessMultilineInput()
	if errors.Is(err, terminal.ErrTimeout) {
		return nil
	}
	if err != nil {
		return err
	}

	text = strings.TrimRight(texts.NormalizeNewlines(text), "\r\n")
	if strings.TrimSpace(text) == "" {
		m.send(s, "memo.empty", nil)
		return nil
	}
	m.send(s, "memo.result", map[string]string{
		"memo":  text,
		"lines": strconv.Itoa(strings.Count(text, "\r\n") + 1),
	})
	return nil
}

// send renders a catalog message in the session's menu mode.
func (m *Menu) send(s *terminal.Session, key string, vars map[string]string) {
	s.Channel().Send(m.cfg.Texts.Render(key, s.Identity().MenuMode, m.withDefaults(vars)))
}

// text renders a message without the trailing newline, for prompts.
func (m *Menu) text(s *terminal.Session, key string, vars map[string]string) string {
	t, _ := m.cfg.Texts.Get(key, s.Identity().MenuMode)
	return texts.NormalizeNewlines(texts.Format(t, m.withDefaults(vars)))
}

func (m *Menu) withDefaults(vars map[string]string) map[string]string {
	out := map[string]string{"bbs_name": m.cfg.BBSName}
	for k, v := range vars {
		out[k] = v
	}
	return out
}
