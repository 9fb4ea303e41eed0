// SPDX-License-Identifier: MPL-2.0

// Package prompt asks the user questions during a release. Prompter is
// implemented with charmbracelet/huh; tests use the scripted fake in
// prompttest.
package prompt

import (
	"context"
	"errors"
	"io"
	"os"

	"github.com/charmbracelet/huh"
	"golang.org/x/term"

	"github.com/invowk/rc/internal/issue"
)

// Theme represents the visual theme of the prompts.
type Theme string

const (
	// ThemeDefault uses the base huh theme.
	ThemeDefault Theme = "default"
	// ThemeCharm uses the Charm theme.
	ThemeCharm Theme = "charm"
	// ThemeDracula uses the Dracula theme.
	ThemeDracula Theme = "dracula"
	// ThemeCatppuccin uses the Catppuccin theme.
	ThemeCatppuccin Theme = "catppuccin"
	// ThemeBase16 uses the Base16 theme.
	ThemeBase16 Theme = "base16"
)

// maxHeight caps the number of visible options in a list.
const maxHeight = 10

type (
	// Option is one choice of a Select or MultiSelect prompt.
	Option struct {
		Label string
		Value string
	}

	// Prompter asks questions. A cancelled prompt returns an error for which
	// issue.IsCancelled reports true.
	Prompter interface {
		Confirm(ctx context.Context, title string, def bool) (bool, error)
		Select(ctx context.Context, title string, options []Option, def string) (string, error)
		MultiSelect(ctx context.Context, title string, options []Option, validate func([]string) error) ([]string, error)
		Input(ctx context.Context, title string, validate func(string) error) (string, error)
	}

	// Config holds the common prompt configuration.
	Config struct {
		Theme Theme
		// Accessible replaces the interactive widgets with plain line prompts.
		Accessible bool
		Output     io.Writer
		Input      io.Reader
	}

	// Huh implements Prompter with huh forms.
	Huh struct {
		cfg Config
	}
)

// DefaultConfig enables accessible mode when stdin is not a terminal or the
// ACCESSIBLE environment variable is set. Accessible prompts go to stderr so
// they stay visible when stdout is redirected.
func DefaultConfig() Config {
	accessible := !term.IsTerminal(int(os.Stdin.Fd())) || os.Getenv("ACCESSIBLE") != ""
	var output io.Writer = os.Stdout
	if accessible {
		output = os.Stderr
	}
	return Config{Theme: ThemeDefault, Accessible: accessible, Output: output, Input: os.Stdin}
}

// New creates a huh-backed Prompter.
func New(cfg Config) *Huh {
	return &Huh{cfg: cfg}
}

// Confirm asks a yes/no question.
func (h *Huh) Confirm(ctx context.Context, title string, def bool) (bool, error) {
	answer := def
	field := huh.NewConfirm().
		Title(title).
		Affirmative("Yes").
		Negative("No").
		Value(&answer)
	if err := h.run(ctx, field); err != nil {
		return false, err
	}
	return answer, nil
}

// Select asks for one of options. def preselects the option with that value.
func (h *Huh) Select(ctx context.Context, title string, options []Option, def string) (string, error) {
	answer := def
	field := huh.NewSelect[string]().
		Title(title).
		Options(huhOptions(options, def)...).
		Height(min(len(options)+2, maxHeight)).
		Value(&answer)
	if err := h.run(ctx, field); err != nil {
		return "", err
	}
	return answer, nil
}

// MultiSelect asks for any number of options.
func (h *Huh) MultiSelect(ctx context.Context, title string, options []Option, validate func([]string) error) ([]string, error) {
	var answer []string
	field := huh.NewMultiSelect[string]().
		Title(title).
		Options(huhOptions(options, "")...).
		Height(min(len(options)+2, maxHeight)).
		Value(&answer)
	if validate != nil {
		field = field.Validate(validate)
	}
	if err := h.run(ctx, field); err != nil {
		return nil, err
	}
	return answer, nil
}

// Input asks for a line of text.
func (h *Huh) Input(ctx context.Context, title string, validate func(string) error) (string, error) {
	var answer string
	field := huh.NewInput().
		Title(title).
		Value(&answer)
	if validate != nil {
		field = field.Validate(validate)
	}
	if err := h.run(ctx, field); err != nil {
		return "", err
	}
	return answer, nil
}

func (h *Huh) run(ctx context.Context, field huh.Field) error {
	form := huh.NewForm(huh.NewGroup(field)).
		WithTheme(huhTheme(h.cfg.Theme)).
		WithAccessible(h.cfg.Accessible).
		WithShowHelp(!h.cfg.Accessible)
	if h.cfg.Output != nil {
		form = form.WithOutput(h.cfg.Output)
	}
	if h.cfg.Input != nil {
		form = form.WithInput(h.cfg.Input)
	}
	return mapError(form.RunWithContext(ctx))
}

// mapError turns an aborted form into a cancellation.
func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, huh.ErrUserAborted), errors.Is(err, context.Canceled):
		return issue.Cancelled("release cancelled")
	default:
		return err
	}
}

func huhOptions(options []Option, def string) []huh.Option[string] {
	out := make([]huh.Option[string], len(options))
	for i, o := range options {
		label := o.Label
		if label == "" {
			label = o.Value
		}
		out[i] = huh.NewOption(label, o.Value).Selected(def != "" && o.Value == def)
	}
	return out
}

// huhTheme converts a Theme to a huh.Theme.
func huhTheme(t Theme) *huh.Theme {
	switch t {
	case ThemeCharm:
		return huh.ThemeCharm()
	case ThemeDracula:
		return huh.ThemeDracula()
	case ThemeCatppuccin:
		return huh.ThemeCatppuccin()
	case ThemeBase16:
		return huh.ThemeBase16()
	default:
		return huh.ThemeBase()
	}
}
