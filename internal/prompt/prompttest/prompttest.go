// SPDX-License-Identifier: MPL-2.0

// Package prompttest provides a scripted prompt.Prompter for tests.
package prompttest

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/invowk/rc/internal/issue"
	"github.com/invowk/rc/internal/prompt"
)

type (
	// Answer is the scripted reply to one prompt.
	Answer struct {
		Bool   bool
		Value  string
		Values []string
		// Cancel makes the prompt report a cancellation.
		Cancel bool
	}

	// Script answers prompts in order and records what was asked.
	Script struct {
		mu      sync.Mutex
		answers []Answer
		asked   []string
		options map[string][]prompt.Option
	}
)

var _ prompt.Prompter = (*Script)(nil)

// Yes answers a confirmation with yes.
func Yes() Answer { return Answer{Bool: true} }

// No answers a confirmation with no.
func No() Answer { return Answer{} }

// Choose answers a Select or Input prompt with value.
func Choose(value string) Answer { return Answer{Value: value} }

// ChooseMany answers a MultiSelect prompt.
func ChooseMany(values ...string) Answer { return Answer{Values: values} }

// Cancel aborts the prompt.
func Cancel() Answer { return Answer{Cancel: true} }

// New returns a Script replying with answers in order.
func New(answers ...Answer) *Script {
	return &Script{answers: answers, options: make(map[string][]prompt.Option)}
}

// Asked returns the titles of every prompt shown so far.
func (s *Script) Asked() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.asked)
}

// Options returns the options offered by the last prompt titled title.
func (s *Script) Options(title string) []prompt.Option {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.options[title])
}

// Remaining returns the number of unused answers.
func (s *Script) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.answers)
}

// Confirm implements prompt.Prompter.
func (s *Script) Confirm(_ context.Context, title string, _ bool) (bool, error) {
	a, err := s.next(title, nil)
	if err != nil {
		return false, err
	}
	return a.Bool, nil
}

// Select implements prompt.Prompter. An empty scripted value picks def.
func (s *Script) Select(_ context.Context, title string, options []prompt.Option, def string) (string, error) {
	a, err := s.next(title, options)
	if err != nil {
		return "", err
	}
	value := a.Value
	if value == "" {
		value = def
	}
	if !slices.ContainsFunc(options, func(o prompt.Option) bool { return o.Value == value }) {
		return "", fmt.Errorf("prompttest: %q is not an option of %q", value, title)
	}
	return value, nil
}

// MultiSelect implements prompt.Prompter.
func (s *Script) MultiSelect(_ context.Context, title string, options []prompt.Option, validate func([]string) error) ([]string, error) {
	a, err := s.next(title, options)
	if err != nil {
		return nil, err
	}
	if validate != nil {
		if err := validate(a.Values); err != nil {
			return nil, err
		}
	}
	return a.Values, nil
}

// Input implements prompt.Prompter.
func (s *Script) Input(_ context.Context, title string, validate func(string) error) (string, error) {
	a, err := s.next(title, nil)
	if err != nil {
		return "", err
	}
	if validate != nil {
		if err := validate(a.Value); err != nil {
			return "", err
		}
	}
	return a.Value, nil
}

func (s *Script) next(title string, options []prompt.Option) (Answer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.asked = append(s.asked, title)
	if options != nil {
		s.options[title] = slices.Clone(options)
	}
	if len(s.answers) == 0 {
		return Answer{}, fmt.Errorf("prompttest: unexpected prompt %q", title)
	}
	a := s.answers[0]
	s.answers = s.answers[1:]
	if a.Cancel {
		return Answer{}, issue.Cancelled("release cancelled")
	}
	return a, nil
}
