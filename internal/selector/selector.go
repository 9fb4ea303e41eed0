// SPDX-License-Identifier: MPL-2.0

// Package selector decides what a release contains: which packages, which
// target versions and which registry dist-tags.
package selector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/invowk/rc/internal/issue"
	"github.com/invowk/rc/internal/prompt"
	"github.com/invowk/rc/internal/version"
	"github.com/invowk/rc/internal/workspace"
)

const (
	// LatestTag is the dist-tag of stable releases.
	LatestTag = "latest"
	// defaultStartID is the first pre-release identifier offered for stable
	// versions when none is configured.
	defaultStartID = "alpha"
	// otherTag is the option value that asks for a custom dist-tag.
	otherTag = "<other>"
)

var (
	// ErrNoSelection is returned when no package was chosen.
	ErrNoSelection = errors.New("you must choose at least one package")

	// wellKnownTags are always offered for pre-releases.
	wellKnownTags = []string{"alpha", "beta", "rc", "next"}
)

type (
	// Selector resolves a release request into concrete versions and tags.
	Selector struct {
		prompt   prompt.Prompter
		out      io.Writer
		mark     version.Marker
		preid    string
		preidSet bool
		distTag  string
	}

	// Option configures a Selector.
	Option func(*Selector)
)

// WithOutput sets where summaries are printed.
func WithOutput(w io.Writer) Option {
	return func(s *Selector) { s.out = w }
}

// WithMarker sets how changed version parts and changed packages are highlighted.
func WithMarker(m version.Marker) Option {
	return func(s *Selector) { s.mark = m }
}

// WithPreID sets the pre-release identifier (the --preid flag). An explicit
// empty identifier is valid and produces "1.0.0-0" style versions.
func WithPreID(id string) Option {
	return func(s *Selector) {
		s.preid = id
		s.preidSet = true
	}
}

// WithDistTag forces the dist-tag of every package (the --tag flag).
func WithDistTag(tag string) Option {
	return func(s *Selector) { s.distTag = tag }
}

// New creates a Selector asking questions through p.
func New(p prompt.Prompter, opts ...Option) *Selector {
	s := &Selector{prompt: p, out: io.Discard, mark: func(v string) string { return v }}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ValidateRequest checks a release type and pre-release identifier given on
// the command line before anything else runs. An empty releaseType means the
// version is chosen interactively.
func ValidateRequest(releaseType, preid string) error {
	if releaseType != "" {
		if err := version.ReleaseType(releaseType).Validate(); err != nil {
			return issue.New(issue.KindValidation, fmt.Errorf("[type] %w. Valid types are: %s", err, joinTypes(version.AllReleaseTypes)))
		}
	}
	if !slices.Contains(version.PreReleaseIDs, preid) {
		return issue.Errorf(issue.KindValidation, "[--preid] invalid pre-release identifier %q. Valid identifiers are: %s",
			preid, strings.Join(quoteAll(version.PreReleaseIDs), ", "))
	}
	return nil
}

// SelectPackages asks which packages to release. A single package is chosen
// without asking. Packages named in changed are highlighted.
func (s *Selector) SelectPackages(ctx context.Context, pkgs []*workspace.Package, changed []string) ([]*workspace.Package, error) {
	if len(pkgs) == 1 {
		return pkgs, nil
	}

	options := make([]prompt.Option, len(pkgs))
	for i, p := range pkgs {
		label := p.Name
		if slices.Contains(changed, p.Name) {
			label = s.mark(p.Name)
		}
		options[i] = prompt.Option{Label: label, Value: p.Name}
	}
	selected, err := s.prompt.MultiSelect(ctx, "Which packages would you like to be released?", options, func(v []string) error {
		if len(v) == 0 {
			return ErrNoSelection
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(selected) == 0 {
		return nil, issue.New(issue.KindValidation, ErrNoSelection)
	}

	var out []*workspace.Package
	for _, p := range pkgs {
		if slices.Contains(selected, p.Name) {
			out = append(out, p)
		}
	}
	return out, nil
}

// ResolveByType applies one release type to every package, resolves the
// dist-tags, prints the plan and asks for one confirmation.
func (s *Selector) ResolveByType(ctx context.Context, pkgs []*workspace.Package, releaseType string) error {
	rt := version.ReleaseType(releaseType)
	for _, p := range pkgs {
		next, err := version.Increment(p.Version, rt, s.preid)
		if err != nil {
			return issue.New(issue.KindValidation, fmt.Errorf("%s: %w", p.Name, err))
		}
		p.NewVersion = next
	}
	for _, p := range pkgs {
		if err := s.ResolveDistTag(ctx, p); err != nil {
			return err
		}
	}
	s.printPlan(pkgs)

	subject := "the package"
	if len(pkgs) > 1 {
		subject = "these packages"
	}
	ok, err := s.prompt.Confirm(ctx, fmt.Sprintf("Confirm to release %s with %s version?", subject, releaseType), true)
	if err != nil {
		return err
	}
	if !ok {
		return issue.Cancelled("Cancel the release.")
	}
	return nil
}

// ResolveInteractively asks for the target version of every package, then
// its dist-tag, and prints the plan.
func (s *Selector) ResolveInteractively(ctx context.Context, pkgs []*workspace.Package) error {
	for _, p := range pkgs {
		choices, err := VersionChoices(p.Version, s.startID(), s.mark)
		if err != nil {
			return issue.New(issue.KindValidation, fmt.Errorf("%s's version is invalid: %w", p.Name, err))
		}
		next, err := s.prompt.Select(ctx, fmt.Sprintf("Select a new version for %s@%s", p.Name, p.Version), choices, "")
		if err != nil {
			return err
		}
		p.NewVersion = next
		if err := s.ResolveDistTag(ctx, p); err != nil {
			return err
		}
	}
	s.printPlan(pkgs)
	return nil
}

// ResolveDistTag sets the dist-tag of p. An explicit tag wins and stable
// versions use "latest". Pre-releases choose among the registry's tags and
// the well-known pre-release tags, or a custom one.
func (s *Selector) ResolveDistTag(ctx context.Context, p *workspace.Package) error {
	if s.distTag != "" {
		p.DistTag = s.distTag
		return nil
	}
	id, pre := version.PreReleaseID(p.NewVersion)
	if !pre {
		p.DistTag = LatestTag
		return nil
	}

	published := p.Metadata.DistTags
	keys := slices.Collect(maps.Keys(published))
	for _, t := range wellKnownTags {
		if !slices.Contains(keys, t) {
			keys = append(keys, t)
		}
	}
	if id == "" {
		switch {
		case slices.Contains(keys, "pre"):
			id = "pre"
		case slices.Contains(keys, "previous"):
			id = "previous"
		default:
			keys = append(keys, "pre")
		}
	}
	slices.Sort(keys)

	options := make([]prompt.Option, 0, len(keys)+1)
	def := ""
	for _, k := range keys {
		label := k
		if v := published[k]; v != "" {
			label += " (" + v + ")"
		}
		options = append(options, prompt.Option{Label: label, Value: k})
		if k == id {
			def = k
		}
	}
	options = append(options, prompt.Option{Label: "Other (specify)", Value: otherTag})

	tag, err := s.prompt.Select(ctx, fmt.Sprintf("%s is a pre-release version. Select a tag for %s", p.NewVersion, p.Name), options, def)
	if err != nil {
		return err
	}
	if tag == otherTag {
		tag, err = s.prompt.Input(ctx, "Input custom tag for "+p.Name, ValidateCustomTag)
		if err != nil {
			return err
		}
	}
	p.DistTag = tag
	return nil
}

// ValidateCustomTag rejects empty tags and "latest" for pre-releases.
func ValidateCustomTag(tag string) error {
	switch {
	case strings.TrimSpace(tag) == "":
		return errors.New("please specify a tag, for example, `next`")
	case strings.EqualFold(strings.TrimSpace(tag), LatestTag):
		return errors.New("it's not possible to publish pre-releases under the `latest` tag, please specify something else, for example, `next`")
	}
	return nil
}

// VersionChoices lists the candidate versions for current, best first.
// Labels are padded to a common width and followed by the highlighted
// version. startID is the first pre-release identifier offered for stable
// versions.
func VersionChoices(current, startID string, mark version.Marker) ([]prompt.Option, error) {
	if !version.Valid(current) {
		return nil, &version.InvalidVersionError{Value: current}
	}
	type choice struct{ name, value string }
	var choices []choice
	add := func(name string, t version.ReleaseType, id string) {
		choices = append(choices, choice{name: name, value: version.MustIncrement(current, t, id)})
	}

	currentID, pre := version.PreReleaseID(current)
	var ids []string
	var types []version.ReleaseType
	if !pre {
		start := slices.Index(version.PreReleaseIDs, startID)
		if start < 0 {
			start = slices.Index(version.PreReleaseIDs, defaultStartID)
		}
		ids = version.PreReleaseIDs[start:]
		types = []version.ReleaseType{version.Minor, version.Major, version.PreMinor, version.PreMajor}
		add(string(version.Patch), version.Patch, "")
	} else {
		types = []version.ReleaseType{version.PrePatch, version.Patch, version.Minor, version.Major}
		if i := slices.Index(version.PreReleaseIDs, currentID); i < 0 {
			ids = []string{currentID}
		} else {
			ids = version.PreReleaseIDs[i+1:]
		}
		label := currentID
		if label == "" {
			label = "pre"
		}
		add(fmt.Sprintf("prerelease (%s)", label), version.PreRelease, "")
	}

	for _, t := range types {
		if !t.IsPre() {
			add(string(t), t, "")
			continue
		}
		for _, id := range ids {
			add(fmt.Sprintf("%s (%s)", t, id), t, id)
		}
	}

	width := 0
	for _, c := range choices {
		width = max(width, len(c.name))
	}
	options := make([]prompt.Option, len(choices))
	for i, c := range choices {
		shown, err := version.Highlight(current, c.value, mark)
		if err != nil {
			return nil, err
		}
		options[i] = prompt.Option{
			Label: fmt.Sprintf("%-*s %s", width+3, c.name, shown),
			Value: c.value,
		}
	}
	return options, nil
}

func (s *Selector) startID() string {
	if s.preidSet {
		return s.preid
	}
	return defaultStartID
}

func (s *Selector) printPlan(pkgs []*workspace.Package) {
	var b strings.Builder
	b.WriteString("New versions:\n")
	for _, p := range pkgs {
		shown, err := version.Highlight(p.Version, p.NewVersion, s.mark)
		if err != nil {
			shown = p.NewVersion
		}
		fmt.Fprintf(&b, " - %s: %s (%s)\n", p.Name, shown, p.DistTag)
	}
	fmt.Fprint(s.out, b.String())
}

func joinTypes(types []version.ReleaseType) string {
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}
	return strings.Join(names, ", ")
}

func quoteAll(ids []string) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = fmt.Sprintf("%q", id)
	}
	return out
}
