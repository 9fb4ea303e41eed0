// SPDX-License-Identifier: MPL-2.0

package publish

// State is the progress of an Orchestrator.
type State int

const (
	// Idle means nothing was changed yet.
	Idle State = iota
	// VersionBumped means manifests were (or, in dry-run, would have been)
	// rewritten. It is the rollback boundary.
	VersionBumped
	// Tagged means the release commit and tags exist.
	Tagged
	// Published means every package was published, or publishing is disabled.
	Published
	// Pushed means commits and tags reached the remote.
	Pushed
	// ReleaseDrafted means release drafts were opened.
	ReleaseDrafted
	// Done means the release completed.
	Done
	// Failed means a step after VersionBumped returned an error.
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case VersionBumped:
		return "version bumped"
	case Tagged:
		return "tagged"
	case Published:
		return "published"
	case Pushed:
		return "pushed"
	case ReleaseDrafted:
		return "release drafted"
	case Done:
		return "done"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Mutated reports whether the repository may differ from its pre-run state.
func (s State) Mutated() bool {
	return s != Idle
}
