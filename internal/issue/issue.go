// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"maps"
	"slices"

	"github.com/charmbracelet/glamour"
)

type (
	// Id identifies a catalog entry.
	Id int

	// MarkdownMsg is the Markdown guidance of an issue.
	MarkdownMsg string

	// HttpLink is a documentation link.
	HttpLink string

	// Issue is a catalog entry with Markdown guidance for one failure situation.
	Issue struct {
		id       Id
		mdMsg    MarkdownMsg
		docLinks []HttpLink
		extLinks []HttpLink
	}
)

const (
	NotGitRepositoryId Id = iota + 1
	DirtyWorkingTreeId
	BranchNotAllowedId
	NoPackagesFoundId
	PackageManagerUnsupportedId
	RegistryAccessId
	PublishFailedId
	OTPRequiredId
	LintFailedId
	ConfigLoadFailedId
	RollbackFailedId
)

func (i *Issue) Id() Id {
	return i.id
}

func (i *Issue) MarkdownMsg() MarkdownMsg {
	return i.mdMsg
}

func (i *Issue) DocLinks() []HttpLink {
	return slices.Clone(i.docLinks)
}

func (i *Issue) ExtLinks() []HttpLink {
	return slices.Clone(i.extLinks)
}

// Render renders the guidance for the terminal using the named glamour style.
func (i *Issue) Render(stylePath string) (string, error) {
	extraMd := ""
	if len(i.docLinks) > 0 || len(i.extLinks) > 0 {
		extraMd += "\n\n## See also\n"
		for _, link := range i.docLinks {
			extraMd += "\n- <" + string(link) + ">"
		}
		for _, link := range i.extLinks {
			extraMd += "\n- <" + string(link) + ">"
		}
	}
	return render(string(i.mdMsg)+extraMd, stylePath)
}

var (
	render = glamour.Render

	notGitRepositoryIssue = &Issue{
		id: NotGitRepositoryId,
		mdMsg: `
# Not a git repository!

rc commits, tags and pushes every release, so it must run inside a git work tree.

## Things you can try:
- Run rc from the repository root, or point it there:
~~~
$ rc --cwd path/to/repo
~~~
- Initialise a repository first:
~~~
$ git init && git add -A && git commit -m "init"
~~~`,
	}

	dirtyWorkingTreeIssue = &Issue{
		id: DirtyWorkingTreeId,
		mdMsg: `
# Unclean working tree!

The release commit would pick up changes that are not part of the release.

## Things you can try:
- Commit or stash your changes:
~~~
$ git stash
~~~
- Skip the check if you know what you are doing:
~~~
$ rc --no-git-checks
~~~`,
	}

	branchNotAllowedIssue = &Issue{
		id: BranchNotAllowedId,
		mdMsg: `
# Releasing from an unexpected branch!

By default releases are only made from ` + "`main`" + ` or ` + "`master`" + `.

## Things you can try:
- Switch to the release branch
- Name your release branch explicitly:
~~~
$ rc --branch release
~~~
- Allow any branch:
~~~
$ rc --any-branch
~~~`,
	}

	noPackagesFoundIssue = &Issue{
		id: NoPackagesFoundId,
		mdMsg: `
# No publishable package found!

rc looks for a ` + "`package.json`" + ` in the working directory and, for workspaces, in every
directory matched by the ` + "`workspaces`" + ` field or ` + "`pnpm-workspace.yaml`" + `.

## Things you can try:
- Make sure the packages are not marked ` + "`\"private\": true`" + `
- Check the workspace globs
- Directories named ` + "`example`" + ` or ` + "`examples`" + ` are ignored`,
	}

	packageManagerUnsupportedIssue = &Issue{
		id: PackageManagerUnsupportedId,
		mdMsg: `
# Unsupported package manager!

rc needs npm 7+, pnpm 8+, yarn classic or yarn 3.1+.

## Things you can try:
- Upgrade the package manager named in ` + "`packageManager`" + `
- Remove stale lock files of other package managers`,
	}

	registryAccessIssue = &Issue{
		id: RegistryAccessId,
		mdMsg: `
# Private registry requires restricted access!

Packages published to a registry other than the public npm registry must set
the access level explicitly.

## Things you can try:
~~~json
{
  "publishConfig": {
    "registry": "https://registry.example.com/",
    "access": "restricted"
  }
}
~~~`,
	}

	publishFailedIssue = &Issue{
		id: PublishFailedId,
		mdMsg: `
# Publish failed!

The registry rejected the package. The release commit and tags were rolled back.

## Things you can try:
- Check that you are logged in:
~~~
$ npm whoami
~~~
- Make sure the version was not published before
- Rerun with ` + "`--verbose`" + ` to see the full error chain`,
	}

	otpRequiredIssue = &Issue{
		id: OTPRequiredId,
		mdMsg: `
# One-time password rejected!

Your account uses two-factor authentication and no valid code was accepted.

## Things you can try:
- Pass a fresh code from your authenticator:
~~~
$ rc --otp 123456
~~~
- Make sure the system clock is synchronised`,
	}

	lintFailedIssue = &Issue{
		id: LintFailedId,
		mdMsg: `
# Package lint failed!

Strict mode found problems in the selected packages (listed above).

## Things you can try:
- Fix the reported fields in ` + "`package.json`" + `
- Release without strict checks:
~~~
$ rc
~~~`,
	}

	configLoadFailedIssue = &Issue{
		id: ConfigLoadFailedId,
		mdMsg: `
# Failed to load configuration!

## Things you can try:
- Validate the file against the schema:
~~~
$ rc config show
~~~
- Recreate a default configuration:
~~~
$ rc config init --force
~~~`,
	}

	rollbackFailedIssue = &Issue{
		id: RollbackFailedId,
		mdMsg: `
# Rollback incomplete!

rc could not fully undo the release commit or tags.

## Things you can try:
- Inspect the state of the repository:
~~~
$ git log --oneline -n 5
$ git tag --points-at HEAD
~~~
- Delete leftover tags with ` + "`git tag -d <tag>`" + ` and reset to the commit printed above`,
	}

	issues = map[Id]*Issue{
		notGitRepositoryIssue.Id():          notGitRepositoryIssue,
		dirtyWorkingTreeIssue.Id():          dirtyWorkingTreeIssue,
		branchNotAllowedIssue.Id():          branchNotAllowedIssue,
		noPackagesFoundIssue.Id():           noPackagesFoundIssue,
		packageManagerUnsupportedIssue.Id(): packageManagerUnsupportedIssue,
		registryAccessIssue.Id():            registryAccessIssue,
		publishFailedIssue.Id():             publishFailedIssue,
		otpRequiredIssue.Id():               otpRequiredIssue,
		lintFailedIssue.Id():                lintFailedIssue,
		configLoadFailedIssue.Id():          configLoadFailedIssue,
		rollbackFailedIssue.Id():            rollbackFailedIssue,
	}
)

// Values returns every catalog entry ordered by Id.
func Values() []*Issue {
	return slices.SortedFunc(maps.Values(issues), func(a, b *Issue) int {
		return int(a.id) - int(b.id)
	})
}

func Get(id Id) *Issue {
	return issues[id]
}

// ForKind returns the catalog entry that explains a failure kind, or nil.
func ForKind(k Kind) *Issue {
	switch k {
	case KindPublishRejected:
		return issues[PublishFailedId]
	case KindOTPRequired:
		return issues[OTPRequiredId]
	case KindLintFailed:
		return issues[LintFailedId]
	default:
		return nil
	}
}
