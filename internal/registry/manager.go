// SPDX-License-Identifier: MPL-2.0

package registry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/invowk/rc/internal/shell"
	"github.com/invowk/rc/internal/version"
)

type (
	// ManagerID identifies a supported package manager flavour.
	ManagerID string

	// Manager describes the package manager that publishes the project.
	Manager struct {
		// CLI is the executable ("npm", "pnpm" or "yarn").
		CLI string
		ID  ManagerID
		// MinVersion is the oldest supported version ("" for any).
		MinVersion string
		// Version is filled by CheckVersion.
		Version   string
		Lockfiles []string
	}

	// InvalidManagerError is returned for an unknown "packageManager" field.
	InvalidManagerError struct {
		Value string
	}

	// ManagerVersionError is returned when the installed manager is too old.
	ManagerVersionError struct {
		ID         ManagerID
		Version    string
		MinVersion string
	}
)

const (
	NPMID   ManagerID = "npm"
	PNPMID  ManagerID = "pnpm"
	YarnID  ManagerID = "yarn"
	BerryID ManagerID = "berry"
)

var (
	// ErrManagerNotInstalled is returned when the manager executable cannot run.
	ErrManagerNotInstalled = errors.New("package manager is not installed")
	// ErrUnsupportedManager matches every error rejecting the detected
	// package manager or its version.
	ErrUnsupportedManager = errors.New("unsupported package manager")
)

var managers = map[ManagerID]Manager{
	NPMID:   {CLI: "npm", ID: NPMID, MinVersion: "7.0.0", Lockfiles: []string{"package-lock.json", "npm-shrinkwrap.json"}},
	PNPMID:  {CLI: "pnpm", ID: PNPMID, MinVersion: "8.0.0", Lockfiles: []string{"pnpm-lock.yaml"}},
	YarnID:  {CLI: "yarn", ID: YarnID, Lockfiles: []string{"yarn.lock"}},
	BerryID: {CLI: "yarn", ID: BerryID, MinVersion: "3.1.0", Lockfiles: []string{"yarn.lock"}},
}

func (e *InvalidManagerError) Error() string {
	return fmt.Sprintf("invalid package manager: %s", e.Value)
}

func (e *InvalidManagerError) Is(target error) bool { return target == ErrUnsupportedManager }

func (e *ManagerVersionError) Error() string {
	return fmt.Sprintf("package manager %s version %s is not supported, please upgrade to %s or later",
		e.ID, e.Version, e.MinVersion)
}

func (e *ManagerVersionError) Is(target error) bool { return target == ErrUnsupportedManager }

// Detect picks the package manager from the root manifest's "packageManager"
// field, then from lockfiles in root, defaulting to npm.
func Detect(root, packageManagerField string) (Manager, error) {
	if packageManagerField != "" {
		return fromField(packageManagerField)
	}
	for _, id := range []ManagerID{NPMID, PNPMID, YarnID} {
		m := managers[id]
		for _, lock := range m.Lockfiles {
			if _, err := os.Stat(filepath.Join(root, lock)); err == nil {
				return m, nil
			}
		}
	}
	return managers[NPMID], nil
}

func fromField(field string) (Manager, error) {
	cli, ver, _ := strings.Cut(field, "@")
	// "yarn@4.1.0+sha224.abc" carries a hash suffix
	ver, _, _ = strings.Cut(ver, "+")
	if cli == "yarn" && version.Valid(ver) && version.Compare(ver, "2.0.0") >= 0 {
		return managers[BerryID], nil
	}
	m, ok := managers[ManagerID(cli)]
	if !ok || ManagerID(cli) == BerryID {
		return Manager{}, &InvalidManagerError{Value: field}
	}
	return m, nil
}

// CheckVersion runs "<cli> --version" and enforces MinVersion.
func (m *Manager) CheckVersion(ctx context.Context, run *shell.Runner) error {
	out, err := run.Output(ctx, m.CLI, "--version")
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrManagerNotInstalled, m.ID, err)
	}
	out = strings.TrimPrefix(strings.TrimSpace(out), "v")
	if !version.Valid(out) {
		return fmt.Errorf("%w: %s has unknown version %q", ErrUnsupportedManager, m.ID, out)
	}
	m.Version = out
	if m.MinVersion != "" && version.Compare(out, m.MinVersion) < 0 {
		return &ManagerVersionError{ID: m.ID, Version: out, MinVersion: m.MinVersion}
	}
	return nil
}

// PublishCommand returns the executable and leading arguments of the
// publish command.
func (m Manager) PublishCommand() (string, []string) {
	if m.ID == BerryID {
		return "yarn", []string{"npm", "publish"}
	}
	return m.CLI, []string{"publish"}
}

// ConfiguredRegistry asks the package manager for the registry of name,
// honouring scope registries. It returns "" when none is configured.
func (m Manager) ConfiguredRegistry(ctx context.Context, run *shell.Runner, name string) string {
	var args []string
	scope := Scope(name)
	switch {
	case m.ID == BerryID && scope != "":
		args = []string{"config", "get", fmt.Sprintf("npmScopes[%q].npmRegistryServer", strings.TrimPrefix(scope, "@"))}
	case m.ID == BerryID:
		args = []string{"config", "get", "npmRegistryServer"}
	case scope != "":
		args = []string{"config", "get", scope + ":registry"}
	default:
		args = []string{"config", "get", "registry"}
	}

	out, err := run.Output(ctx, m.CLI, args...)
	if err != nil || out == "undefined" {
		return ""
	}
	return out
}

// ResolveRegistry returns the registry a package publishes to: its
// publishConfig registry, the package manager's scoped or global
// configuration, then the public registry.
func (m Manager) ResolveRegistry(ctx context.Context, run *shell.Runner, name, publishConfigRegistry string) string {
	if publishConfigRegistry != "" {
		return Normalize(publishConfigRegistry)
	}
	if r := m.ConfiguredRegistry(ctx, run, name); r != "" {
		return Normalize(r)
	}
	if Scope(name) != "" {
		if r := m.ConfiguredRegistry(ctx, run, ""); r != "" {
			return Normalize(r)
		}
	}
	return NPM
}
