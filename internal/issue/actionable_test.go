// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"errors"
	"strings"
	"testing"
)

func TestActionableError_Error(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      *ActionableError
		expected string
	}{
		{
			name:     "operation only",
			err:      &ActionableError{Operation: "push tags"},
			expected: "failed to push tags",
		},
		{
			name:     "operation with resource",
			err:      &ActionableError{Operation: "create tag", Resource: "v1.0.1"},
			expected: "failed to create tag: v1.0.1",
		},
		{
			name: "full context",
			err: &ActionableError{
				Operation: "write manifest",
				Resource:  "packages/a/package.json",
				Cause:     errors.New("permission denied"),
			},
			expected: "failed to write manifest: packages/a/package.json: permission denied",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestActionableError_Format(t *testing.T) {
	t.Parallel()

	cause := errors.New("E403 forbidden")
	err := NewErrorContext().
		WithOperation("publish package").
		WithResource("@scope/a@1.1.0").
		WithSuggestions("Run 'npm whoami'", "Check the package scope").
		Wrap(cause).
		Build()

	short := err.Format(false)
	if !strings.Contains(short, "  • Run 'npm whoami'") || !strings.Contains(short, "  • Check the package scope") {
		t.Errorf("Format(false) misses suggestions:\n%s", short)
	}
	if strings.Contains(short, "Error chain:") {
		t.Error("Format(false) must not print the error chain")
	}

	verbose := err.Format(true)
	if !strings.Contains(verbose, "Error chain:\n  1. E403 forbidden") {
		t.Errorf("Format(true) misses the chain:\n%s", verbose)
	}
	if !errors.Is(err, cause) {
		t.Error("ActionableError must unwrap to its cause")
	}
}

func TestErrorContext_BuildRequiresOperation(t *testing.T) {
	t.Parallel()

	if NewErrorContext().WithResource("x").Build() != nil {
		t.Error("Build() without operation should return nil")
	}
	if NewErrorContext().BuildError() != nil {
		t.Error("BuildError() without operation should return nil")
	}
}

func TestErrorContext_WithKindWithoutCause(t *testing.T) {
	t.Parallel()

	err := NewErrorContext().WithOperation("check working tree").WithKind(KindVCSPrecondition).BuildError()
	if KindOf(err) != KindVCSPrecondition {
		t.Errorf("KindOf() = %v", KindOf(err))
	}
	if got := err.Error(); got != "failed to check working tree: vcs precondition" {
		t.Errorf("Error() = %q", got)
	}
}
