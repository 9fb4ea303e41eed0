// SPDX-License-Identifier: MPL-2.0

package registry

import (
	"context"
	"encoding/json"
	"io"
	"strings"

	"github.com/invowk/rc/internal/shell"
)

// PromptMarker is printed by yarn berry when it asks for a one-time password
// on its own. The publish process is killed when it appears so that the
// caller can ask for the code itself.
const PromptMarker = "One-time password:"

// otpMarkers identify publish failures caused by a missing or wrong OTP.
var otpMarkers = []string{
	"code EOTP",                 // npm, pnpm
	"--otp=<code>",              // npm, pnpm
	"Two factor authentication", // yarn classic
	PromptMarker,                // yarn berry
}

type (
	// PublishRequest is one invocation of a package manager's publish command.
	PublishRequest struct {
		Name string
		Args []string
		Dir  string
		Env  []string
		// Output receives the live output when set.
		Output io.Writer
	}

	// Publisher runs publish commands.
	Publisher struct {
		run *shell.Runner
	}
)

// NewPublisher creates a Publisher using run.
func NewPublisher(run *shell.Runner) *Publisher {
	return &Publisher{run: run}
}

// Publish runs req, killing the process as soon as it prompts for a
// one-time password. Errors are *shell.RunError values whose output can be
// inspected with NeedsOTP.
func (p *Publisher) Publish(ctx context.Context, req PublishRequest) error {
	_, err := p.run.Watch(ctx, shell.Command{
		Name:   req.Name,
		Args:   req.Args,
		Dir:    req.Dir,
		Env:    req.Env,
		Stdout: req.Output,
		Stderr: req.Output,
	}, func(out string) bool {
		return strings.Contains(out, PromptMarker)
	})
	return err
}

// NeedsOTP reports whether a publish failure output asks for a one-time password.
func NeedsOTP(output string) bool {
	for _, m := range otpMarkers {
		if strings.Contains(output, m) {
			return true
		}
	}
	return false
}

// TwoFactorRequired reports whether the logged-in npm account requires a
// one-time password for writes. Any failure to tell yields false; the
// publish retry loop still handles OTP rejections.
func (p *Publisher) TwoFactorRequired(ctx context.Context, registryURL string) bool {
	out, err := p.run.Output(ctx, "npm", "profile", "get", "--json", "--registry", Normalize(registryURL))
	if err != nil {
		return false
	}
	var profile struct {
		TFA json.RawMessage `json:"tfa"`
	}
	if json.Unmarshal([]byte(out), &profile) != nil {
		return false
	}
	var tfa struct {
		Mode string `json:"mode"`
	}
	if json.Unmarshal(profile.TFA, &tfa) != nil {
		// "tfa": false when two-factor authentication is disabled
		return false
	}
	return tfa.Mode == "auth-and-writes"
}

// PublishEnv returns environ without the lowercase npm_config_* variables a
// package manager injects into scripts it runs, so that a release started
// through "npm run" does not leak its flags (such as dry-run) into publish.
// User supplied NPM_CONFIG_* variables are kept.
func PublishEnv(environ []string) []string {
	env := make([]string, 0, len(environ))
	for _, kv := range environ {
		if strings.HasPrefix(kv, "npm_config_") {
			continue
		}
		env = append(env, kv)
	}
	return env
}
