// SPDX-License-Identifier: MPL-2.0

package publish

import (
	"context"
	"runtime"

	"github.com/invowk/rc/internal/shell"
)

// BrowserOpener opens URLs with the platform's default handler.
func BrowserOpener(run *shell.Runner) Opener {
	return func(ctx context.Context, url string) error {
		name, args := openCommand(runtime.GOOS)
		return run.Mutate(ctx, name, append(args, url)...)
	}
}

func openCommand(goos string) (string, []string) {
	switch goos {
	case "darwin":
		return "open", nil
	case "windows":
		return "rundll32", []string{"url.dll,FileProtocolHandler"}
	default:
		return "xdg-open", nil
	}
}
