// SPDX-License-Identifier: MPL-2.0

package main

import cmd "github.com/invowk/rc/cmd/rc"

func main() {
	cmd.Execute()
}
