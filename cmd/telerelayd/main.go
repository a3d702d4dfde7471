// Command telerelayd is the process entrypoint standing in for the
// desktop shell's native process supervisor: it boots the connection
// manager, the packet logger, and a command-surface adapter, then
// exposes them through a small cobra command tree instead of a UI.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
