// historyctl CLI entry point.
package main

import (
	"fmt"
	"os"

	"github.com/kkkqkx123/open-agent-sub019/cli/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
