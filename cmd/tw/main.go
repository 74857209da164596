// Command tw runs the timewarp server and administers a running one.
package main

import (
	"fmt"
	"os"

	"github.com/daviddao/timewarp/cmd/tw/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "tw:", err)
		os.Exit(1)
	}
}
