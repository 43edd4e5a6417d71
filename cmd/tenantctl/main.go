// Command tenantctl issues authenticated requests against a tenant's backend
// from the command line.
//
// Every flag can also be set through a TENANTCTL_ prefixed environment
// variable, e.g. TENANTCTL_ACCESS_TOKEN.
package main

import (
	"fmt"
	"os"
)

func main() {
	cmd := newRootCommand(os.Stdout, os.Stderr)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
