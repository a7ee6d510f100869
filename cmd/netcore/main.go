// Command netcore runs packet simulations, inspects allocator snapshots and
// executes allocator scenarios.
package main

import (
	"os"

	"github.com/roach88/netcore/internal/cli"
)

func main() {
	os.Exit(cli.Execute(os.Args[1:], os.Stdout, os.Stderr))
}
