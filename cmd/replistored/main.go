// Command replistored is a small demo/ops binary around the replistore
// library: serve exposes one node's debug HTTP surface, simulate drives
// a multi-node convergence demo in-process. Neither subcommand is part
// of the core replication engine; both are ambient operational tooling.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "replistored: %v\n", err)
		os.Exit(1)
	}
}
