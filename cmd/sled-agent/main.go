// Command sled-agent runs a single sled's controller: the per-sled
// registry of simulated instances, reachable from nexus over NATS.
package main

import (
	_ "go.uber.org/automaxprocs"

	"github.com/sledctl/sledctl/cmd/sled-agent/cmd"
)

func main() {
	cmd.Execute()
}
