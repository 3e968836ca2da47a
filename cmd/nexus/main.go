// Command nexus runs the central controller: the authoritative
// registry of projects, instances, and sleds, reachable over NATS.
package main

import (
	_ "go.uber.org/automaxprocs"

	"github.com/sledctl/sledctl/cmd/nexus/cmd"
)

func main() {
	cmd.Execute()
}
