// Command fleetctl is the operator-facing CLI for the worker fleet: it
// spawns workers, waits for completions/failures/permission requests, and
// applies permission decisions, following the config -> logger -> supervisor
// wiring sequence used to bring up the backend services in this codebase's
// lineage.
package main

import "os"

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
