// Command hostsweep discovers live hosts on an IPv4 network.
package main

import "github.com/anstrom/hostsweep/cmd/cli"

// Build information, set by ldflags during build.
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

func main() {
	cli.SetVersion(version, commit, buildTime)
	cli.Execute()
}
