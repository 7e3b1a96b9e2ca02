package main

import (
	"github.com/spf13/pflag"

	"github.com/Driving-Capstone/DrivingCoach-BE/relayctl/cmd"
)

var Version string

func main() {
	if Version != "" {
		cmd.Version = Version
	}
	pflag.CommandLine.SetInterspersed(false)
	pflag.Parse()
	cmd.Run(pflag.Args())
}
