package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/pflag"
)

func init() {
	register("version", &versionCmd{})
}

type versionCmd struct {
}

func (versionCmd) desc() string {
	return "display relayctl version"
}

func (versionCmd) usage() string {
	return "version"
}

func (versionCmd) longdesc() string {
	return "Display the version stamped into the relayctl binary."
}

func (versionCmd) flags() *pflag.FlagSet {
	return pflag.NewFlagSet("version", pflag.ContinueOnError)
}

func (versionCmd) run(ctx context.Context, args []string) error {
	fmt.Fprintf(out, "relayctl version %s\n", Version)
	return nil
}
