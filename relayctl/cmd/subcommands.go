package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/Driving-Capstone/DrivingCoach-BE/backend"
	"github.com/Driving-Capstone/DrivingCoach-BE/proto/logging"
)

var out io.Writer

type subcommand interface {
	desc() string
	longdesc() string
	usage() string
	flags() *pflag.FlagSet
	run(context.Context, []string) error
}

var subcommands = map[string]subcommand{}

func register(name string, cmd subcommand) { subcommands[name] = cmd }

// Run executes the command named by args[0] and exits non-zero if it fails.
func Run(args []string) {
	if code := execute(os.Stdout, args); code != 0 {
		os.Exit(code)
	}
}

// execute returns the process exit code instead of exiting, so that
// buffered output is flushed on every path.
func execute(stdout io.Writer, args []string) int {
	tw := tabwriter.NewWriter(stdout, 0, 8, 1, '\t', 0)
	defer tw.Flush()
	out = tw

	if len(args) == 0 {
		generalHelp()
		return 0
	}

	exe := filepath.Base(os.Args[0])
	cmd, ok := subcommands[args[0]]
	if !ok {
		fmt.Fprintf(os.Stderr, "%s: invalid command: %s\n", exe, args[0])
		fmt.Fprintf(os.Stderr, "Run '%s help' for usage.\n", exe)
		return 2
	}

	// The file is loaded before the command registers its flags, so flags
	// given on the command line win over the file.
	if *config != "" {
		if err := backend.Config.LoadFromFile(*config); err != nil {
			fmt.Fprintf(os.Stderr, "%s: %s\n", exe, err)
			return 2
		}
	}

	flags := cmd.flags()
	if err := flags.Parse(args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s %s: %s\n", exe, args[0], err)
		return 2
	}

	logging.Init(os.Stderr, backend.Config.Log.Level, backend.Config.Log.Console)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cmd.run(ctx, flags.Args())
	stop()
	if err != nil {
		tw.Flush()
		fmt.Fprintln(os.Stderr, err.Error())
		return 1
	}
	return 0
}

func generalHelp() {
	out := tabwriter.NewWriter(os.Stderr, 0, 8, 1, '\t', 0)
	defer out.Flush()

	exe := filepath.Base(os.Args[0])
	fmt.Fprintf(out, "USAGE:\n\t%s [global options] <command> [command options] [arguments...]\n\n", exe)
	fmt.Fprintf(out, "VERSION:\n\t%s\n\n", Version)

	fmt.Fprintf(out, "COMMANDS:\n")
	names := make([]string, 0, len(subcommands))
	for name := range subcommands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(out, "\t%s\t%s\n", name, subcommands[name].desc())
	}
	fmt.Fprintln(out)

	fmt.Fprintf(out, "GLOBAL OPTIONS:\n")
	printFlags(out, pflag.CommandLine)

	fmt.Fprintln(out)
	fmt.Fprintf(out, "Run \"%s help <command>\" for more details about a command.\n", exe)
}

func printFlags(w io.Writer, fs *pflag.FlagSet) {
	fs.VisitAll(func(f *pflag.Flag) {
		fmt.Fprintf(w, "\t--%s=%s\t%s\n", f.Name, f.DefValue, f.Usage)
	})
}
