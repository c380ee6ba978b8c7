// Command ebt translates EPUB books with an LLM while keeping their markup,
// images and package structure.
package main

import (
	"fmt"
	"os"
	"slices"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/oukeidos/ebt/internal/cleanup"
	"github.com/oukeidos/ebt/internal/version"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run executes the command line and the cleanup hooks and returns the exit
// code.
func run(args []string) int {
	cmd := newRootCmd()
	cmd.SetArgs(args)
	err := cmd.Execute()
	if cerr := cleanup.RunAll(); cerr != nil {
		fmt.Fprintln(os.Stderr, cerr)
		if err == nil {
			err = cerr
		}
	}
	if err != nil {
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	opts := translateOptions{}
	cmd := &cobra.Command{
		Use:     "ebt",
		Short:   "EPUB Book Translator",
		Example: translateExample,
		Args:    cobra.ArbitraryArgs,
		// A bare "ebt in.epub out.epub" is a translate run.
		RunE: func(cmd *cobra.Command, args []string) error {
			switch {
			case len(args) == 0 && !anyFlagChanged(cmd.Flags()):
				return cmd.Help()
			case len(args) == 0:
				_ = cmd.Usage()
				return fmt.Errorf("input and output files are required")
			case slices.ContainsFunc(cmd.Commands(), func(c *cobra.Command) bool { return c.Name() == args[0] }):
				_ = cmd.Usage()
				return fmt.Errorf("unknown command %q for %q", args[0], cmd.CommandPath())
			}
			return runTranslate(cmd, args, &opts)
		},
		SilenceUsage: true,
	}
	cmd.Version = version.Info()
	cmd.SetVersionTemplate("{{.Version}}\n")
	addTranslateFlags(cmd, &opts)

	cmd.AddGroup(
		&cobra.Group{ID: groupTranslate, Title: "Translation:"},
		&cobra.Group{ID: groupProgress, Title: "Progress:"},
		&cobra.Group{ID: groupSetup, Title: "Setup:"},
	)
	grouped := map[string][]*cobra.Command{
		groupTranslate: {newTranslateCmd(), newRepairCmd()},
		groupProgress:  {newStatusCmd(), newClearProgressCmd()},
		groupSetup:     {newEnvCmd(), newListCmd(), newAboutCmd()},
	}
	for group, cmds := range grouped {
		for _, c := range cmds {
			c.GroupID = group
			cmd.AddCommand(c)
		}
	}
	cmd.InitDefaultCompletionCmd()
	cmd.InitDefaultHelpCmd()
	for _, c := range cmd.Commands() {
		if c.Name() == "completion" {
			c.Short = "Generate the autocompletion script for ebt"
		}
	}

	cmd.SetUsageTemplate(rootUsageTemplate)
	setSubcommandUsage(cmd)
	return cmd
}

func setSubcommandUsage(parent *cobra.Command) {
	for _, c := range parent.Commands() {
		c.SetUsageTemplate(subcommandUsageTemplate)
		setSubcommandUsage(c)
	}
}

func anyFlagChanged(flags *pflag.FlagSet) bool {
	changed := false
	flags.Visit(func(*pflag.Flag) { changed = true })
	return changed
}
