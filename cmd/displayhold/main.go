package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

func main() {
	gin.SetMode(gin.ReleaseMode)

	ctx, cancel := signalContext(context.Background())
	root := buildRoot(command{out: os.Stdout, open: openRuntime})
	err := root.ExecuteContext(ctx)
	cancel()
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildRoot creates the root command and its subcommands.
func buildRoot(c command) *cobra.Command {
	globalFlags := &GlobalFlags{}
	root := createRootCommand(c, globalFlags)
	root.AddCommand(
		createRunCommand(c, globalFlags),
		createInstancesCommand(c, globalFlags),
		createStopHoldCommand(c, globalFlags),
		createShortcutCommand(c, globalFlags),
	)
	if c.out != nil {
		root.SetOut(c.out)
	}
	return root
}

// createRootCommand starts this instance normally when run without a
// subcommand.
func createRootCommand(c command, flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "displayhold",
		Short: "Run shortcuts under a display profile, one instance at a time",
		Long: `displayhold launches applications under a temporary display profile and
keeps other displayhold processes from changing the display at the same time.

Without a subcommand the instance starts normally and waits until it is
interrupted or receives a stop-hold command.

Examples:
  displayhold                              # start and wait
  displayhold shortcut add --name=Game --command="game.exe" --profile=tv --wait
  displayhold run 8f1c7a52-...             # launch a shortcut
  displayhold instances                    # list running instances
  displayhold stop-hold 4242               # release another instance`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.Serve(cmd.Context(), ServeFlags{ConfigPath: flags.ConfigPath})
		},
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (optional)")
	return root
}

func createRunCommand(c command, global *GlobalFlags) *cobra.Command {
	f := &RunFlags{}
	cmd := &cobra.Command{
		Use:   "run <shortcut-id>",
		Short: "Run a shortcut unless another instance is busy",
		Long: `Run looks up the shortcut by id, refuses when another instance is busy or
holding, applies the shortcut's display profile and starts its command.
Shortcuts created with --wait hold until the started process exits and then
revert the profile.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f.ConfigPath = global.ConfigPath
			return c.Run(cmd.Context(), args[0], *f)
		},
	}
	cmd.Flags().BoolVar(&f.Stay, "stay", false, "keep the instance running after the launch")
	cmd.Flags().DurationVar(&f.Timeout, "timeout", 0, "give up after this long (0 = no limit)")
	return cmd
}

func createInstancesCommand(c command, global *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "instances",
		Short: "List reachable instances and their status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.Instances(cmd.Context(), InstancesFlags{ConfigPath: global.ConfigPath})
		},
	}
}

func createStopHoldCommand(c command, global *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stop-hold <pid>",
		Short: "Ask the instance with the given pid to release its hold and exit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pid, err := parsePID(args[0])
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()
			return c.StopHold(ctx, StopHoldFlags{ConfigPath: global.ConfigPath, PID: pid})
		},
	}
}

func createShortcutCommand(c command, global *GlobalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "shortcut",
		Short: "Manage the shortcut library",
	}

	add := &ShortcutAddFlags{}
	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Add a shortcut",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			add.ConfigPath = global.ConfigPath
			return c.ShortcutAdd(cmd.Context(), *add)
		},
	}
	addCmd.Flags().StringVar(&add.Name, "name", "", "display name")
	addCmd.Flags().StringVar(&add.Command, "command", "", "command line to start")
	addCmd.Flags().StringVar(&add.WorkDir, "work-dir", "", "working directory")
	addCmd.Flags().StringVar(&add.Profile, "profile", "", "display profile to apply")
	addCmd.Flags().BoolVar(&add.WaitForExit, "wait", false, "hold until the process exits, then revert the profile")

	list := &cobra.Command{
		Use:   "list",
		Short: "List shortcuts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.ShortcutList(cmd.Context(), global.ConfigPath)
		},
	}
	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one shortcut",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.ShortcutShow(cmd.Context(), ShortcutFlags{ConfigPath: global.ConfigPath, ID: args[0]})
		},
	}
	remove := &cobra.Command{
		Use:     "remove <id>",
		Aliases: []string{"rm"},
		Short:   "Remove a shortcut",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.ShortcutRemove(cmd.Context(), ShortcutFlags{ConfigPath: global.ConfigPath, ID: args[0]})
		},
	}
	cmd.AddCommand(addCmd, list, show, remove)
	return cmd
}
