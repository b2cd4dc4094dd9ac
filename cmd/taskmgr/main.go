package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildRoot creates the root command and every subcommand.
func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	apiFlags := &APIFlags{}

	root := createRootCommand(globalFlags, apiFlags)
	cmd := command{api: apiFlags}

	root.AddCommand(
		createServeCommand(globalFlags),
		createCreateCommand(cmd),
		createListCommand(cmd),
		createGetCommand(cmd),
		createKillCommand(cmd),
		createCapacityCommand(cmd),
	)
	return root
}

func createRootCommand(flags *GlobalFlags, api *APIFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "taskmgr",
		Short: "Bounded task manager with admission strategies",
		Long: `taskmgr keeps a bounded set of task records and decides what happens
when a new task arrives at a full manager: reject it (NAIVE), evict the oldest
record (FIFO) or evict the oldest record of a lower priority (PRIORITY).

Examples:
  taskmgr serve config.toml
  taskmgr create --task=backup --type=fifo --priority=high
  taskmgr list --sort=priority
  taskmgr kill --pid=3 --pid=4
  taskmgr capacity --set=50`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (optional)")
	root.PersistentFlags().StringVar(&api.APIUrl, "api-url", "http://127.0.0.1:8080", "REST API URL including any base path")
	root.PersistentFlags().StringVar(&api.AdminURL, "admin-url", "http://127.0.0.1:9090", "management API URL")
	root.PersistentFlags().DurationVar(&api.APITimeout, "api-timeout", defaultAPITimeout, "request timeout")
	return root
}

func createServeCommand(globalFlags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve [config.toml]",
		Short: "Start the taskmgr server",
		Long: `Start the REST and management servers. Configuration is read from the
given TOML file (or --config) and TASKMGR_* environment variables; without a
file the defaults apply.

Examples:
  taskmgr serve
  taskmgr serve config.toml
  TASKMGR_CAPACITY_MAX=10 taskmgr serve`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := globalFlags.ConfigPath
			if len(args) > 0 {
				path = args[0]
			}
			return runServe(cmd.Context(), path, cmd.OutOrStdout())
		},
	}
}

func createCreateCommand(c command) *cobra.Command {
	flags := &CreateFlags{}
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a task",
		Long: `Create a task. --type picks what happens when the manager is full.

Examples:
  taskmgr create --task=report --type=naive --priority=low
  taskmgr create --task=deploy --type=priority --priority=high`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Create(cmd.Context(), cmd.OutOrStdout(), *flags)
		},
	}
	cmd.Flags().StringVar(&flags.Task, "task", "", "task title (required)")
	cmd.Flags().StringVar(&flags.Type, "type", "NAIVE", "admission strategy: NAIVE, FIFO or PRIORITY")
	cmd.Flags().StringVar(&flags.Priority, "priority", "LOW", "LOW, MEDIUM or HIGH")
	if err := cmd.MarkFlagRequired("task"); err != nil {
		panic(err)
	}
	return cmd
}

func createListCommand(c command) *cobra.Command {
	flags := &ListFlags{}
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		Long: `List tasks ordered by creation time, or by --sort.

Examples:
  taskmgr list
  taskmgr list --sort=priority`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.List(cmd.Context(), cmd.OutOrStdout(), *flags)
		},
	}
	cmd.Flags().StringVar(&flags.Sort, "sort", "", "date, priority or id")
	return cmd
}

func createGetCommand(c command) *cobra.Command {
	var pid int64
	cmd := &cobra.Command{
		Use:   "get",
		Short: "Show one task",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Get(cmd.Context(), cmd.OutOrStdout(), pid)
		},
	}
	cmd.Flags().Int64Var(&pid, "pid", 0, "task id (required)")
	if err := cmd.MarkFlagRequired("pid"); err != nil {
		panic(err)
	}
	return cmd
}

func createKillCommand(c command) *cobra.Command {
	flags := &KillFlags{}
	cmd := &cobra.Command{
		Use:   "kill",
		Short: "Remove tasks",
		Long: `Remove the listed tasks, or every task with --all. A batch is removed
only if every id exists.

Examples:
  taskmgr kill --pid=3
  taskmgr kill --pid=3 --pid=7
  taskmgr kill --all`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Kill(cmd.Context(), cmd.OutOrStdout(), *flags)
		},
	}
	cmd.Flags().Int64SliceVar(&flags.PIDs, "pid", nil, "task id, repeatable")
	cmd.Flags().BoolVar(&flags.All, "all", false, "remove every task")
	cmd.MarkFlagsMutuallyExclusive("pid", "all")
	cmd.MarkFlagsOneRequired("pid", "all")
	return cmd
}

func createCapacityCommand(c command) *cobra.Command {
	var set int
	cmd := &cobra.Command{
		Use:   "capacity",
		Short: "Show or raise the maximum number of tasks",
		Long: `Show the current capacity, or raise it with --set. The capacity can
never be lowered.

Examples:
  taskmgr capacity
  taskmgr capacity --set=40 --admin-url=http://127.0.0.1:9090`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flag("set").Changed {
				return c.SetCapacity(cmd.Context(), cmd.OutOrStdout(), set)
			}
			return c.Capacity(cmd.Context(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().IntVar(&set, "set", 0, "new capacity")
	return cmd
}
