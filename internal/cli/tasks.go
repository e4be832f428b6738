package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/memeindex/memeindex/internal/backend"
	"github.com/memeindex/memeindex/internal/host"
	"github.com/memeindex/memeindex/internal/output"
	"github.com/memeindex/memeindex/internal/tasks"
	apperr "github.com/memeindex/memeindex/pkg/errors"
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "List and complete reward tasks",
	Long: `Work through the reward task checklist of the launch identity.

Example:
  memeindex tasks list
  memeindex tasks open join-bot
  memeindex tasks verify join_group`,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var tasksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks",
	Args:  cobra.NoArgs,
	RunE:  runTasksList,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var tasksOpenCmd = &cobra.Command{
	Use:   "open <task-id>",
	Short: "Act on a task the way the checklist button does",
	Long: `Open a task. Join tasks open the Telegram link and verify after a short
delay, custom tasks open their link and complete, and invite tasks point to
the invite flow.`,
	Args: cobra.ExactArgs(1),
	RunE: runTasksOpen,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var tasksCompleteCmd = &cobra.Command{
	Use:   "complete <task-id>",
	Short: "Mark a task complete",
	Args:  cobra.ExactArgs(1),
	RunE:  runTasksComplete,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var tasksVerifyCmd = &cobra.Command{
	Use:   "verify <task-type>",
	Short: "Ask the backend to verify a task type",
	Args:  cobra.ExactArgs(1),
	RunE:  runTasksVerify,
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	rootCmd.AddCommand(tasksCmd)
	tasksCmd.AddCommand(tasksListCmd)
	tasksCmd.AddCommand(tasksOpenCmd)
	tasksCmd.AddCommand(tasksCompleteCmd)
	tasksCmd.AddCommand(tasksVerifyCmd)
}

func newTaskService(cmd *cobra.Command) (*tasks.Service, error) {
	launch, err := cmdCtx.identity()
	if err != nil {
		return nil, err
	}
	client, err := cmdCtx.Backend("")
	if err != nil {
		return nil, err
	}
	console := host.NewConsole(cmd.ErrOrStderr())
	return tasks.NewService(client, launch.Identity, tasks.Options{
		Messenger:   console,
		Notifier:    console,
		VerifyDelay: cfg.VerifyDelay(),
		Logger:      logger.Named("tasks"),
	}), nil
}

func runTasksList(cmd *cobra.Command, _ []string) error {
	svc, err := newTaskService(cmd)
	if err != nil {
		return err
	}
	list, err := svc.Fetch(cmd.Context())
	if err != nil {
		return err
	}
	return renderTasks(cmd.OutOrStdout(), list)
}

func renderTasks(w io.Writer, list []backend.Task) error {
	return formatterFor(w).Result(map[string][]backend.Task{"tasks": list}, func(w io.Writer) error {
		if len(list) == 0 {
			outln(w, "No tasks available")
			return nil
		}
		tbl := output.NewTable("ID", "TASK", "VOTES", "TYPE", "DONE")
		tbl.SetMaxWidth(40)
		for _, t := range list {
			title := t.Title
			if t.IsDaily {
				title += " (daily)"
			}
			done := ""
			if t.Completed {
				done = "✓"
			}
			tbl.AddRow(t.ID, title, strconv.Itoa(t.RewardVotes), t.Type, done)
		}
		return tbl.Render(w)
	})
}

func runTasksOpen(cmd *cobra.Command, args []string) error {
	svc, err := newTaskService(cmd)
	if err != nil {
		return err
	}
	if _, err := svc.Fetch(cmd.Context()); err != nil {
		return err
	}
	task, ok := svc.Find(args[0])
	if !ok {
		return apperr.WithDetails(apperr.ErrNotFound, map[string]string{"task": args[0]})
	}
	return svc.Handle(cmd.Context(), task)
}

func runTasksComplete(cmd *cobra.Command, args []string) error {
	svc, err := newTaskService(cmd)
	if err != nil {
		return err
	}
	res, err := svc.Complete(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return renderTaskResult(cmd.OutOrStdout(), res)
}

func runTasksVerify(cmd *cobra.Command, args []string) error {
	svc, err := newTaskService(cmd)
	if err != nil {
		return err
	}
	if suggestion := tasks.SuggestType(args[0]); suggestion != "" && suggestion != args[0] {
		return apperr.WithSuggestion(
			apperr.WithDetails(apperr.ErrUnknownTaskType, map[string]string{"type": args[0]}),
			fmt.Sprintf("Did you mean %q?", suggestion),
		)
	}
	res, err := svc.Verify(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return renderTaskResult(cmd.OutOrStdout(), res)
}

func renderTaskResult(w io.Writer, res *backend.TaskResult) error {
	return formatterFor(w).Result(res, func(w io.Writer) error {
		if res.Completed() {
			out(w, "Earned %d votes\n", res.RewardVotes)
			return nil
		}
		outln(w, res.Message)
		return nil
	})
}
