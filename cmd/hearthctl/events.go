package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/muaviaUsmani/hearth/internal/event"
	"github.com/muaviaUsmani/hearth/internal/status"
	"github.com/spf13/cobra"
)

func newEventsCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "events",
		Aliases: []string{"event", "ev"},
		Short:   "Create, inspect and cancel scheduled events",
	}
	cmd.AddCommand(
		newEventsListCmd(opts),
		newEventsGetCmd(opts),
		newEventsCreateCmd(opts),
		newEventsCancelCmd(opts),
		newEventsRunCmd(opts),
	)
	return cmd
}

func newEventsListCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List scheduled events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, ctx, cancel, err := opts.connect(cmd)
			if err != nil {
				return err
			}
			defer cancel()

			events, err := c.ListEvents(ctx)
			if err != nil {
				return err
			}
			if opts.json {
				return printJSON(cmd.OutOrStdout(), events)
			}
			printEvents(cmd.OutOrStdout(), events)
			return nil
		},
	}
}

func newEventsGetCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get EVENT_ID",
		Short: "Show one event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, ctx, cancel, err := opts.connect(cmd)
			if err != nil {
				return err
			}
			defer cancel()

			ev, err := c.GetEvent(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), ev)
		},
	}
}

func newEventsCreateCmd(opts *globalOptions) *cobra.Command {
	var (
		taskType string
		schedule string
		payload  string
		once     bool
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Schedule a new event",
		Example: `  hearthctl events create --task widget-refresh --schedule interval:300
  hearthctl events create --task backup --schedule "cron:0 3 * * *" --payload '{"target":"nas"}'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req := event.CreateRequest{TaskType: taskType, ScheduleExpression: schedule}
			if payload != "" {
				if err := json.Unmarshal([]byte(payload), &req.Payload); err != nil {
					return fmt.Errorf("--payload must be a JSON object: %w", err)
				}
			}
			if once {
				recurring := false
				req.IsRecurring = &recurring
			}

			c, ctx, cancel, err := opts.connect(cmd)
			if err != nil {
				return err
			}
			defer cancel()

			ev, err := c.CreateEvent(ctx, req)
			if err != nil {
				return err
			}
			if opts.json {
				return printJSON(cmd.OutOrStdout(), ev)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created %s, next run %s\n", ev.ID, ev.NextRunAt)
			return nil
		},
	}
	cmd.Flags().StringVar(&taskType, "task", "", "task type (required)")
	cmd.Flags().StringVar(&schedule, "schedule", "", "schedule expression, interval:<seconds> or cron:<spec> (required)")
	cmd.Flags().StringVar(&payload, "payload", "", "JSON object passed to the task")
	cmd.Flags().BoolVar(&once, "once", false, "run once and delete")
	_ = cmd.MarkFlagRequired("task")
	_ = cmd.MarkFlagRequired("schedule")
	return cmd
}

func newEventsCancelCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "cancel EVENT_ID",
		Aliases: []string{"rm", "delete"},
		Short:   "Cancel an event",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, ctx, cancel, err := opts.connect(cmd)
			if err != nil {
				return err
			}
			defer cancel()

			if err := c.CancelEvent(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cancelled %s\n", args[0])
			return nil
		},
	}
}

func newEventsRunCmd(opts *globalOptions) *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:   "run EVENT_ID",
		Short: "Record that an event ran",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var executedAt time.Time
			if at != "" {
				t, err := event.ParseISO(at)
				if err != nil {
					return err
				}
				executedAt = t
			}

			c, ctx, cancel, err := opts.connect(cmd)
			if err != nil {
				return err
			}
			defer cancel()

			res, err := c.RecordRun(ctx, args[0], executedAt)
			if err != nil {
				return err
			}
			if opts.json {
				return printJSON(cmd.OutOrStdout(), res)
			}
			if res.Deleted {
				fmt.Fprintf(cmd.OutOrStdout(), "Recorded run of %s; one-shot event removed\n", args[0])
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Recorded run of %s, next run %s\n", args[0], res.Event.NextRunAt)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "execution time (RFC 3339), defaults to now")
	return cmd
}

func newStatusCmd(opts *globalOptions) *cobra.Command {
	var refresh bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show engine health and upcoming runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, ctx, cancel, err := opts.connect(cmd)
			if err != nil {
				return err
			}
			defer cancel()

			r, err := c.Status(ctx, refresh)
			if err != nil {
				return err
			}
			if opts.json {
				return printJSON(cmd.OutOrStdout(), r)
			}
			printStatus(cmd.OutOrStdout(), r)
			return nil
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "bypass the server's status cache")
	return cmd
}

func printEvents(w io.Writer, events []*event.Event) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTASK\tSCHEDULE\tNEXT RUN\tLAST RUN\tRECURRING")
	for _, ev := range events {
		last := ev.LastRunAt
		if last == "" {
			last = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%t\n",
			ev.ID, ev.TaskType, ev.ScheduleExpression, ev.NextRunAt, last, ev.IsRecurring)
	}
	_ = tw.Flush()
}

func printStatus(w io.Writer, r *status.Report) {
	health := color.GreenString("healthy")
	if !r.IsHealthy {
		health = color.RedString("unhealthy")
	}
	fmt.Fprintf(w, "Status:           %s\n", health)
	fmt.Fprintf(w, "Active schedules: %d\n", r.ActiveSchedules)
	fmt.Fprintf(w, "Updated:          %s\n", r.LastUpdatedISO)
	if len(r.NextScheduledEvents) > 0 {
		fmt.Fprintln(w)
		printEvents(w, r.NextScheduledEvents)
	}
}
