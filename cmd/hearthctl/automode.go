package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/muaviaUsmani/hearth/internal/automode"
	"github.com/muaviaUsmani/hearth/pkg/client"
	"github.com/spf13/cobra"
)

var weekdays = []string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}

func newAutoModeCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "automode",
		Short: "Inspect and configure time-window auto-mode",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, ctx, cancel, err := opts.connect(cmd)
			if err != nil {
				return err
			}
			defer cancel()

			st, err := c.AutoMode(ctx)
			if err != nil {
				return err
			}
			if opts.json {
				return printJSON(cmd.OutOrStdout(), st)
			}
			printAutoMode(cmd.OutOrStdout(), st)
			return nil
		},
	}
	cmd.AddCommand(newAutoModeConfigCmd(opts))
	return cmd
}

func newAutoModeConfigCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show the active auto-mode config",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, ctx, cancel, err := opts.connect(cmd)
			if err != nil {
				return err
			}
			defer cancel()

			cfg, err := c.AutoModeConfig(ctx)
			if err != nil {
				return err
			}
			if opts.json {
				return printJSON(cmd.OutOrStdout(), cfg)
			}
			printAutoModeConfig(cmd.OutOrStdout(), cfg)
			return nil
		},
	}

	apply := &cobra.Command{
		Use:   "apply FILE",
		Short: "Replace the auto-mode config with a YAML or JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := automode.LoadFile(args[0])
			if err != nil {
				return err
			}

			c, ctx, cancel, err := opts.connect(cmd)
			if err != nil {
				return err
			}
			defer cancel()

			applied, err := c.UpdateAutoModeConfig(ctx, cfg)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied auto-mode config: enabled=%t, %d window(s), timezone %s\n",
				applied.Enabled, len(applied.TimeWindows), applied.Timezone)
			return nil
		},
	}

	export := &cobra.Command{
		Use:   "export FILE",
		Short: "Write the active auto-mode config to a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, ctx, cancel, err := opts.connect(cmd)
			if err != nil {
				return err
			}
			defer cancel()

			cfg, err := c.AutoModeConfig(ctx)
			if err != nil {
				return err
			}
			if err := automode.SaveFile(args[0], cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", args[0])
			return nil
		},
	}

	validate := &cobra.Command{
		Use:   "validate FILE",
		Short: "Check an auto-mode config file without applying it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := automode.LoadFile(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is valid\n", args[0])
			if !opts.json {
				printAutoModeConfig(cmd.OutOrStdout(), cfg)
			}
			return nil
		},
	}

	cmd.AddCommand(apply, export, validate)
	return cmd
}

func newCalendarCmd(opts *globalOptions) *cobra.Command {
	var (
		days   int
		output string
	)
	cmd := &cobra.Command{
		Use:   "calendar",
		Short: "Export upcoming runs as an iCalendar feed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, ctx, cancel, err := opts.connect(cmd)
			if err != nil {
				return err
			}
			defer cancel()

			data, err := c.Calendar(ctx, days)
			if err != nil {
				return err
			}
			if output == "" || output == "-" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			return os.WriteFile(output, data, 0o644)
		},
	}
	cmd.Flags().IntVar(&days, "days", 7, "days ahead to include (1-31)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to file instead of stdout")
	return cmd
}

func modeString(m automode.Mode) string {
	if m == automode.ModeNav {
		return color.CyanString(string(m))
	}
	return color.YellowString(string(m))
}

func printAutoMode(w io.Writer, st *client.AutoModeStatus) {
	enabled := "disabled"
	if st.Enabled {
		enabled = "enabled"
	}
	fmt.Fprintf(w, "Auto-mode:     %s\n", enabled)
	fmt.Fprintf(w, "Mode:          %s\n", modeString(st.Mode))
	if st.ActiveWindow != nil {
		fmt.Fprintf(w, "Active window: %s (%s-%s)\n", st.ActiveWindow.Name, st.ActiveWindow.StartTime, st.ActiveWindow.EndTime)
	}
	fmt.Fprintf(w, "Next change:   %s\n", st.NextBoundary)
	fmt.Fprintf(w, "Poll every:    %ds\n", st.RecommendedPollSeconds)
}

func printAutoModeConfig(w io.Writer, cfg *automode.Config) {
	fmt.Fprintf(w, "Enabled:  %t\n", cfg.Enabled)
	fmt.Fprintf(w, "Default:  %s\n", modeString(cfg.DefaultMode))
	fmt.Fprintf(w, "Timezone: %s\n", cfg.Timezone)
	fmt.Fprintf(w, "Refresh:  Nav %ds, Compact %ds\n", cfg.NavModeRefreshSeconds, cfg.CompactModeRefreshSeconds)
	for _, win := range cfg.TimeWindows {
		days := make([]string, 0, len(win.DaysOfWeek))
		for _, d := range win.DaysOfWeek {
			if d >= 0 && d < len(weekdays) {
				days = append(days, weekdays[d])
			}
		}
		fmt.Fprintf(w, "  %-20s %s-%s %-8s %s\n",
			win.Name, win.StartTime, win.EndTime, modeString(win.Mode), strings.Join(days, ","))
	}
}
