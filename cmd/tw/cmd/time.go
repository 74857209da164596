package cmd

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/daviddao/timewarp/pkg/model"
	"github.com/daviddao/timewarp/pkg/scenario"
	"github.com/spf13/cobra"
)

type advanceResult struct {
	Advanced string       `json:"advanced"`
	Status   model.Status `json:"status"`
}

type nextResult struct {
	Next   *time.Time   `json:"next,omitempty"`
	Status model.Status `json:"status"`
}

type loadResult struct {
	Name     string       `json:"name"`
	Status   model.Status `json:"status"`
	Warnings []string     `json:"warnings,omitempty"`
}

func (c *command) initTimeCmd() error {
	cmd := &cobra.Command{
		Use:   "time",
		Short: "Control virtual time on a running server",
	}
	c.setClientFlags(cmd)
	cmd.PersistentFlags().String(optionNameScenariosDir, "scenarios", "directory of scenario files")

	statusCmd := func(use, short, path string, method string) *cobra.Command {
		return c.clientCmd(use, short, cobra.NoArgs, func(cmd *cobra.Command, cl *client, _ []string) error {
			var st model.Status
			if err := cl.do(cmd.Context(), method, path, nil, &st); err != nil {
				return err
			}
			return c.output(cmd, st, func(w io.Writer) { printStatus(w, st) })
		})
	}

	enableCmd := c.clientCmd("enable [time]", "Enable time travel at an RFC3339 time, or now", cobra.MaximumNArgs(1),
		func(cmd *cobra.Command, cl *client, args []string) error {
			req := map[string]any{}
			if len(args) == 1 {
				t, err := time.Parse(time.RFC3339Nano, args[0])
				if err != nil {
					return fmt.Errorf("invalid time %q: %w", args[0], err)
				}
				req["time"] = t
			}
			if cmd.Flags().Changed("scale") {
				scale, _ := cmd.Flags().GetFloat64("scale")
				req["scale"] = scale
			}
			var st model.Status
			if err := cl.do(cmd.Context(), "POST", "/time-travel/enable", req, &st); err != nil {
				return err
			}
			return c.output(cmd, st, func(w io.Writer) { printStatus(w, st) })
		})
	enableCmd.Flags().Float64("scale", 1, "time scale factor")

	advanceCmd := c.clientCmd("advance <duration>", "Advance virtual time, e.g. 2h, 3d or \"1 week\"", cobra.MinimumNArgs(1),
		func(cmd *cobra.Command, cl *client, args []string) error {
			var res advanceResult
			req := map[string]string{"duration": strings.Join(args, " ")}
			if err := cl.do(cmd.Context(), "POST", "/time-travel/advance", req, &res); err != nil {
				return err
			}
			return c.output(cmd, res, func(w io.Writer) {
				fmt.Fprintf(w, "advanced by %s\n", res.Advanced)
				printStatus(w, res.Status)
			})
		})

	nextCmd := c.clientCmd("next", "Advance virtual time to the next queued response or rule execution", cobra.NoArgs,
		func(cmd *cobra.Command, cl *client, _ []string) error {
			var res nextResult
			if err := cl.do(cmd.Context(), "POST", "/time-travel/next", nil, &res); err != nil {
				return err
			}
			return c.output(cmd, res, func(w io.Writer) {
				printStatus(w, res.Status)
			})
		})

	setCmd := c.clientCmd("set <time>", "Set virtual time to an RFC3339 time or +<duration> from now", cobra.ExactArgs(1),
		func(cmd *cobra.Command, cl *client, args []string) error {
			var st model.Status
			if err := cl.do(cmd.Context(), "POST", "/time-travel/set", map[string]string{"time": args[0]}, &st); err != nil {
				return err
			}
			return c.output(cmd, st, func(w io.Writer) { printStatus(w, st) })
		})

	scaleCmd := c.clientCmd("scale <factor>", "Set the time scale factor", cobra.ExactArgs(1),
		func(cmd *cobra.Command, cl *client, args []string) error {
			f, err := strconv.ParseFloat(args[0], 64)
			if err != nil || f <= 0 {
				return fmt.Errorf("invalid scale factor %q", args[0])
			}
			var st model.Status
			if err := cl.do(cmd.Context(), "POST", "/time-travel/scale", map[string]float64{"scale": f}, &st); err != nil {
				return err
			}
			return c.output(cmd, st, func(w io.Writer) { printStatus(w, st) })
		})

	saveCmd := c.clientCmd("save <name>", "Save the server state to a scenario file", cobra.ExactArgs(1),
		func(cmd *cobra.Command, cl *client, args []string) error {
			desc, _ := cmd.Flags().GetString("description")
			var sc model.Scenario
			req := map[string]string{"name": args[0], "description": desc}
			if err := cl.do(cmd.Context(), "POST", "/time-travel/scenario/save", req, &sc); err != nil {
				return err
			}
			path, err := scenario.NewDir(c.config.GetString(optionNameScenariosDir)).Save(sc)
			if err != nil {
				return err
			}
			return c.output(cmd, map[string]string{"name": sc.Name, "path": path}, func(w io.Writer) {
				fmt.Fprintf(w, "saved scenario %q to %s\n", sc.Name, path)
			})
		})
	saveCmd.Flags().String("description", "", "scenario description")

	loadCmd := c.clientCmd("load <name|path>", "Load a scenario file into the server", cobra.ExactArgs(1),
		func(cmd *cobra.Command, cl *client, args []string) error {
			sc, err := scenario.NewDir(c.config.GetString(optionNameScenariosDir)).Load(args[0])
			if err != nil {
				return err
			}
			var res loadResult
			if err := cl.do(cmd.Context(), "POST", "/time-travel/scenario/load", map[string]any{"scenario": sc}, &res); err != nil {
				return err
			}
			return c.output(cmd, res, func(w io.Writer) {
				fmt.Fprintf(w, "loaded scenario %q\n", res.Name)
				for _, warn := range res.Warnings {
					fmt.Fprintf(w, "warning: %s\n", warn)
				}
				printStatus(w, res.Status)
			})
		})

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List saved scenario files",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.bindFlags(cmd)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			list, err := scenario.NewDir(c.config.GetString(optionNameScenariosDir)).List()
			if err != nil {
				return err
			}
			return c.output(cmd, list, func(w io.Writer) {
				if len(list) == 0 {
					fmt.Fprintln(w, "no scenarios")
					return
				}
				for _, sc := range list {
					at := "real time"
					if sc.Enabled && sc.CurrentTime != nil {
						at = sc.CurrentTime.Format(time.RFC3339)
					}
					fmt.Fprintf(w, "  %-24s %-25s scale=%-6g created=%s %s\n",
						sc.Name, at, sc.ScaleFactor, sc.CreatedAt.Format(time.RFC3339), sc.Description)
				}
			})
		},
	}

	cmd.AddCommand(
		statusCmd("status", "Show the virtual clock", "/time-travel/status", "GET"),
		enableCmd,
		statusCmd("disable", "Disable time travel and use real time", "/time-travel/disable", "POST"),
		advanceCmd,
		nextCmd,
		setCmd,
		scaleCmd,
		statusCmd("reset", "Reset the virtual clock to real time", "/time-travel/reset", "POST"),
		saveCmd,
		loadCmd,
		listCmd,
	)
	c.root.AddCommand(cmd)
	return nil
}
