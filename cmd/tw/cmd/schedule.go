package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/daviddao/timewarp/pkg/clock"
	"github.com/daviddao/timewarp/pkg/model"
	"github.com/spf13/cobra"
)

type scheduledList struct {
	Responses []model.ScheduledResponse `json:"responses"`
	Count     int                       `json:"count"`
	Next      *time.Time                `json:"next,omitempty"`
}

type scheduled struct {
	ID          string    `json:"id"`
	TriggerTime time.Time `json:"trigger_time"`
}

func (c *command) initScheduleCmd() error {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Manage scheduled responses on a running server",
	}
	c.setClientFlags(cmd)

	listCmd := c.clientCmd("list", "List queued responses", cobra.NoArgs,
		func(cmd *cobra.Command, cl *client, _ []string) error {
			var list scheduledList
			if err := cl.do(cmd.Context(), "GET", "/time-travel/schedule", nil, &list); err != nil {
				return err
			}
			return c.output(cmd, list, func(w io.Writer) {
				fmt.Fprintf(w, "scheduled: %d\n", list.Count)
				for _, r := range list.Responses {
					printScheduled(w, r)
				}
			})
		})

	addCmd := c.clientCmd("add", "Schedule a response", cobra.NoArgs,
		func(cmd *cobra.Command, cl *client, _ []string) error {
			req, err := scheduleRequest(cmd)
			if err != nil {
				return err
			}
			var res scheduled
			if err := cl.do(cmd.Context(), "POST", "/time-travel/schedule", req, &res); err != nil {
				return err
			}
			return c.output(cmd, res, func(w io.Writer) {
				fmt.Fprintf(w, "scheduled %s at %s\n", res.ID, res.TriggerTime.Format(time.RFC3339))
			})
		})
	addCmd.Flags().String("id", "", "response id, generated when empty")
	addCmd.Flags().String("name", "", "response name")
	addCmd.Flags().String("at", "", "trigger time, RFC3339 or +<duration> from virtual now")
	addCmd.Flags().String("body", "", "JSON body; plain text is sent as a string")
	addCmd.Flags().Int("status", model.DefaultStatus, "HTTP status")
	addCmd.Flags().StringToString("header", nil, "response header key=value")
	addCmd.Flags().String("repeat", "", "repeat interval, e.g. 30m or 1d")
	addCmd.Flags().Int("max-count", 0, "total number of firings of a repeating response, 0 is unbounded")

	getCmd := c.clientCmd("get <id>", "Show a queued response", cobra.ExactArgs(1),
		func(cmd *cobra.Command, cl *client, args []string) error {
			var r model.ScheduledResponse
			if err := cl.do(cmd.Context(), "GET", "/time-travel/schedule/"+args[0], nil, &r); err != nil {
				return err
			}
			return c.output(cmd, r, func(w io.Writer) { printScheduled(w, r) })
		})

	cancelCmd := c.clientCmd("cancel <id>", "Cancel a queued response", cobra.ExactArgs(1),
		func(cmd *cobra.Command, cl *client, args []string) error {
			if err := cl.do(cmd.Context(), "DELETE", "/time-travel/schedule/"+args[0], nil, nil); err != nil {
				return err
			}
			cmd.Printf("cancelled %s\n", args[0])
			return nil
		})

	clearCmd := c.clientCmd("clear", "Cancel every queued response", cobra.NoArgs,
		func(cmd *cobra.Command, cl *client, _ []string) error {
			if err := cl.do(cmd.Context(), "DELETE", "/time-travel/schedule", nil, nil); err != nil {
				return err
			}
			cmd.Println("schedule cleared")
			return nil
		})

	cmd.AddCommand(listCmd, addCmd, getCmd, cancelCmd, clearCmd)
	c.root.AddCommand(cmd)
	return nil
}

func scheduleRequest(cmd *cobra.Command) (map[string]any, error) {
	f := cmd.Flags()
	at, _ := f.GetString("at")
	if at == "" {
		return nil, fmt.Errorf("missing --at")
	}
	req := map[string]any{"trigger_time": at}

	if id, _ := f.GetString("id"); id != "" {
		req["id"] = id
	}
	if name, _ := f.GetString("name"); name != "" {
		req["name"] = name
	}
	if status, _ := f.GetInt("status"); status != 0 {
		req["status"] = status
	}
	if headers, _ := f.GetStringToString("header"); len(headers) > 0 {
		req["headers"] = headers
	}
	if body, _ := f.GetString("body"); body != "" {
		req["body"] = jsonOrString(body)
	}
	if every, _ := f.GetString("repeat"); every != "" {
		d, err := clock.ParseDuration(every)
		if err != nil {
			return nil, err
		}
		repeat := model.RepeatConfig{Interval: model.Duration(d)}
		if n, _ := f.GetInt("max-count"); n > 0 {
			repeat.MaxCount = &n
		}
		req["repeat"] = repeat
	}
	return req, nil
}

// jsonOrString returns s decoded as JSON, or s itself when it is not JSON.
func jsonOrString(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return s
	}
	return v
}
