package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/daviddao/timewarp/pkg/model"
)

// printJSON writes v to w as indented JSON.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printStatus(w io.Writer, st model.Status) {
	if !st.Enabled || st.CurrentTime == nil {
		fmt.Fprintf(w, "time travel: disabled\n")
		fmt.Fprintf(w, "real time:   %s\n", st.RealTime.Format(time.RFC3339))
		return
	}
	fmt.Fprintf(w, "time travel: enabled\n")
	fmt.Fprintf(w, "virtual now: %s\n", st.CurrentTime.Format(time.RFC3339))
	fmt.Fprintf(w, "real time:   %s\n", st.RealTime.Format(time.RFC3339))
	fmt.Fprintf(w, "scale:       %gx\n", st.ScaleFactor)
	if d := st.CurrentTime.Sub(st.RealTime); d != 0 {
		fmt.Fprintf(w, "offset:      %s\n", d.Round(time.Second))
	}
}

func printScheduled(w io.Writer, r model.ScheduledResponse) {
	name := r.Name
	if name == "" {
		name = "-"
	}
	repeat := ""
	if r.Repeat != nil {
		repeat = fmt.Sprintf(" every %s", r.Repeat.Interval.Std())
		if r.Repeat.MaxCount != nil {
			repeat += fmt.Sprintf(" x%d", *r.Repeat.MaxCount)
		}
	}
	fmt.Fprintf(w, "  %-36s %-20s at=%s status=%d%s\n",
		r.ID, name, r.TriggerTime.Format(time.RFC3339), r.Status, repeat)
}

func printRule(w io.Writer, r model.MutationRule) {
	state := "enabled"
	if !r.Enabled {
		state = "disabled"
	}
	next := "-"
	if r.NextExecution != nil {
		next = r.NextExecution.Format(time.RFC3339)
	}
	var op model.OperationType
	if r.Operation != nil {
		op = r.Operation.OperationType()
	}
	var trig model.TriggerType
	if r.Trigger != nil {
		trig = r.Trigger.TriggerType()
	}
	fmt.Fprintf(w, "  %-36s %-16s %-8s %s/%s next=%s runs=%d\n",
		r.ID, r.EntityName, state, trig, op, next, r.ExecutionCount)
	if r.Description != "" {
		fmt.Fprintf(w, "      %s\n", r.Description)
	}
}
