package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/daviddao/timewarp/pkg/clock"
	"github.com/daviddao/timewarp/pkg/model"
	"github.com/spf13/cobra"
)

func (c *command) initMutationCmd() error {
	cmd := &cobra.Command{
		Use:     "mutation",
		Aliases: []string{"mutations", "rule"},
		Short:   "Manage mutation rules on a running server",
	}
	c.setClientFlags(cmd)

	listCmd := c.clientCmd("list", "List mutation rules", cobra.NoArgs,
		func(cmd *cobra.Command, cl *client, _ []string) error {
			path := "/mutations"
			if entity, _ := cmd.Flags().GetString("entity"); entity != "" {
				path += "?entity=" + entity
			}
			var rules []model.MutationRule
			if err := cl.do(cmd.Context(), "GET", path, nil, &rules); err != nil {
				return err
			}
			return c.output(cmd, rules, func(w io.Writer) {
				fmt.Fprintf(w, "rules: %d\n", len(rules))
				for _, r := range rules {
					printRule(w, r)
				}
			})
		})
	listCmd.Flags().String("entity", "", "only rules of this entity")

	createCmd := c.clientCmd("create", "Create a mutation rule", cobra.NoArgs,
		func(cmd *cobra.Command, cl *client, _ []string) error {
			req, err := ruleRequest(cmd)
			if err != nil {
				return err
			}
			var r model.MutationRule
			if err := cl.do(cmd.Context(), "POST", "/mutations", req, &r); err != nil {
				return err
			}
			return c.output(cmd, r, func(w io.Writer) {
				fmt.Fprintf(w, "created rule %s\n", r.ID)
				printRule(w, r)
			})
		})
	f := createCmd.Flags()
	f.String("file", "", "JSON file with the rule, - for stdin")
	f.String("id", "", "rule id, generated when empty")
	f.String("entity", "", "entity the rule mutates")
	f.String("every", "", "interval trigger, e.g. 1h or 1d")
	f.String("at", "", "daily trigger at HH:MM UTC")
	f.String("op", "", "operation: set, increment, decrement, transform or updatestatus")
	f.String("field", "", "field the operation writes")
	f.String("value", "", "value of a set operation, JSON or plain text")
	f.Float64("amount", 1, "amount of an increment or decrement")
	f.String("status", "", "status of an updatestatus operation")
	f.String("expression", "", "expression of a transform operation")
	f.String("description", "", "rule description")
	f.Bool("disabled", false, "create the rule disabled")

	getCmd := c.clientCmd("get <id>", "Show a mutation rule", cobra.ExactArgs(1),
		func(cmd *cobra.Command, cl *client, args []string) error {
			var r model.MutationRule
			if err := cl.do(cmd.Context(), "GET", "/mutations/"+args[0], nil, &r); err != nil {
				return err
			}
			return c.output(cmd, r, func(w io.Writer) { printRule(w, r) })
		})

	deleteCmd := c.clientCmd("delete <id>", "Delete a mutation rule", cobra.ExactArgs(1),
		func(cmd *cobra.Command, cl *client, args []string) error {
			if err := cl.do(cmd.Context(), "DELETE", "/mutations/"+args[0], nil, nil); err != nil {
				return err
			}
			cmd.Printf("deleted rule %s\n", args[0])
			return nil
		})

	toggleCmd := func(enable bool) *cobra.Command {
		verb := "disable"
		if enable {
			verb = "enable"
		}
		return c.clientCmd(verb+" <id>", strings.ToUpper(verb[:1])+verb[1:]+" a mutation rule", cobra.ExactArgs(1),
			func(cmd *cobra.Command, cl *client, args []string) error {
				var r model.MutationRule
				if err := cl.do(cmd.Context(), "POST", "/mutations/"+args[0]+"/"+verb, nil, &r); err != nil {
					return err
				}
				return c.output(cmd, r, func(w io.Writer) { printRule(w, r) })
			})
	}

	cmd.AddCommand(listCmd, createCmd, getCmd, deleteCmd, toggleCmd(true), toggleCmd(false))
	c.root.AddCommand(cmd)
	return nil
}

// ruleRequest builds the rule body from --file or from the trigger and
// operation flags.
func ruleRequest(cmd *cobra.Command) (json.RawMessage, error) {
	f := cmd.Flags()
	if path, _ := f.GetString("file"); path != "" {
		var (
			data []byte
			err  error
		)
		if path == "-" {
			data, err = io.ReadAll(cmd.InOrStdin())
		} else {
			data, err = os.ReadFile(path)
		}
		if err != nil {
			return nil, err
		}
		if !json.Valid(data) {
			return nil, fmt.Errorf("%s: invalid JSON", path)
		}
		return data, nil
	}

	entity, _ := f.GetString("entity")
	if entity == "" {
		return nil, fmt.Errorf("missing --entity")
	}

	var trigger model.Trigger
	every, _ := f.GetString("every")
	at, _ := f.GetString("at")
	switch {
	case every != "" && at != "":
		return nil, fmt.Errorf("--every and --at are mutually exclusive")
	case every != "":
		d, err := clock.ParseDuration(every)
		if err != nil {
			return nil, err
		}
		trigger = model.IntervalTrigger{DurationSeconds: int64(d.Seconds())}
	case at != "":
		t, err := parseClockTime(at)
		if err != nil {
			return nil, err
		}
		trigger = t
	default:
		return nil, fmt.Errorf("missing trigger: pass --every or --at")
	}

	op, err := operationFromFlags(cmd)
	if err != nil {
		return nil, err
	}

	id, _ := f.GetString("id")
	rule := model.NewRule(id, entity, trigger, op)
	rule.Description, _ = f.GetString("description")
	if disabled, _ := f.GetBool("disabled"); disabled {
		rule.Enabled = false
	}
	return json.Marshal(rule)
}

func parseClockTime(s string) (model.AtTimeTrigger, error) {
	h, m, ok := strings.Cut(s, ":")
	if !ok {
		return model.AtTimeTrigger{}, fmt.Errorf("invalid time of day %q, want HH:MM", s)
	}
	hour, err := strconv.Atoi(h)
	if err != nil {
		return model.AtTimeTrigger{}, fmt.Errorf("invalid hour in %q", s)
	}
	minute, err := strconv.Atoi(m)
	if err != nil {
		return model.AtTimeTrigger{}, fmt.Errorf("invalid minute in %q", s)
	}
	return model.AtTimeTrigger{Hour: hour, Minute: minute}, nil
}

func operationFromFlags(cmd *cobra.Command) (model.Operation, error) {
	f := cmd.Flags()
	name, _ := f.GetString("op")
	field, _ := f.GetString("field")
	amount, _ := f.GetFloat64("amount")

	switch model.OperationType(strings.ToLower(name)) {
	case model.OperationSet:
		value, _ := f.GetString("value")
		return model.SetOperation{Field: field, Value: jsonOrString(value)}, nil
	case model.OperationIncrement:
		return model.IncrementOperation{Field: field, Amount: amount}, nil
	case model.OperationDecrement:
		return model.DecrementOperation{Field: field, Amount: amount}, nil
	case model.OperationTransform:
		expr, _ := f.GetString("expression")
		return model.TransformOperation{Field: field, Expression: expr}, nil
	case model.OperationUpdateStatus:
		status, _ := f.GetString("status")
		return model.UpdateStatusOperation{Status: status}, nil
	case "":
		return nil, fmt.Errorf("missing --op")
	}
	return nil, fmt.Errorf("unknown operation %q", name)
}
