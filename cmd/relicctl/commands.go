package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// run calls the service and prints the pretty body to the command's stdout.
func run(cmd *cobra.Command, method, path string, body interface{}) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
	defer cancel()
	data, err := newAPIClient(serviceURL, adminKey).do(ctx, method, path, body)
	if err != nil {
		return err
	}
	if out := pretty(data); out != "" {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), out)
	}
	return nil
}

func parseID(kind, s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s id %q", kind, s)
	}
	return id, nil
}

func newQueryCmds() []*cobra.Command {
	get := func(use, short, path string) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return run(cmd, http.MethodGet, path, nil)
			},
		}
	}

	holder := &cobra.Command{
		Use:   "holder ACTOR_ID",
		Short: "Show the relic held by an actor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := parseID("actor", args[0])
			if err != nil {
				return err
			}
			return run(cmd, http.MethodGet, "/api/relics/actors/"+actor.String(), nil)
		},
	}
	relic := &cobra.Command{
		Use:   "relic RELIC_ID",
		Short: "Show where a relic is",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("relic", args[0])
			if err != nil {
				return err
			}
			return run(cmd, http.MethodGet, "/api/relics/"+id.String(), nil)
		},
	}

	return []*cobra.Command{
		get("holders", "List relic holders", "/api/relics/holders"),
		get("ground", "List relics on the ground", "/api/relics/ground"),
		get("counts", "Show relic totals", "/api/relics/counts"),
		get("timers", "List every timer (admin)", "/api/admin/timers"),
		get("health", "Show service health", "/api/health"),
		holder,
		relic,
	}
}

func newAdminCmds() []*cobra.Command {
	actorCmd := func(use, short, path string) *cobra.Command {
		return &cobra.Command{
			Use:   use + " ACTOR_ID",
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				actor, err := parseID("actor", args[0])
				if err != nil {
					return err
				}
				return run(cmd, http.MethodPost, path, map[string]uuid.UUID{"actor": actor})
			},
		}
	}

	var yes bool
	revokeAll := &cobra.Command{
		Use:   "revoke-all",
		Short: "Destroy every relic",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("revoke-all destroys every relic; pass --yes to confirm")
			}
			return run(cmd, http.MethodPost, "/api/admin/revoke-all", nil)
		},
	}
	revokeAll.Flags().BoolVar(&yes, "yes", false, "Confirm destroying every relic")

	transfer := &cobra.Command{
		Use:   "transfer FROM_ACTOR TO_ACTOR",
		Short: "Move a relic to another online actor",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := parseID("actor", args[0])
			if err != nil {
				return err
			}
			to, err := parseID("actor", args[1])
			if err != nil {
				return err
			}
			return run(cmd, http.MethodPost, "/api/admin/transfer", map[string]uuid.UUID{"from": from, "to": to})
		},
	}

	var add, remove time.Duration
	var reset bool
	timer := &cobra.Command{
		Use:   "timer ACTOR_ID",
		Short: "Adjust a holder's hunger timer (--add, --remove or --reset)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := parseID("actor", args[0])
			if err != nil {
				return err
			}
			op, d, err := timerOp(add, remove, reset)
			if err != nil {
				return err
			}
			return run(cmd, http.MethodPost, "/api/admin/timers/"+actor.String(), map[string]interface{}{
				"op":      op,
				"seconds": int64(d / time.Second),
			})
		},
	}
	timer.Flags().DurationVar(&add, "add", 0, "Time to add, e.g. 30m")
	timer.Flags().DurationVar(&remove, "remove", 0, "Time to remove, e.g. 1h")
	timer.Flags().BoolVar(&reset, "reset", false, "Reset to the full hunger period")

	despawn := &cobra.Command{
		Use:   "despawn RELIC_ID",
		Short: "Destroy a relic lying on the ground",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("relic", args[0])
			if err != nil {
				return err
			}
			return run(cmd, http.MethodPost, "/api/admin/despawn/"+id.String(), nil)
		},
	}

	var file string
	audit := &cobra.Command{
		Use:   "audit",
		Short: "Classify a world scan against the tracked relics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("read scan: %w", err)
			}
			var observations []json.RawMessage
			if err := json.Unmarshal(data, &observations); err != nil {
				return fmt.Errorf("scan must be a JSON array of observations: %w", err)
			}
			return run(cmd, http.MethodPost, "/api/admin/audit", map[string]interface{}{"observations": observations})
		},
	}
	audit.Flags().StringVarP(&file, "file", "f", "", "JSON file with the observed relic items (required)")
	_ = audit.MarkFlagRequired("file")

	return []*cobra.Command{
		actorCmd("grant", "Give an actor a new relic", "/api/admin/grant"),
		actorCmd("revoke", "Destroy an actor's relic", "/api/admin/revoke"),
		revokeAll,
		transfer,
		timer,
		despawn,
		audit,
	}
}

// timerOp picks the single adjustment requested by the timer flags.
func timerOp(add, remove time.Duration, reset bool) (string, time.Duration, error) {
	set := 0
	op, d := "", time.Duration(0)
	if add > 0 {
		set++
		op, d = "add", add
	}
	if remove > 0 {
		set++
		op, d = "remove", remove
	}
	if reset {
		set++
		op = "reset"
	}
	if set != 1 {
		return "", 0, fmt.Errorf("pass exactly one of --add, --remove or --reset")
	}
	if op != "reset" && d < time.Second {
		return "", 0, fmt.Errorf("adjustment must be at least one second")
	}
	return op, d, nil
}
