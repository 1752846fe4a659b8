package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/vthunder/diner/internal/clock"
	"github.com/vthunder/diner/internal/config"
	"github.com/vthunder/diner/internal/state"
	"github.com/vthunder/diner/internal/store"
)

func main() {
	// Global flags
	statePath := os.Getenv("DINER_STATE_PATH")
	if statePath == "" {
		statePath = "state"
	}

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(0)
	}

	cmd := os.Args[1]
	if cmd == "help" || cmd == "-h" || cmd == "--help" {
		printUsage()
		return
	}

	kv, err := store.Open(statePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer kv.Close()

	defaults := store.DefaultSettings()
	if cfg, err := config.LoadFromState(); err == nil {
		defaults = cfg.Settings
	}
	agg := store.NewAggregate(kv, defaults)
	inspector := state.NewInspector(statePath, agg)
	ctx := context.Background()
	today := clock.Day(time.Now())

	switch cmd {
	case "summary", "":
		handleSummary(ctx, inspector, today)
	case "health":
		handleHealth(ctx, inspector, today)
	case "keys":
		handleKeys(ctx, inspector)
	case "get":
		handleGet(ctx, inspector, os.Args[2:])
	case "logs":
		handleLogs(inspector, os.Args[2:])
	case "notifications":
		handleNotifications(inspector, os.Args[2:])
	case "reset-day":
		if err := agg.ResetDay(ctx, today); err != nil {
			fatal(err)
		}
		fmt.Printf("Reset behavior, challenge and dish for %s\n", today)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`diner-state - Inspect and manage the diner's stored state

Usage: diner-state <command> [options]

Commands:
  summary                   Overview of all state components (default)
  health                    Run health checks with recommendations

  keys                      List stored keys
  get <key>                 Print the JSON value of a key

  logs                      Tail recent activity entries
  logs -n=50                Show the last N entries
  logs --truncate=100       Keep only last N entries

  notifications             List undismissed notifications
  notifications --clear     Dismiss all notifications
  notifications --compact   Rewrite the outbox without dismissed entries

  reset-day                 Clear today's behavior, challenge and dish

Environment:
  DINER_STATE_PATH          State directory (default: "state")`)
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func handleSummary(ctx context.Context, inspector *state.Inspector, today string) {
	summary, err := inspector.Summary(ctx, today)
	if err != nil {
		fatal(err)
	}

	fmt.Println("State Summary")
	fmt.Println("=============")
	fmt.Printf("Keys:          %d\n", summary.Keys)
	fmt.Printf("Sessions:      %d (kitchen level %d)\n", summary.SessionsCompleted, summary.KitchenLevel)
	fmt.Printf("Burn alerts:   %d\n", summary.BurnAlerts)
	fmt.Printf("Reflections:   %d\n", summary.Reflections)
	fmt.Printf("Daily dishes:  %d\n", summary.DailyDishes)
	fmt.Printf("Today:         %.0f px, %ds active, %d tab switches\n",
		summary.Today.ScrollDistance, summary.Today.ActiveSeconds, summary.Today.TabSwitches)
	fmt.Printf("Activity:      %d entries\n", summary.Activity)
	fmt.Printf("Notifications: %d pending (%d lines)\n", summary.PendingNotification, summary.Notifications)
	fmt.Printf("Database:      %d bytes\n", summary.DatabaseBytes)
}

func handleHealth(ctx context.Context, inspector *state.Inspector, today string) {
	health, err := inspector.Health(ctx, today)
	if err != nil {
		fatal(err)
	}

	fmt.Printf("Health Status: %s\n", health.Status)
	if len(health.Warnings) > 0 {
		fmt.Println("\nWarnings:")
		for _, w := range health.Warnings {
			fmt.Printf("  - %s\n", w)
		}
	}
	if len(health.Recommendations) > 0 {
		fmt.Println("\nRecommendations:")
		for _, r := range health.Recommendations {
			fmt.Printf("  - %s\n", r)
		}
	}
}

func handleKeys(ctx context.Context, inspector *state.Inspector) {
	keys, err := inspector.Keys(ctx)
	if err != nil {
		fatal(err)
	}
	for _, k := range keys {
		fmt.Println(k)
	}
}

func handleGet(ctx context.Context, inspector *state.Inspector, args []string) {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "Usage: diner-state get <key>")
		os.Exit(1)
	}
	raw, version, err := inspector.Get(ctx, args[0])
	if err != nil {
		fatal(err)
	}
	if raw == nil {
		fmt.Printf("%s: not set\n", args[0])
		return
	}

	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		fatal(err)
	}
	data, _ := json.MarshalIndent(value, "", "  ")
	fmt.Printf("%s (version %d)\n%s\n", args[0], version, data)
}

func handleLogs(inspector *state.Inspector, args []string) {
	fs := flag.NewFlagSet("logs", flag.ExitOnError)
	truncate := fs.Int("truncate", 0, "Keep only last N entries")
	count := fs.Int("n", 20, "Number of entries to show")
	fs.Parse(args)

	if *truncate > 0 {
		if err := inspector.TruncateLogs(*truncate); err != nil {
			fatal(err)
		}
		fmt.Printf("Truncated activity log to last %d entries\n", *truncate)
		return
	}

	entries, err := inspector.TailLogs(*count)
	if err != nil {
		fatal(err)
	}

	fmt.Printf("Recent Activity (%d)\n", len(entries))
	fmt.Println("===================")
	for _, e := range entries {
		ts, _ := e["ts"].(string)
		typ, _ := e["type"].(string)
		summary, _ := e["summary"].(string)
		fmt.Printf("%s [%s] %s\n", ts, typ, summary)
	}
}

func handleNotifications(inspector *state.Inspector, args []string) {
	fs := flag.NewFlagSet("notifications", flag.ExitOnError)
	clear := fs.Bool("clear", false, "Dismiss all notifications")
	compact := fs.Bool("compact", false, "Drop dismissed notifications from the file")
	fs.Parse(args)

	if *clear {
		count, err := inspector.ClearNotifications()
		if err != nil {
			fatal(err)
		}
		fmt.Printf("Dismissed %d notifications\n", count)
		return
	}

	if *compact {
		kept, err := inspector.CompactNotifications()
		if err != nil {
			fatal(err)
		}
		fmt.Printf("Compacted outbox, %d notifications kept\n", kept)
		return
	}

	pending := inspector.Notifications()
	fmt.Printf("Notifications (%d pending)\n", len(pending))
	fmt.Println("=========================")
	for _, n := range pending {
		age := time.Since(n.CreatedAt).Round(time.Second)
		fmt.Printf("%s [%s] %s (%s ago)\n  %s\n\n", n.ID, n.Kind, n.Title, age, n.Message)
	}
}
