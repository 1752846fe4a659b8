// diner-mcp exposes the diner's stored state to MCP clients over stdio.
//
// It opens the same SQLite store as dinerd (WAL mode allows a second
// process) and appends to the same notification outbox.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"

	"github.com/vthunder/diner/internal/activity"
	"github.com/vthunder/diner/internal/clock"
	"github.com/vthunder/diner/internal/config"
	"github.com/vthunder/diner/internal/logging"
	"github.com/vthunder/diner/internal/mcp/tools"
	"github.com/vthunder/diner/internal/notify"
	"github.com/vthunder/diner/internal/state"
	"github.com/vthunder/diner/internal/store"
	"github.com/vthunder/diner/internal/summary"
)

func main() {
	// Load .env file - try executable's parent dir (repo root), then exe dir, then cwd
	envPaths := []string{".env"}
	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		envPaths = append([]string{
			filepath.Join(filepath.Dir(exeDir), ".env"), // parent of bin/ = repo root
			filepath.Join(exeDir, ".env"),
		}, envPaths...)
	}
	for _, p := range envPaths {
		if _, err := os.Stat(p); err == nil {
			_ = godotenv.Load(p)
			break
		}
	}

	// stdout carries the protocol
	log.SetOutput(os.Stderr)

	cfg, err := config.LoadFromState()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}
	logging.SetDebug(cfg.Debug)

	kv, err := store.Open(cfg.StatePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Store error: %v\n", err)
		os.Exit(1)
	}
	defer kv.Close()

	clk := clock.Real{}
	agg := store.NewAggregate(kv, cfg.Settings)
	if err := agg.Init(context.Background(), clock.Day(clk.Now())); err != nil {
		fmt.Fprintf(os.Stderr, "Store init error: %v\n", err)
		os.Exit(1)
	}

	activityLog := activity.New(cfg.StatePath)
	outbox := notify.NewOutbox(filepath.Join(cfg.StatePath, state.NotificationsFile))
	if err := outbox.Load(); err != nil {
		log.Printf("[mcp] Warning: failed to load notifications: %v", err)
	}

	deps := &tools.Dependencies{
		Aggregate:   agg,
		ActivityLog: activityLog,
		Clock:       clk,
		Outbox:      outbox,
		OnToolCall: func(name string) {
			logging.Debug("mcp", "tool call: %s", name)
		},
	}
	if cfg.Summary.URL != "" {
		client := summary.NewClient(cfg.Summary.URL, cfg.Summary.APIKey,
			time.Duration(cfg.Summary.TimeoutSeconds)*time.Second, cfg.Summary.RatePerMinute)
		deps.Summary = summary.NewService(client, agg, clk, activityLog, outbox)
	}

	s := server.NewMCPServer(
		"diner-mcp",
		"1.0.0",
		server.WithToolCapabilities(true),
	)
	tools.RegisterAll(s, deps)

	// Run server
	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		os.Exit(1)
	}
}
