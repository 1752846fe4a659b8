package main

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/joho/godotenv"

	"github.com/vthunder/diner/internal/activity"
	"github.com/vthunder/diner/internal/api"
	"github.com/vthunder/diner/internal/challenge"
	"github.com/vthunder/diner/internal/clock"
	"github.com/vthunder/diner/internal/config"
	"github.com/vthunder/diner/internal/coordinator"
	"github.com/vthunder/diner/internal/hostwatch"
	"github.com/vthunder/diner/internal/logging"
	"github.com/vthunder/diner/internal/notify"
	"github.com/vthunder/diner/internal/state"
	"github.com/vthunder/diner/internal/store"
	"github.com/vthunder/diner/internal/summary"
	"github.com/vthunder/diner/internal/tasks"
	"github.com/vthunder/diner/internal/tracking"
)

func main() {
	log.Println("dinerd - dopamine diner engine")
	log.Println("==============================")

	// Load .env file (optional - won't error if missing)
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, using environment variables")
	} else {
		log.Println("[config] Loaded .env file")
	}

	cfg, err := config.LoadFromState()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logging.SetDebug(cfg.Debug)

	// Ensure state directory exists
	os.MkdirAll(cfg.StatePath, 0755)

	kv, err := store.Open(cfg.StatePath)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer kv.Close()

	ctx := context.Background()
	clk := clock.Real{}
	agg := store.NewAggregate(kv, cfg.Settings)
	if err := agg.Init(ctx, clock.Day(clk.Now())); err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}

	// Settings saved from the popup win over the config file
	settings, err := agg.Settings(ctx)
	if err != nil {
		log.Printf("Warning: failed to read stored settings, using config: %v", err)
		settings = cfg.Settings
	}

	activityLog := activity.New(cfg.StatePath)
	outbox := notify.NewOutbox(filepath.Join(cfg.StatePath, state.NotificationsFile))
	if err := outbox.Load(); err != nil {
		log.Printf("Warning: failed to load notifications: %v", err)
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	selector := tasks.NewSelector(rand.NewSource(seed))
	challenges := challenge.NewEvaluator(agg, rand.NewSource(seed+1))

	opts := coordinator.DefaultOptions()
	opts.Clock = clk
	opts.Settings = settings
	opts.Collector = tracking.CollectorConfig{
		DebounceDelay:  cfg.DebounceDelay(),
		ReportInterval: cfg.ReportInterval(),
	}
	opts.AckTimeout = cfg.AckTimeout()
	opts.Burn.BurstSpeed = cfg.Intervention.BurstSpeed
	opts.Burn.BurstMinActive = cfg.Intervention.BurstMinActive
	opts.RapidSwitchWindow = time.Duration(cfg.Intervention.RapidSwitchSeconds) * time.Second
	opts.RapidSwitchLimit = cfg.Intervention.RapidSwitchLimit

	coord, err := coordinator.New(coordinator.Deps{
		Aggregate:  agg,
		Selector:   selector,
		Challenges: challenges,
		Activity:   activityLog,
		Outbox:     outbox,
	}, opts)
	if err != nil {
		log.Fatalf("Failed to create coordinator: %v", err)
	}

	client := summary.NewClient(cfg.Summary.URL, cfg.Summary.APIKey,
		time.Duration(cfg.Summary.TimeoutSeconds)*time.Second, cfg.Summary.RatePerMinute)
	if cfg.Summary.URL == "" {
		log.Println("[config] DINER_SUMMARY_URL not set, daily analysis disabled")
	}
	summarySvc := summary.NewService(client, agg, clk, activityLog, outbox)

	hub := coordinator.NewHub(coord, nil)
	apiServer := &api.Server{
		Coordinator: coord,
		Hub:         hub,
		Aggregate:   agg,
		Challenges:  challenges,
		Summary:     summarySvc,
		Outbox:      outbox,
		Activity:    activityLog,
		Clock:       clk,
	}
	httpServer := &http.Server{
		Addr:              cfg.Listen,
		Handler:           apiServer.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("[main] Listening on %s", cfg.Listen)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	// Pause every collector while the browser is gone
	var watcher *hostwatch.Watcher
	if cfg.Browser.PollSeconds > 0 {
		watcher = hostwatch.New(cfg.Browser.ProcessNames,
			time.Duration(cfg.Browser.PollSeconds)*time.Second,
			coord.BlurAll,
			func() { log.Println("[main] Browser process is back") },
		)
		watcher.Start()
	}

	// Discord forwarding is optional
	var discordEffector *notify.DiscordEffector
	var discordSession *discordgo.Session
	if cfg.Discord.Token != "" && cfg.Discord.ChannelID != "" {
		discordSession, err = discordgo.New("Bot " + cfg.Discord.Token)
		if err != nil {
			log.Fatalf("Failed to create Discord session: %v", err)
		}
		discordEffector = notify.NewDiscordEffector(discordSession, cfg.Discord.ChannelID, outbox)
		discordEffector.Start()
		log.Printf("[main] Forwarding notifications to Discord channel %s", cfg.Discord.ChannelID)
	}

	log.Println("[main] All subsystems started. Press Ctrl+C to stop.")

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Println("[main] Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("Warning: HTTP shutdown: %v", err)
	}
	if watcher != nil {
		watcher.Stop()
	}
	if discordEffector != nil {
		discordEffector.Stop()
	}
	if discordSession != nil {
		discordSession.Close()
	}
	coord.Close()

	log.Println("[main] Goodbye!")
}
