package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/vthunder/diner/internal/activity"
	"github.com/vthunder/diner/internal/clock"
	"github.com/vthunder/diner/internal/ingredients"
	"github.com/vthunder/diner/internal/store"
)

// Registrar is satisfied by *server.MCPServer
type Registrar interface {
	AddTool(tool mcp.Tool, handler server.ToolHandlerFunc)
}

type handlerFunc func(ctx context.Context, args map[string]any) (string, error)

// RegisterAll registers all MCP tools with the given server and dependencies.
func RegisterAll(s Registrar, deps *Dependencies) {
	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}

	registerStateTools(s, deps)
	registerActivityTools(s, deps)

	if deps.Outbox != nil {
		registerNotificationTools(s, deps)
	}
	if deps.Summary != nil {
		registerSummaryTools(s, deps)
	}
}

func add(s Registrar, deps *Dependencies, tool mcp.Tool, h handlerFunc) {
	name := tool.Name
	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, _ := req.Params.Arguments.(map[string]any)
		if args == nil {
			args = map[string]any{}
		}
		if deps.OnToolCall != nil {
			deps.OnToolCall(name)
		}
		out, err := h(ctx, args)
		if err != nil {
			log.Printf("[mcp] %s failed: %v", name, err)
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(out), nil
	})
}

func jsonText(v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func dayArg(deps *Dependencies, args map[string]any) string {
	if d, ok := args["day"].(string); ok && d != "" {
		return d
	}
	return clock.Day(deps.Clock.Now())
}

func countArg(args map[string]any, def int) int {
	if c, ok := args["count"].(float64); ok && c > 0 {
		return int(c)
	}
	return def
}

func dayOption() mcp.ToolOption {
	return mcp.WithString("day", mcp.Description("Calendar day as YYYY-MM-DD (default today)"))
}

func registerStateTools(s Registrar, deps *Dependencies) {
	add(s, deps, mcp.NewTool("get_today",
		mcp.WithDescription("Get today's behavior totals: scroll distance, active seconds, tab switches, completed interventions and seconds per platform."),
		dayOption(),
	), func(ctx context.Context, args map[string]any) (string, error) {
		b, err := deps.Aggregate.Today(ctx, dayArg(deps, args))
		if err != nil {
			return "", err
		}
		return jsonText(b)
	})

	add(s, deps, mcp.NewTool("get_profile",
		mcp.WithDescription("Get the day's ingredient profile (grease/sugar/salt/greens/water percentages), its dominant ingredient and the matching dish."),
		dayOption(),
	), func(ctx context.Context, args map[string]any) (string, error) {
		day := dayArg(deps, args)
		p, err := deps.Aggregate.Profile(ctx, day)
		if err != nil {
			return "", err
		}
		dominant, _ := p.Dominant()
		return jsonText(map[string]any{
			"date":     day,
			"profile":  p,
			"dominant": dominant,
			"dish":     ingredients.SelectDish(p),
		})
	})

	add(s, deps, mcp.NewTool("get_challenge",
		mcp.WithDescription("Get today's challenge and whether it has been completed."),
	), func(ctx context.Context, args map[string]any) (string, error) {
		rec, err := deps.Aggregate.Challenge(ctx)
		if err != nil {
			return "", err
		}
		if rec == nil {
			return "No challenge assigned yet.", nil
		}
		return jsonText(rec)
	})

	add(s, deps, mcp.NewTool("get_aggregate",
		mcp.WithDescription("Get every persisted value: lifetime totals, kitchen level, upgrades, recent dishes, reflections, settings and today's profile."),
	), func(ctx context.Context, args map[string]any) (string, error) {
		snap, err := deps.Aggregate.Snapshot(ctx, clock.Day(deps.Clock.Now()))
		if err != nil {
			return "", err
		}
		return jsonText(snap)
	})

	add(s, deps, mcp.NewTool("get_reflections",
		mcp.WithDescription("Get stored reflections. Pass a day to filter, or all=true for every stored reflection."),
		dayOption(),
		mcp.WithBoolean("all", mcp.Description("Return reflections from every day")),
	), func(ctx context.Context, args map[string]any) (string, error) {
		day := dayArg(deps, args)
		if all, _ := args["all"].(bool); all {
			day = ""
		}
		list, err := deps.Aggregate.Reflections(ctx, day)
		if err != nil {
			return "", err
		}
		if len(list) == 0 {
			return "No reflections.", nil
		}
		return jsonText(list)
	})

	add(s, deps, mcp.NewTool("get_settings",
		mcp.WithDescription("Get the intervention settings: caps, cooldown, alert timeout, task preference and sensitivity."),
	), func(ctx context.Context, args map[string]any) (string, error) {
		settings, err := deps.Aggregate.Settings(ctx)
		if err != nil {
			return "", err
		}
		return jsonText(settings)
	})

	add(s, deps, mcp.NewTool("get_kitchen",
		mcp.WithDescription("Get kitchen progression: completed sessions, level and the upgrade catalogue with unlock state."),
	), func(ctx context.Context, args map[string]any) (string, error) {
		snap, err := deps.Aggregate.Snapshot(ctx, clock.Day(deps.Clock.Now()))
		if err != nil {
			return "", err
		}
		type upgrade struct {
			store.Upgrade
			Unlocked bool `json:"unlocked"`
		}
		unlocked := map[string]bool{}
		for _, id := range snap.UnlockedUpgrades {
			unlocked[id] = true
		}
		var ups []upgrade
		for _, u := range store.Upgrades {
			ups = append(ups, upgrade{Upgrade: u, Unlocked: unlocked[u.ID]})
		}
		return jsonText(map[string]any{
			"sessionsCompleted": snap.SessionsCompleted,
			"kitchenLevel":      snap.KitchenLevel,
			"upgrades":          ups,
		})
	})
}

func registerActivityTools(s Registrar, deps *Dependencies) {
	add(s, deps, mcp.NewTool("activity_recent",
		mcp.WithDescription("Get recent activity entries: interventions, completions, challenges and summaries."),
		mcp.WithNumber("count", mcp.Description("Number of entries to return (default 50)")),
	), func(ctx context.Context, args map[string]any) (string, error) {
		entries, err := deps.ActivityLog.Recent(countArg(args, 50))
		if err != nil {
			return "", fmt.Errorf("failed to get recent entries: %w", err)
		}
		return jsonText(entries)
	})

	add(s, deps, mcp.NewTool("activity_today",
		mcp.WithDescription("Get today's activity entries. Use this to answer 'how did today go?'"),
	), func(ctx context.Context, args map[string]any) (string, error) {
		entries, err := deps.ActivityLog.Today()
		if err != nil {
			return "", fmt.Errorf("failed to get today's entries: %w", err)
		}
		return jsonText(entries)
	})

	add(s, deps, mcp.NewTool("activity_search",
		mcp.WithDescription("Search activity entries by text."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Text to search for")),
		mcp.WithNumber("count", mcp.Description("Maximum results (default 20)")),
	), func(ctx context.Context, args map[string]any) (string, error) {
		query, _ := args["query"].(string)
		if query == "" {
			return "", fmt.Errorf("query is required")
		}
		entries, err := deps.ActivityLog.Search(query, countArg(args, 20))
		if err != nil {
			return "", fmt.Errorf("failed to search: %w", err)
		}
		return jsonText(entries)
	})

	add(s, deps, mcp.NewTool("activity_by_type",
		mcp.WithDescription("Get activity entries of one type, e.g. 'alert_triggered', 'task_completed', 'summary_failed'."),
		mcp.WithString("type", mcp.Required(), mcp.Description("Activity type")),
		mcp.WithNumber("count", mcp.Description("Maximum results (default 20)")),
	), func(ctx context.Context, args map[string]any) (string, error) {
		t, _ := args["type"].(string)
		if t == "" {
			return "", fmt.Errorf("type is required")
		}
		entries, err := deps.ActivityLog.ByType(activity.Type(t), countArg(args, 20))
		if err != nil {
			return "", fmt.Errorf("failed to get entries: %w", err)
		}
		return jsonText(entries)
	})
}

func registerNotificationTools(s Registrar, deps *Dependencies) {
	add(s, deps, mcp.NewTool("list_notifications",
		mcp.WithDescription("List notifications the user has not dismissed."),
	), func(ctx context.Context, args map[string]any) (string, error) {
		pending := deps.Outbox.Pending()
		if len(pending) == 0 {
			return "No pending notifications.", nil
		}
		return jsonText(pending)
	})

	add(s, deps, mcp.NewTool("dismiss_notification",
		mcp.WithDescription("Dismiss a notification by ID."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Notification ID")),
	), func(ctx context.Context, args map[string]any) (string, error) {
		id, _ := args["id"].(string)
		if id == "" {
			return "", fmt.Errorf("id is required")
		}
		ok, err := deps.Outbox.Dismiss(id)
		if err != nil {
			return "", err
		}
		if !ok {
			return "", fmt.Errorf("notification not found: %s", id)
		}
		return "Notification dismissed.", nil
	})
}

func registerSummaryTools(s Registrar, deps *Dependencies) {
	add(s, deps, mcp.NewTool("request_summary",
		mcp.WithDescription("Ask the analysis service for a summary of the day's behavior and reflections, store it and pick the day's dish. Needs at least one reflection."),
		dayOption(),
	), func(ctx context.Context, args map[string]any) (string, error) {
		res, err := deps.Summary.Run(ctx, dayArg(deps, args))
		if err != nil {
			return "", err
		}
		return jsonText(res)
	})
}
