package logging

import (
	"log"
	"os"
	"strings"
)

var (
	debugEnabled = os.Getenv("DINER_DEBUG") == "true"
)

// SetDebug toggles debug output (config may enable it after startup)
func SetDebug(enabled bool) {
	debugEnabled = enabled
}

// Info logs an informational message (always shown)
func Info(subsystem, format string, args ...any) {
	log.Printf("[%s] "+format, append([]any{subsystem}, args...)...)
}

// Debug logs a debug message (only shown if DINER_DEBUG=true)
func Debug(subsystem, format string, args ...any) {
	if debugEnabled {
		log.Printf("[%s] "+format, append([]any{subsystem}, args...)...)
	}
}

// Truncate shortens free text (reflections, summaries) for one-line logs
func Truncate(s string, maxLen int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}
