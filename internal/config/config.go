package config

import (
	"os"
	"strings"
)

// Config carries every runtime knob for the actions API. Values come from the
// environment; a .env file is loaded by the caller before FromEnv runs.
type Config struct {
	HTTPAddr string

	// DatabasePath selects the sqlite backend when non-empty. An empty value
	// runs the service purely in memory.
	DatabasePath string

	// FallbackToMemory lets the service come up on the in-memory backend when
	// sqlite initialization fails. Set DB_FALLBACK_TO_MEMORY=0 to make such a
	// failure fatal instead.
	FallbackToMemory bool

	OrganizerAPIKey string

	LogLevel   string
	LogFile    string
	LogConsole bool
}

func FromEnv() Config {
	var c Config

	c.HTTPAddr = strings.TrimSpace(os.Getenv("HTTP_ADDR"))
	if c.HTTPAddr == "" {
		c.HTTPAddr = ":3001"
	}

	c.DatabasePath = strings.TrimSpace(os.Getenv("DATABASE_PATH"))
	c.FallbackToMemory = os.Getenv("DB_FALLBACK_TO_MEMORY") != "0"

	c.OrganizerAPIKey = strings.TrimSpace(os.Getenv("ORGANIZER_API_KEY"))
	if c.OrganizerAPIKey == "" {
		c.OrganizerAPIKey = "dev-organizer-key"
	}

	c.LogLevel = strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	c.LogFile = strings.TrimSpace(os.Getenv("LOG_FILE"))
	c.LogConsole = os.Getenv("LOG_CONSOLE") != "0"

	return c
}
