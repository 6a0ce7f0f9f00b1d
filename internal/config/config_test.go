package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromEnv_Defaults(t *testing.T) {
	for _, key := range []string{
		"HTTP_ADDR", "DATABASE_PATH", "DB_FALLBACK_TO_MEMORY",
		"ORGANIZER_API_KEY", "LOG_LEVEL", "LOG_FILE", "LOG_CONSOLE",
	} {
		t.Setenv(key, "")
	}

	c := FromEnv()
	assert.Equal(t, ":3001", c.HTTPAddr)
	assert.Empty(t, c.DatabasePath)
	assert.True(t, c.FallbackToMemory)
	assert.Equal(t, "dev-organizer-key", c.OrganizerAPIKey)
	assert.Equal(t, "info", c.LogLevel)
	assert.True(t, c.LogConsole)
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("HTTP_ADDR", " :8080 ")
	t.Setenv("DATABASE_PATH", "/tmp/events.db")
	t.Setenv("DB_FALLBACK_TO_MEMORY", "0")
	t.Setenv("ORGANIZER_API_KEY", "prod-key")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_CONSOLE", "0")

	c := FromEnv()
	assert.Equal(t, ":8080", c.HTTPAddr)
	assert.Equal(t, "/tmp/events.db", c.DatabasePath)
	assert.False(t, c.FallbackToMemory)
	assert.Equal(t, "prod-key", c.OrganizerAPIKey)
	assert.Equal(t, "debug", c.LogLevel)
	assert.False(t, c.LogConsole)
}
