package config

import (
	"os"
	"strconv"
	"strings"
)

// Config holds all configuration for the dumper
type Config struct {
	// File paths
	InputFile string
	DumpDir   string

	// Parse options
	InfoOnly     bool
	TagScanRange uint32

	// Demux options
	EnabledTracks []int
	QueueDepth    uint32
	SubSong       int
	MaxFrames     int

	// User options
	UseColors bool
	QuietMode bool
}

// parseUintEnv parses an unsigned integer from an environment variable,
// falling back to the given default when unset or invalid
func parseUintEnv(envKey string, fallback uint32) uint32 {
	value := strings.TrimSpace(os.Getenv(envKey))
	if value == "" {
		return fallback
	}

	parsed, err := strconv.ParseUint(value, 10, 32)
	if err != nil {
		return fallback
	}
	return uint32(parsed)
}

// NewConfig creates a new configuration with default values
func NewConfig() *Config {
	return &Config{
		TagScanRange: parseUintEnv("MKVDUMP_TAG_SCAN_RANGE", 64*1024),
		QueueDepth:   parseUintEnv("MKVDUMP_QUEUE_DEPTH", 10),
		SubSong:      -1,
		MaxFrames:    0,
		UseColors:    true,
		QuietMode:    false,
	}
}
