// Package config provides centralized configuration management.
// Defaults live here; the environment (optionally seeded from a .env file)
// overrides them, and command-line arguments override the environment.
package config

import (
	"os"
	"strconv"
	"strings"
)

// =============================================================================
// NETWORK CONFIGURATION
// =============================================================================

// DefaultPort is the UDP port peers listen on unless told otherwise.
const DefaultPort = 10101

// NetworkConfig holds peer-to-peer settings.
type NetworkConfig struct {
	ListenPort        int     // UDP port we receive on
	PeerHost          string  // first peer to introduce ourselves to
	PeerPort          int     // that peer's UDP port
	MessagesPerSecond float64 // inbound limit per source address
	Burst             int     // inbound burst per source address
}

// DefaultNetwork returns the default network configuration.
func DefaultNetwork() NetworkConfig {
	return NetworkConfig{
		ListenPort:        DefaultPort,
		PeerPort:          DefaultPort,
		MessagesPerSecond: 500,
		Burst:             1000,
	}
}

// NetworkFromEnv returns network configuration with environment variable overrides.
func NetworkFromEnv() NetworkConfig {
	cfg := DefaultNetwork()

	if p := getEnvInt("PLAYROUND_PORT", 0); validPort(p) {
		cfg.ListenPort = p
	}
	if h := os.Getenv("PLAYROUND_PEER"); h != "" {
		cfg.PeerHost = h
	}
	if p := getEnvInt("PLAYROUND_PEER_PORT", 0); validPort(p) {
		cfg.PeerPort = p
	}
	if r := getEnvFloat("PLAYROUND_NET_RATE", 0); r > 0 {
		cfg.MessagesPerSecond = r
	}
	if b := getEnvInt("PLAYROUND_NET_BURST", 0); b > 0 {
		cfg.Burst = b
	}

	return cfg
}

// =============================================================================
// SIMULATION CONFIGURATION
// =============================================================================

// SimulationConfig holds the tick rate, canvas and scene tunables.
type SimulationConfig struct {
	FPS            int     // simulation ticks per second
	Width          int     // canvas width; the starter scene is laid out in it
	Height         int     // canvas height
	MarkerSpeed    float64 // distance a marker travels per tick
	JunctionRadius float64
	PluckTolerance float64 // marker crossing distance
	HoverTolerance float64 // cursor crossing distance
	MaxMarkers     int
}

// DefaultSimulation returns the stock simulation settings.
func DefaultSimulation() SimulationConfig {
	return SimulationConfig{
		FPS:            30,
		Width:          512,
		Height:         512,
		MarkerSpeed:    10,
		JunctionRadius: 7,
		PluckTolerance: 10,
		HoverTolerance: 5,
		MaxMarkers:     1000,
	}
}

// SimulationFromEnv returns simulation configuration with environment variable overrides.
func SimulationFromEnv() SimulationConfig {
	cfg := DefaultSimulation()

	if fps := getEnvInt("PLAYROUND_FPS", 0); fps > 0 {
		cfg.FPS = fps
	}
	if w := getEnvInt("PLAYROUND_WIDTH", 0); w > 0 {
		cfg.Width = w
	}
	if h := getEnvInt("PLAYROUND_HEIGHT", 0); h > 0 {
		cfg.Height = h
	}
	if s := getEnvFloat("PLAYROUND_MARKER_SPEED", 0); s > 0 {
		cfg.MarkerSpeed = s
	}
	if m := getEnvInt("PLAYROUND_MAX_MARKERS", 0); m > 0 {
		cfg.MaxMarkers = m
	}

	return cfg
}

// =============================================================================
// AUDIO CONFIGURATION
// =============================================================================

// AudioConfig holds audio output settings.
type AudioConfig struct {
	SampleRate int     // Audio sample rate in Hz
	Channels   int     // Number of audio channels (1=mono, 2=stereo)
	BufferSize int     // frames per output callback
	Volume     float64 // Master volume (0.0 to 1.0)
	Enabled    bool
	RecordPath string // WAV file to record to; empty disables recording
}

// DefaultAudio returns the default audio configuration.
func DefaultAudio() AudioConfig {
	return AudioConfig{
		SampleRate: 44100,
		Channels:   2, // Stereo
		BufferSize: 512,
		Volume:     0.5,
		Enabled:    true,
	}
}

// AudioFromEnv returns audio configuration with environment variable overrides.
func AudioFromEnv() AudioConfig {
	cfg := DefaultAudio()

	if sr := getEnvInt("PLAYROUND_SAMPLE_RATE", 0); sr > 0 {
		cfg.SampleRate = sr
	}
	if bs := getEnvInt("PLAYROUND_AUDIO_BUFFER", 0); bs > 0 {
		cfg.BufferSize = bs
	}
	if v := getEnvFloat("PLAYROUND_VOLUME", -1); v >= 0 {
		cfg.Volume = v
	}
	cfg.Enabled = getEnvBool("PLAYROUND_AUDIO", cfg.Enabled)
	if p := os.Getenv("PLAYROUND_RECORD"); p != "" {
		cfg.RecordPath = p
	}

	return cfg
}

// =============================================================================
// SERVER CONFIGURATION
// =============================================================================

// ServerConfig holds HTTP API settings.
type ServerConfig struct {
	Enabled           bool
	Addr              string
	RequestsPerSecond float64 // per client IP
	Burst             int
}

// DefaultServer returns the default server configuration.
func DefaultServer() ServerConfig {
	return ServerConfig{
		Enabled:           true,
		Addr:              "127.0.0.1:8080",
		RequestsPerSecond: 60,
		Burst:             120,
	}
}

// ServerFromEnv returns server configuration with environment variable overrides.
func ServerFromEnv() ServerConfig {
	cfg := DefaultServer()

	if a := os.Getenv("PLAYROUND_HTTP"); a != "" {
		cfg.Addr = a
	}
	cfg.Enabled = getEnvBool("PLAYROUND_HTTP_ENABLED", cfg.Enabled)
	if r := getEnvFloat("PLAYROUND_HTTP_RATE", 0); r > 0 {
		cfg.RequestsPerSecond = r
	}
	if b := getEnvInt("PLAYROUND_HTTP_BURST", 0); b > 0 {
		cfg.Burst = b
	}

	return cfg
}

// =============================================================================
// OBSERVABILITY CONFIGURATION
// =============================================================================

// ObservabilityConfig holds the debug server settings.
type ObservabilityConfig struct {
	Enabled       bool
	Addr          string
	AllowExternal bool
	User          string // basic auth, optional
	Pass          string
}

// DefaultObservability returns the default debug server configuration.
func DefaultObservability() ObservabilityConfig {
	return ObservabilityConfig{
		Enabled: true,
		Addr:    "127.0.0.1:6060",
	}
}

// ObservabilityFromEnv returns debug server configuration with environment variable overrides.
func ObservabilityFromEnv() ObservabilityConfig {
	cfg := DefaultObservability()

	cfg.Enabled = getEnvBool("PLAYROUND_DEBUG_SERVER", cfg.Enabled)
	if a := os.Getenv("PLAYROUND_DEBUG_ADDR"); a != "" {
		cfg.Addr = a
	}
	cfg.AllowExternal = getEnvBool("PLAYROUND_DEBUG_EXTERNAL", false)
	cfg.User = os.Getenv("PLAYROUND_DEBUG_USER")
	cfg.Pass = os.Getenv("PLAYROUND_DEBUG_PASS")

	return cfg
}

// =============================================================================
// JOURNAL CONFIGURATION
// =============================================================================

// JournalConfig holds event journal settings.
type JournalConfig struct {
	Path               string // JSONL file; empty keeps the journal in memory
	MaxEventsPerSec    float64
	MaxEventsPerSource float64
}

// DefaultJournal returns the default journal configuration.
func DefaultJournal() JournalConfig {
	return JournalConfig{
		MaxEventsPerSec:    2000,
		MaxEventsPerSource: 200,
	}
}

// JournalFromEnv returns journal configuration with environment variable overrides.
func JournalFromEnv() JournalConfig {
	cfg := DefaultJournal()

	if p := os.Getenv("PLAYROUND_JOURNAL"); p != "" {
		cfg.Path = p
	}
	if r := getEnvFloat("PLAYROUND_JOURNAL_RATE", 0); r > 0 {
		cfg.MaxEventsPerSec = r
	}

	return cfg
}

// =============================================================================
// LOG CONFIGURATION
// =============================================================================

// LogConfig holds logger settings.
type LogConfig struct {
	Development bool
	Level       string
}

// DefaultLog returns the default logger configuration.
func DefaultLog() LogConfig {
	return LogConfig{Level: "info"}
}

// LogFromEnv returns logger configuration with environment variable overrides.
func LogFromEnv() LogConfig {
	cfg := DefaultLog()

	if l := os.Getenv("LOG_LEVEL"); l != "" {
		cfg.Level = strings.ToLower(l)
	}
	cfg.Development = getEnvBool("LOG_DEVELOPMENT", false)

	return cfg
}

// =============================================================================
// COMPLETE APP CONFIGURATION
// =============================================================================

// AppConfig holds the complete application configuration.
type AppConfig struct {
	Network       NetworkConfig
	Simulation    SimulationConfig
	Audio         AudioConfig
	Server        ServerConfig
	Observability ObservabilityConfig
	Journal       JournalConfig
	Log           LogConfig
}

// Load returns the complete configuration with environment overrides.
func Load() AppConfig {
	return AppConfig{
		Network:       NetworkFromEnv(),
		Simulation:    SimulationFromEnv(),
		Audio:         AudioFromEnv(),
		Server:        ServerFromEnv(),
		Observability: ObservabilityFromEnv(),
		Journal:       JournalFromEnv(),
		Log:           LogFromEnv(),
	}
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

func validPort(p int) bool {
	return p > 0 && p < 65536
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}
