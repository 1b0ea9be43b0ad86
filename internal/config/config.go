// Package config loads runtime settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds everything the daemon needs to boot. Every field maps to a
// FRIDAY_* environment variable except the OpenAI key, which keeps its
// conventional name.
type Config struct {
	// Name is the assistant's own name. It doubles as the bus client id and
	// the topic the daemon subscribes to.
	Name string

	// CommandsPath points at the JSON command catalog.
	CommandsPath string

	Broker Broker
	LLM    LLM

	// ModelPath is the directory holding the offline speech model.
	ModelPath string

	// MusicDir is scanned for .flac files when building playlists.
	MusicDir string

	// WakePhrases are matched against transcript prefixes while idle.
	WakePhrases []string

	// GoodbyePhrases end a conversation when a transcript equals one of them.
	GoodbyePhrases []string

	// Ignore lists transcripts discarded outright (recognizer noise words).
	Ignore []string

	// Voice and EspeakBin select the speech synthesis voice and binary.
	Voice     string
	EspeakBin string

	// AckSound is an optional cue played when the wake phrase is heard.
	AckSound string

	// ShutdownCmd is executed by the "shutdown the system" command.
	ShutdownCmd string

	// Persona seeds the LLM conversation as its system message.
	Persona string
}

type Broker struct {
	Host string
	Port int
}

type LLM struct {
	APIKey    string
	Model     string
	MaxTokens int

	// Host is probed with a plain TCP dial before each request so an
	// offline box fails fast instead of hanging on HTTP.
	Host string

	// Proxy, when set, routes LLM traffic through a SOCKS5 proxy.
	Proxy string

	// Timeout bounds one whole completion request.
	Timeout time.Duration
}

const defaultPersona = `You are Friday, a personal voice assistant modeled after Tony Stark's AI.
Address the user as "boss" or "sir". Answers are spoken aloud, so keep them
to a sentence or two of plain text with no markdown, lists or code.`

// Load reads the env file at path (missing files are fine) and assembles the
// configuration. The only hard requirement is a non-empty assistant name.
func Load(path string) (*Config, error) {
	godotenv.Load(path)

	cfg := &Config{
		Name:         envStr("FRIDAY_NAME", "friday"),
		CommandsPath: envStr("FRIDAY_CONFIG", "commands.json"),
		Broker: Broker{
			Host: envStr("FRIDAY_BROKER_HOST", "localhost"),
			Port: envInt("FRIDAY_BROKER_PORT", 1883),
		},
		LLM: LLM{
			APIKey:    os.Getenv("OPENAI_API_KEY"),
			Model:     envStr("FRIDAY_LLM_MODEL", "gpt-4o-mini"),
			MaxTokens: envInt("FRIDAY_LLM_MAX_TOKENS", 150),
			Host:      envStr("FRIDAY_LLM_HOST", "api.openai.com:443"),
			Proxy:     os.Getenv("FRIDAY_PROXY"),
			Timeout:   time.Duration(envInt("FRIDAY_LLM_TIMEOUT", 120)) * time.Second,
		},
		ModelPath:      envStr("FRIDAY_MODEL_PATH", "model"),
		MusicDir:       envStr("FRIDAY_MUSIC_DIR", defaultMusicDir()),
		WakePhrases:    envList("FRIDAY_WAKE_PHRASES", "hey friday", "friday"),
		GoodbyePhrases: envList("FRIDAY_GOODBYE_PHRASES", "good bye", "goodbye"),
		Ignore:         envList("FRIDAY_IGNORE"),
		Voice:          envStr("FRIDAY_VOICE", "en-us"),
		EspeakBin:      envStr("FRIDAY_ESPEAK", "espeak-ng"),
		AckSound:       os.Getenv("FRIDAY_ACK_SOUND"),
		ShutdownCmd:    envStr("FRIDAY_SHUTDOWN_CMD", "systemctl poweroff"),
		Persona:        envStr("FRIDAY_PERSONA", defaultPersona),
	}

	if cfg.Name == "" {
		return nil, fmt.Errorf("FRIDAY_NAME must not be empty")
	}
	if cfg.Broker.Port <= 0 || cfg.Broker.Port > 65535 {
		return nil, fmt.Errorf("FRIDAY_BROKER_PORT out of range: %d", cfg.Broker.Port)
	}
	if len(cfg.WakePhrases) == 0 {
		return nil, fmt.Errorf("FRIDAY_WAKE_PHRASES must name at least one phrase")
	}
	return cfg, nil
}

// BrokerAddr returns the broker endpoint in host:port form.
func (c *Config) BrokerAddr() string {
	return fmt.Sprintf("%s:%d", c.Broker.Host, c.Broker.Port)
}

func envStr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// envList splits a comma-separated variable, trimming blanks. With the
// variable unset the defaults are returned as-is.
func envList(key string, def ...string) []string {
	v := os.Getenv(key)
	if strings.TrimSpace(v) == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}

func defaultMusicDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "Music"
	}
	return filepath.Join(home, "Music")
}
