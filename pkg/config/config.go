// PiBear - LINE companion bot with memory and scheduled pushes
// License: MIT
//
// Copyright (c) 2026 PiBear contributors

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// FlexibleStringSlice is a []string that also accepts JSON numbers,
// so allow_from can contain both "123" and 123.
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}

	var raw []interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	result := make([]string, 0, len(raw))
	for _, v := range raw {
		switch val := v.(type) {
		case string:
			result = append(result, val)
		case float64:
			result = append(result, fmt.Sprintf("%.0f", val))
		default:
			result = append(result, fmt.Sprintf("%v", val))
		}
	}
	*f = result
	return nil
}

type Config struct {
	Bot       BotConfig       `json:"bot"`
	Channels  ChannelsConfig  `json:"channels"`
	Providers ProvidersConfig `json:"providers"`
	Gateway   GatewayConfig   `json:"gateway"`
	Tools     ToolsConfig     `json:"tools"`
	Memory    MemoryConfig    `json:"memory"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Usage     UsageConfig     `json:"usage"`
	Files     FilesConfig     `json:"files"`
	Log       LogConfig       `json:"log"`
	mu        sync.RWMutex
}

type BotConfig struct {
	Workspace      string  `json:"workspace" env:"PIBEAR_BOT_WORKSPACE"`
	Timezone       string  `json:"timezone" env:"PIBEAR_BOT_TIMEZONE"`
	DefaultCity    string  `json:"default_city" env:"PIBEAR_BOT_DEFAULT_CITY"`
	EmotionAIRatio float64 `json:"emotion_ai_ratio" env:"PIBEAR_BOT_EMOTION_AI_RATIO"`
}

type ChannelsConfig struct {
	Line    LineConfig    `json:"line"`
	Discord DiscordConfig `json:"discord"`
}

type LineConfig struct {
	Enabled            bool                `json:"enabled" env:"PIBEAR_CHANNELS_LINE_ENABLED"`
	ChannelSecret      string              `json:"channel_secret" env:"PIBEAR_CHANNELS_LINE_CHANNEL_SECRET"`
	ChannelAccessToken string              `json:"channel_access_token" env:"PIBEAR_CHANNELS_LINE_CHANNEL_ACCESS_TOKEN"`
	AllowFrom          FlexibleStringSlice `json:"allow_from" env:"PIBEAR_CHANNELS_LINE_ALLOW_FROM"`
}

type DiscordConfig struct {
	Enabled   bool                `json:"enabled" env:"PIBEAR_CHANNELS_DISCORD_ENABLED"`
	Token     string              `json:"token" env:"PIBEAR_CHANNELS_DISCORD_TOKEN"`
	AllowFrom FlexibleStringSlice `json:"allow_from" env:"PIBEAR_CHANNELS_DISCORD_ALLOW_FROM"`
}

type ProvidersConfig struct {
	// Source selects the generation backend: ollama, gemini or openai.
	Source         string       `json:"ai_model_source" env:"PIBEAR_PROVIDERS_AI_MODEL_SOURCE"`
	TimeoutSeconds int          `json:"timeout_seconds" env:"PIBEAR_PROVIDERS_TIMEOUT_SECONDS"`
	Ollama         OllamaConfig `json:"ollama"`
	Gemini         GeminiConfig `json:"gemini"`
	OpenAI         OpenAIConfig `json:"openai"`
}

type OllamaConfig struct {
	APIBase string `json:"api_base" env:"PIBEAR_PROVIDERS_OLLAMA_API_BASE"`
	Model   string `json:"model" env:"PIBEAR_PROVIDERS_OLLAMA_MODEL"`
}

type GeminiConfig struct {
	APIKey  string `json:"api_key" env:"PIBEAR_PROVIDERS_GEMINI_API_KEY"`
	APIBase string `json:"api_base" env:"PIBEAR_PROVIDERS_GEMINI_API_BASE"`
	Model   string `json:"model" env:"PIBEAR_PROVIDERS_GEMINI_MODEL"`
}

type OpenAIConfig struct {
	APIKey  string `json:"api_key" env:"PIBEAR_PROVIDERS_OPENAI_API_KEY"`
	APIBase string `json:"api_base" env:"PIBEAR_PROVIDERS_OPENAI_API_BASE"`
	Model   string `json:"model" env:"PIBEAR_PROVIDERS_OPENAI_MODEL"`
	Proxy   string `json:"proxy,omitempty" env:"PIBEAR_PROVIDERS_OPENAI_PROXY"`
}

type GatewayConfig struct {
	Host string `json:"host" env:"PIBEAR_GATEWAY_HOST"`
	Port int    `json:"port" env:"PIBEAR_GATEWAY_PORT"`
	// PublicBaseURL is the externally reachable address (an ngrok tunnel in
	// development) used to build links to files under ImageDir.
	PublicBaseURL string `json:"public_base_url" env:"PIBEAR_GATEWAY_PUBLIC_BASE_URL"`
	ImageDir      string `json:"image_dir" env:"PIBEAR_GATEWAY_IMAGE_DIR"`
	// BusSize is the buffer of the inbound and outbound message queues.
	BusSize int `json:"bus_size" env:"PIBEAR_GATEWAY_BUS_SIZE"`
}

type WeatherConfig struct {
	APIKey         string `json:"api_key" env:"PIBEAR_TOOLS_WEATHER_API_KEY"`
	APIBase        string `json:"api_base" env:"PIBEAR_TOOLS_WEATHER_API_BASE"`
	Attempts       int    `json:"attempts" env:"PIBEAR_TOOLS_WEATHER_ATTEMPTS"`
	TimeoutSeconds int    `json:"timeout_seconds" env:"PIBEAR_TOOLS_WEATHER_TIMEOUT_SECONDS"`
}

type GeocodeConfig struct {
	APIBase           string  `json:"api_base" env:"PIBEAR_TOOLS_GEOCODE_API_BASE"`
	UserAgent         string  `json:"user_agent" env:"PIBEAR_TOOLS_GEOCODE_USER_AGENT"`
	RequestsPerSecond float64 `json:"requests_per_second" env:"PIBEAR_TOOLS_GEOCODE_REQUESTS_PER_SECOND"`
}

type PokemonConfig struct {
	APIBase string `json:"api_base" env:"PIBEAR_TOOLS_POKEMON_API_BASE"`
	MaxID   int    `json:"max_id" env:"PIBEAR_TOOLS_POKEMON_MAX_ID"`
}

type ToolsConfig struct {
	Weather WeatherConfig `json:"weather"`
	Geocode GeocodeConfig `json:"geocode"`
	Pokemon PokemonConfig `json:"pokemon"`
}

type MemoryConfig struct {
	Dir        string `json:"dir" env:"PIBEAR_MEMORY_DIR"`
	MaxHistory int    `json:"max_history" env:"PIBEAR_MEMORY_MAX_HISTORY"`
}

type SchedulerConfig struct {
	ScheduleFile          string `json:"schedule_file" env:"PIBEAR_SCHEDULER_SCHEDULE_FILE"`
	BirthdayIntervalHours int    `json:"birthday_interval_hours" env:"PIBEAR_SCHEDULER_BIRTHDAY_INTERVAL_HOURS"`
	WatchSchedule         bool   `json:"watch_schedule" env:"PIBEAR_SCHEDULER_WATCH_SCHEDULE"`
	DefaultChannel        string `json:"default_channel" env:"PIBEAR_SCHEDULER_DEFAULT_CHANNEL"`
}

type UsageConfig struct {
	// Backend is "file" (comma-separated log) or "sqlite".
	Backend    string `json:"backend" env:"PIBEAR_USAGE_BACKEND"`
	Path       string `json:"path" env:"PIBEAR_USAGE_PATH"`
	SQLitePath string `json:"sqlite_path" env:"PIBEAR_USAGE_SQLITE_PATH"`
}

type FilesConfig struct {
	Persona  string `json:"persona" env:"PIBEAR_FILES_PERSONA"`
	Profiles string `json:"profiles" env:"PIBEAR_FILES_PROFILES"`
	Cities   string `json:"cities" env:"PIBEAR_FILES_CITIES"`
	Titles   string `json:"titles" env:"PIBEAR_FILES_TITLES"`
	Emotions string `json:"emotions" env:"PIBEAR_FILES_EMOTIONS"`
	Tones    string `json:"tones" env:"PIBEAR_FILES_TONES"`
	Images   string `json:"images" env:"PIBEAR_FILES_IMAGES"`
}

type LogConfig struct {
	Level string `json:"level" env:"PIBEAR_LOG_LEVEL"`
	File  string `json:"file" env:"PIBEAR_LOG_FILE"`
}

func DefaultConfig() *Config {
	return &Config{
		Bot: BotConfig{
			Workspace:      "~/.pibear/workspace",
			Timezone:       "Asia/Taipei",
			DefaultCity:    "臺北市",
			EmotionAIRatio: 0.9,
		},
		Channels: ChannelsConfig{
			Line: LineConfig{
				Enabled:   true,
				AllowFrom: FlexibleStringSlice{},
			},
			Discord: DiscordConfig{
				Enabled:   false,
				AllowFrom: FlexibleStringSlice{},
			},
		},
		Providers: ProvidersConfig{
			Source:         "ollama",
			TimeoutSeconds: 120,
			Ollama: OllamaConfig{
				APIBase: "http://localhost:11434",
				Model:   "gemma:2b",
			},
			Gemini: GeminiConfig{
				APIBase: "https://generativelanguage.googleapis.com/v1",
				Model:   "gemini-1.5-flash",
			},
			OpenAI: OpenAIConfig{
				APIBase: "https://openrouter.ai/api/v1",
				Model:   "qwen/qwen2.5-vl-72b-instruct:free",
			},
		},
		Gateway: GatewayConfig{
			Host:     "0.0.0.0",
			Port:     5050,
			ImageDir: "Pic",
			BusSize:  100,
		},
		Tools: ToolsConfig{
			Weather: WeatherConfig{
				APIBase:        "https://opendata.cwa.gov.tw/api",
				Attempts:       3,
				TimeoutSeconds: 5,
			},
			Geocode: GeocodeConfig{
				APIBase:           "https://nominatim.openstreetmap.org",
				UserAgent:         "LineBotDemo/1.0",
				RequestsPerSecond: 1,
			},
			Pokemon: PokemonConfig{
				APIBase: "https://pokeapi.co/api/v2",
				MaxID:   1010,
			},
		},
		Memory: MemoryConfig{
			Dir:        "user_log",
			MaxHistory: 20,
		},
		Scheduler: SchedulerConfig{
			ScheduleFile:          "schedule.json",
			BirthdayIntervalHours: 12,
			WatchSchedule:         true,
			DefaultChannel:        "line",
		},
		Usage: UsageConfig{
			Backend:    "file",
			Path:       "user_usage.log",
			SQLitePath: "state/usage.db",
		},
		Files: FilesConfig{
			Persona:  "system_prompt.txt",
			Profiles: "user_profiles.json",
			Cities:   "user_cities.json",
			Titles:   "titles.json",
			Emotions: "emotions.json",
			Tones:    "descriptions.txt",
			Images:   "url.txt",
		},
		Log: LogConfig{
			Level: "info",
			File:  "app.log",
		},
	}
}

// LoadDotEnv loads .env.local and .env from dir into the process
// environment. Variables that are already set win.
func LoadDotEnv(dir string) error {
	for _, name := range []string{".env.local", ".env"} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
	}
	return nil
}

func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func SaveConfig(path string, cfg *Config) error {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

func (c *Config) WorkspacePath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return expandHome(c.Bot.Workspace)
}

// ResolvePath anchors a relative file setting at the workspace directory.
func (c *Config) ResolvePath(p string) string {
	p = expandHome(strings.TrimSpace(p))
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.WorkspacePath(), p)
}

// Location returns the configured time zone, falling back to the process
// local zone when the name is empty or unknown.
func (c *Config) Location() *time.Location {
	c.mu.RLock()
	name := strings.TrimSpace(c.Bot.Timezone)
	c.mu.RUnlock()
	if name == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.Local
	}
	return loc
}

func expandHome(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		home, _ := os.UserHomeDir()
		if len(path) > 1 && path[1] == '/' {
			return home + path[1:]
		}
		return home
	}
	return path
}
