// Package assistant – config.go defines all configuration structures
// for the BookClaw booking assistant.
package assistant

import (
	"time"

	"github.com/jholhewres/bookclaw/pkg/bookclaw/autosend"
	"github.com/jholhewres/bookclaw/pkg/bookclaw/channels/whatsapp"
)

// Config holds all assistant configuration.
type Config struct {
	// Bot configures message filtering and logging behavior.
	Bot BotConfig `yaml:"bot"`

	// AutoReply configures keyword and default replies.
	AutoReply AutoReplyConfig `yaml:"auto_reply"`

	// AI configures the LLM-driven reply path.
	AI AIConfig `yaml:"ai"`

	// Memory configures per-conversation history.
	Memory MemoryConfig `yaml:"memory"`

	// Calendar configures the Google Calendar integration.
	Calendar CalendarConfig `yaml:"calendar"`

	// Services is the bookable service catalog, keyed by service id.
	Services map[string]ServiceConfig `yaml:"services"`

	// AutoSend configures scheduled outbound messages.
	AutoSend autosend.Config `yaml:"auto_send"`

	// WhatsApp is the transport configuration.
	WhatsApp whatsapp.Config `yaml:"whatsapp"`

	// Logging configures log output.
	Logging LoggingConfig `yaml:"logging"`
}

// BotConfig configures inbound message filtering.
type BotConfig struct {
	// LogMessages logs every inbound message with sender info.
	LogMessages bool `yaml:"log_messages"`

	// IgnoreOwnMessages skips messages sent by the bot's own account.
	IgnoreOwnMessages bool `yaml:"ignore_own_messages"`

	// IgnoreBroadcast skips status broadcast messages.
	IgnoreBroadcast bool `yaml:"ignore_broadcast"`

	// IgnoreGroups skips group messages entirely. When false, group
	// messages are still only processed when the bot is mentioned or
	// the quoted message is the bot's.
	IgnoreGroups bool `yaml:"ignore_groups"`

	// DedupWindow is how often the processed-message cache is cleared.
	DedupWindow time.Duration `yaml:"dedup_window"`
}

// AutoReplyConfig configures keyword and default replies.
type AutoReplyConfig struct {
	// Enabled turns replying on/off. When off, messages are only logged.
	Enabled bool `yaml:"enabled"`

	// Keywords maps lowercase keywords to canned replies. The first
	// matching keyword (in sorted order) wins.
	Keywords map[string]string `yaml:"keywords"`

	// UseDefaultReply sends DefaultReply when nothing else matched.
	UseDefaultReply bool `yaml:"use_default_reply"`

	// DefaultReply is the fallback reply text.
	DefaultReply string `yaml:"default_reply"`
}

// AIConfig configures the LLM reply path.
type AIConfig struct {
	// Enabled turns the AI path on/off.
	Enabled bool `yaml:"enabled"`

	// Model is the LLM model to use (e.g. "gpt-4o-mini").
	Model string `yaml:"model"`

	// BaseURL is the OpenAI-compatible API base URL.
	BaseURL string `yaml:"base_url"`

	// APIKey is the API key. Prefer the OS keyring or environment
	// variables over a plaintext value here.
	APIKey string `yaml:"api_key"`

	// SystemPrompt is the system instruction text. It is synthesized
	// into every request and never persisted to history.
	SystemPrompt string `yaml:"system_prompt"`

	// MaxLoops bounds the tool-calling loop per message (default 5).
	MaxLoops int `yaml:"max_loops"`

	// FallbackToDefault falls back to the keyword/default reply path
	// when the LLM call fails. When false, the message is dropped.
	FallbackToDefault bool `yaml:"fallback_to_default"`

	// ExhaustedReply is sent when the tool-calling loop runs out of
	// iterations without a final text response. Empty = send nothing.
	ExhaustedReply string `yaml:"exhausted_reply"`
}

// MemoryConfig configures per-conversation history.
type MemoryConfig struct {
	// Enabled turns history on/off.
	Enabled bool `yaml:"enabled"`

	// Limit is the max turns kept per conversation.
	Limit int `yaml:"limit"`

	// Store is the backing store type ("memory" or "sqlite").
	Store string `yaml:"store"`

	// Path is the database file path (for sqlite).
	Path string `yaml:"path"`
}

// CalendarConfig configures the Google Calendar integration.
type CalendarConfig struct {
	// Enabled turns the calendar tools on/off.
	Enabled bool `yaml:"enabled"`

	// CredentialsPath is the service-account key file path.
	CredentialsPath string `yaml:"credentials_path"`

	// CalendarID is the target calendar.
	CalendarID string `yaml:"calendar_id"`
}

// ServiceConfig describes one bookable service.
type ServiceConfig struct {
	// Name is the human-readable service name.
	Name string `yaml:"name"`

	// DurationMinutes is the appointment length.
	DurationMinutes int `yaml:"duration_minutes"`

	// Price is the service price in Currency units.
	Price int `yaml:"price"`

	// Currency is the price currency code (default "LKR").
	Currency string `yaml:"currency"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	// Level is the log level ("debug", "info", "warn", "error").
	Level string `yaml:"level"`

	// Format is the log format ("text", "json").
	Format string `yaml:"format"`
}

// DefaultConfig returns the default assistant configuration.
func DefaultConfig() *Config {
	return &Config{
		Bot: BotConfig{
			LogMessages:       true,
			IgnoreOwnMessages: true,
			IgnoreBroadcast:   true,
			IgnoreGroups:      false,
			DedupWindow:       time.Hour,
		},
		AutoReply: AutoReplyConfig{
			Enabled:         true,
			Keywords:        map[string]string{},
			UseDefaultReply: false,
		},
		AI: AIConfig{
			Enabled:           false,
			Model:             "gpt-4o-mini",
			BaseURL:           "https://api.openai.com/v1",
			SystemPrompt:      "You are a helpful salon booking assistant. Be concise and friendly.",
			MaxLoops:          5,
			FallbackToDefault: true,
		},
		Memory: MemoryConfig{
			Enabled: true,
			Limit:   20,
			Store:   "memory",
			Path:    "./data/history.db",
		},
		Calendar: CalendarConfig{
			Enabled: false,
		},
		Services: map[string]ServiceConfig{},
		WhatsApp: whatsapp.DefaultConfig(),
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
