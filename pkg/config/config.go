package config

import (
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

type Config struct {
	Port      string      `json:"port"`
	JWTSecret string      `json:"jwt_secret"`
	Log       LogConfig   `json:"log"`
	Redis     RedisConfig `json:"redis"`
	CORS      CORSConfig  `json:"cors"`
	Sync      SyncConfig  `json:"sync"`
	Peer      PeerConfig  `json:"peer"`
}

type LogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"` // "json" or "console"
}

type RedisConfig struct {
	Host     string `json:"host"`
	Port     string `json:"port"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

type CORSConfig struct {
	AllowedOrigins []string `json:"allowed_origins"`
	AllowedMethods []string `json:"allowed_methods"`
	AllowedHeaders []string `json:"allowed_headers"`
}

// SyncConfig holds the playback synchronization tunables shared by peers and the relay
type SyncConfig struct {
	DriftTolerance          time.Duration `json:"drift_tolerance"`           // max position error before a correcting seek
	MinSyncInterval         time.Duration `json:"min_sync_interval"`         // throttle between player reconciliations
	TimeReportInterval      time.Duration `json:"time_report_interval"`      // player position callback period
	ReactionDisplayDuration time.Duration `json:"reaction_display_duration"` // reactions expire after this
	ChatHistoryLimit        int           `json:"chat_history_limit"`
	OutboxSize              int           `json:"outbox_size"`  // queued sends per channel
	SendTimeout             time.Duration `json:"send_timeout"` // per message send deadline
	ReactionsEnabled        bool          `json:"reactions_enabled"`
	ChatEnabled             bool          `json:"chat_enabled"`
	MaxParticipants         int           `json:"max_participants"`
}

// PeerConfig identifies a peer and the relay it talks to
type PeerConfig struct {
	RelayURL      string `json:"relay_url"` // empty means local-only playback
	SessionID     string `json:"session_id"`
	ParticipantID string `json:"participant_id"`
	DisplayName   string `json:"display_name"`
	Token         string `json:"token"` // pre-issued peer token, fetched from the relay when empty
}

func init() {
	if !isGCP {
		err := godotenv.Load()
		if err != nil {
			log.Println("Warning: Could not find or load .env file.")
		}
	}
}

// DefaultSyncConfig returns the tunables used when nothing is configured
func DefaultSyncConfig() SyncConfig {
	return SyncConfig{
		DriftTolerance:          500 * time.Millisecond,
		MinSyncInterval:         100 * time.Millisecond,
		TimeReportInterval:      500 * time.Millisecond,
		ReactionDisplayDuration: 3 * time.Second,
		ChatHistoryLimit:        200,
		OutboxSize:              64,
		SendTimeout:             5 * time.Second,
		ReactionsEnabled:        true,
		ChatEnabled:             true,
		MaxParticipants:         32,
	}
}

// NewConfig loads the relay configuration
func NewConfig() *Config {
	return &Config{
		Port:      getOptionalSecret("PORT", "8081"),
		JWTSecret: getRequiredSecret("JWT_SECRET"),
		Log:       newLogConfig("json"),
		Redis: RedisConfig{
			Host:     getOptionalSecret("REDIS_HOST", "localhost"),
			Port:     getOptionalSecret("REDIS_PORT", "6379"),
			Password: getOptionalSecret("REDIS_PASSWORD", ""),
			DB:       parseIntOr("REDIS_DB", 0),
		},
		CORS: CORSConfig{
			AllowedOrigins: splitList(getOptionalSecret("CORS_ALLOWED_ORIGINS", "*")),
			AllowedMethods: splitList(getOptionalSecret("CORS_ALLOWED_METHODS", "GET,POST,OPTIONS")),
			AllowedHeaders: splitList(getOptionalSecret("CORS_ALLOWED_HEADERS", "*")),
		},
		Sync: newSyncConfig(),
	}
}

// NewPeerConfig loads the configuration of a peer process
func NewPeerConfig() *Config {
	return &Config{
		Log:  newLogConfig("console"),
		Sync: newSyncConfig(),
		Peer: PeerConfig{
			RelayURL:      getOptionalSecret("RELAY_URL", ""),
			SessionID:     getOptionalSecret("SESSION_ID", "lobby"),
			ParticipantID: getOptionalSecret("PARTICIPANT_ID", uuid.NewString()),
			DisplayName:   getOptionalSecret("DISPLAY_NAME", "Anonymous"),
			Token:         getOptionalSecret("RELAY_TOKEN", ""),
		},
	}
}

func newLogConfig(defaultFormat string) LogConfig {
	return LogConfig{
		Level:  getOptionalSecret("LOG_LEVEL", "info"),
		Format: getOptionalSecret("LOG_FORMAT", defaultFormat),
	}
}

func newSyncConfig() SyncConfig {
	def := DefaultSyncConfig()
	return SyncConfig{
		DriftTolerance:          parseDurationOr("SYNC_DRIFT_TOLERANCE", def.DriftTolerance),
		MinSyncInterval:         parseDurationOr("SYNC_MIN_INTERVAL", def.MinSyncInterval),
		TimeReportInterval:      parseDurationOr("SYNC_TIME_REPORT_INTERVAL", def.TimeReportInterval),
		ReactionDisplayDuration: parseDurationOr("SYNC_REACTION_DURATION", def.ReactionDisplayDuration),
		ChatHistoryLimit:        parseIntOr("SYNC_CHAT_HISTORY_LIMIT", def.ChatHistoryLimit),
		OutboxSize:              parseIntOr("SYNC_OUTBOX_SIZE", def.OutboxSize),
		SendTimeout:             parseDurationOr("SYNC_SEND_TIMEOUT", def.SendTimeout),
		ReactionsEnabled:        parseBoolOr("SYNC_REACTIONS_ENABLED", def.ReactionsEnabled),
		ChatEnabled:             parseBoolOr("SYNC_CHAT_ENABLED", def.ChatEnabled),
		MaxParticipants:         parseIntOr("SYNC_MAX_PARTICIPANTS", def.MaxParticipants),
	}
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
