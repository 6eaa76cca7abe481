package config

import "time"

// Gateway holds the WebSocket listener settings.
type Gateway struct {
	Name           string           `mapstructure:"NAME"            json:"name"            validate:"required,min=1,max=30"`
	Description    string           `mapstructure:"DESCRIPTION"     json:"description"     validate:"omitempty,max=200"`
	WSAddr         string           `mapstructure:"WS_ADDR"         json:"ws_addr"         validate:"required,wsaddr"`
	PublicURL      string           `mapstructure:"PUBLIC_URL"      json:"public_url"      validate:"omitempty,url"`
	AllowedOrigins []string         `mapstructure:"ALLOWED_ORIGINS" json:"allowed_origins" validate:"omitempty,dive,min=1"`
	IdleTimeout    time.Duration    `mapstructure:"IDLE_TIMEOUT"    json:"idle_timeout"    validate:"required,reasonable_duration"`
	WriteTimeout   time.Duration    `mapstructure:"WRITE_TIMEOUT"   json:"write_timeout"   validate:"required,timeout_duration"`
	SendQueueSize  int              `mapstructure:"SEND_QUEUE_SIZE" json:"send_queue_size" validate:"required,queue_size"`
	Throttling     ThrottlingConfig `mapstructure:"THROTTLING"      json:"throttling"      validate:"required"`
}

// ThrottlingConfig holds rate limiting settings.
type ThrottlingConfig struct {
	RateLimit      RateLimitConfig `mapstructure:"RATE_LIMIT"      json:"rate_limit"`
	MaxFrameLen    int             `mapstructure:"MAX_FRAME_LENGTH" json:"max_frame_length" validate:"required,min=512,max=65536"`
	MaxConnections int             `mapstructure:"MAX_CONNECTIONS" json:"max_connections"  validate:"required,min=1,max=100000"`
	BanThreshold   int             `mapstructure:"BAN_THRESHOLD"   json:"ban_threshold"    validate:"required,min=1,max=1000"`
	BanDuration    int             `mapstructure:"BAN_DURATION"    json:"ban_duration"     validate:"required,min=1,max=86400"`
}

// RateLimitConfig holds rate limiting settings.
type RateLimitConfig struct {
	Enabled         bool          `mapstructure:"ENABLED"             json:"enabled"`
	MaxOpsPerSecond int           `mapstructure:"MAX_OPS_PER_SECOND"  json:"max_ops_per_second" validate:"min=0,max=10000"`
	BurstSize       int           `mapstructure:"BURST_SIZE"          json:"burst_size"         validate:"min=0,max=1000"`
	BanThreshold    int           `mapstructure:"BAN_THRESHOLD"       json:"ban_threshold"      validate:"min=0,max=1000"`
	ProgressiveBan  bool          `mapstructure:"PROGRESSIVE_BAN"     json:"progressive_ban"`
	BanDuration     time.Duration `mapstructure:"BAN_DURATION"        json:"ban_duration"       validate:"reasonable_duration"`
	MaxBanDuration  time.Duration `mapstructure:"MAX_BAN_DURATION"    json:"max_ban_duration"   validate:"reasonable_duration"`
}
