package config

// PolicyConfig holds access policy settings.
type PolicyConfig struct {
	Blacklist struct {
		UserIDs []string `mapstructure:"USER_IDS" json:"user_ids" validate:"omitempty,dive,min=1"`
	} `mapstructure:"BLACKLIST"`
	Whitelist struct {
		UserIDs []string `mapstructure:"USER_IDS" json:"user_ids" validate:"omitempty,dive,min=1"`
	} `mapstructure:"WHITELIST"`
}
