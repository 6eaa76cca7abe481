package config

import "time"

// AuthConfig holds the credential-validation settings.
type AuthConfig struct {
	// AllowAnonymous lets connections without a credential in as a
	// synthetic anonymous principal. Development setups only.
	AllowAnonymous bool `mapstructure:"ALLOW_ANONYMOUS" json:"allow_anonymous"`

	// JWTSecret is the HMAC secret shared with the token issuer.
	JWTSecret string `mapstructure:"JWT_SECRET" json:"-" validate:"omitempty,min=16"`

	Issuer   string        `mapstructure:"ISSUER"   json:"issuer"   validate:"omitempty"`
	Audience string        `mapstructure:"AUDIENCE" json:"audience" validate:"omitempty"`
	Leeway   time.Duration `mapstructure:"LEEWAY"   json:"leeway"   validate:"omitempty"`
}
