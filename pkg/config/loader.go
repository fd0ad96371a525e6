package config

import (
	"fmt"

	"github.com/caarlos0/env/v10"
)

// Load fills the provided struct from environment variables using its `env`
// tags. Defaults come from `envDefault` tags, so a zero environment still
// yields a runnable configuration.
//
// Example:
//
//	type Config struct {
//	    Port           int    `env:"STOREFRONT_HTTP_PORT" envDefault:"8080"`
//	    BackendBaseURL string `env:"BACKEND_BASE_URL" envDefault:"http://localhost:9000"`
//	}
func Load(cfg any) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}
