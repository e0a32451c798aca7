// Package config holds the environment-variable plumbing shared by the
// command packages.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// ParseEnv fills target from the GOLDENPIE_* environment variables named in
// its env struct tags. Fields without a matching variable keep their
// envDefault value.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}
