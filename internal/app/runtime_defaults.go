package app

import (
	"fmt"
	"strings"

	"github.com/roastery/accounts/pkg/crypto"
)

const jwtSecretBytes = 32

// ApplyRuntimeDefaults ensures the signing secret is populated even when no
// configuration is supplied. A generated secret lives only for the process
// lifetime, so tokens issued against it stop validating on restart.
// It returns a map describing which keys were generated so callers can log
// the event without exposing values.
func ApplyRuntimeDefaults(cfg *Config) (map[string]bool, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	generated := make(map[string]bool)

	if strings.TrimSpace(cfg.Auth.JWT.Secret) == "" {
		secret, err := crypto.GenerateToken(jwtSecretBytes)
		if err != nil {
			return nil, fmt.Errorf("generate jwt secret: %w", err)
		}
		cfg.Auth.JWT.Secret = secret
		generated["auth.jwt.secret"] = true
	}

	return generated, nil
}
