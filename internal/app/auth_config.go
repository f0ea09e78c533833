package app

import "github.com/roastery/accounts/internal/auth"

// JWTServiceConfig converts AuthConfig to the auth package representation.
// No TTL is set: issued tokens remain valid until the secret rotates.
func (c AuthConfig) JWTServiceConfig() auth.JWTConfig {
	return auth.JWTConfig{
		Secret: c.JWT.Secret,
		Issuer: c.JWT.Issuer,
	}
}
