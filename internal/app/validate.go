package app

import (
	"fmt"
	"os"

	"talko/pkg/config"
)

// validateConfig performs quick, fail-fast validation of the configuration
// before starting long-running services. Keep checks light so callers can
// surface user-friendly errors.
func validateConfig(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	cert := cfg.Server.TLS.CertFile
	key := cfg.Server.TLS.KeyFile
	if cert != "" {
		if _, err := os.Stat(cert); err != nil {
			return fmt.Errorf("tls cert file not accessible: %w", err)
		}
		if _, err := os.Stat(key); err != nil {
			return fmt.Errorf("tls key file not accessible: %w", err)
		}
	}

	if cfg.Server.HealthPort != 0 && cfg.Server.HealthPort == cfg.Server.Port {
		return fmt.Errorf("server.health_port must differ from server.port")
	}

	return nil
}
