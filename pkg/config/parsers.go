package config

import (
	"flag"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

// Flags holds parsed command-line flag values and which were set.
type Flags struct {
	Addr   string
	DB     string
	Config string
	Set    map[string]bool
}

// ParseConfigFlags parses command-line flags and returns them as a Flags struct.
func ParseConfigFlags() Flags {
	addrPtr := flag.String("addr", ":8080", "HTTP listen address")
	dbPtr := flag.String("db", "./data", "Pebble DB path")
	cfgPtr := flag.String("config", "./config.yaml", "Path to config file")
	flag.Parse()
	setFlags := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = true })
	return Flags{Addr: *addrPtr, DB: *dbPtr, Config: *cfgPtr, Set: setFlags}
}

// ResolveConfigPath picks the config path: an explicitly set flag wins, then
// TALKO_CONFIG, then the flag default if the file exists.
func ResolveConfigPath(flagVal string, flagSet bool) string {
	if flagSet {
		return flagVal
	}
	if v := os.Getenv("TALKO_CONFIG"); v != "" {
		return v
	}
	if _, err := os.Stat(flagVal); err == nil {
		return flagVal
	}
	return ""
}

func parseList(v string) []string {
	if v == "" {
		return nil
	}
	parts := []string{}
	for _, p := range strings.Split(v, ",") {
		if s := strings.TrimSpace(p); s != "" {
			parts = append(parts, s)
		}
	}
	return parts
}

// applyEnv overlays TALKO_* environment variables onto cfg. Env wins over
// file values; flags (applied later in main) win over both.
func applyEnv(cfg *Config) {
	if v := os.Getenv("TALKO_ADDR"); v != "" {
		if h, p, err := net.SplitHostPort(v); err == nil {
			cfg.Server.Address = h
			if pi, err := strconv.Atoi(p); err == nil {
				cfg.Server.Port = pi
			}
		} else {
			cfg.Server.Address = v
		}
	}
	if v := os.Getenv("TALKO_DB_PATH"); v != "" {
		cfg.Server.DBPath = v
	}
	if v := os.Getenv("TALKO_HEALTH_PORT"); v != "" {
		if pi, err := strconv.Atoi(v); err == nil {
			cfg.Server.HealthPort = pi
		}
	}
	if v := os.Getenv("TALKO_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("TALKO_TYPING_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Presence.TypingTTL = Duration(d)
		}
	}
	if ks := parseList(os.Getenv("TALKO_BACKEND_KEYS")); len(ks) > 0 {
		cfg.Security.APIKeys.Backend = ks
	}
	if ks := parseList(os.Getenv("TALKO_ADMIN_KEYS")); len(ks) > 0 {
		cfg.Security.APIKeys.Admin = ks
	}
	if v := os.Getenv("TALKO_RATE_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Security.RateLimit.RPS = f
		}
	}
	if v := os.Getenv("TALKO_RETENTION_ENABLED"); v != "" {
		cfg.Retention.Enabled = v == "1" || strings.EqualFold(v, "true")
	}
}
