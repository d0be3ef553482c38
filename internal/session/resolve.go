package session

import "github.com/matheus3301/duochat/internal/config"

const DefaultSessionName = "main"

// Settings is the resolved configuration of one session.
type Settings struct {
	Name     string
	RelayURL string
	DBPath   string
}

// Resolve determines the active session name using precedence:
// 1. flagOverride (--session flag)
// 2. config.toml default_session
// 3. "main"
func Resolve(flagOverride string) string {
	return resolve(flagOverride, loadConfig())
}

// ResolveSettings resolves the session name the same way as Resolve and fills
// in the relay URL and database path from config, falling back to defaults.
func ResolveSettings(flagOverride string) Settings {
	cfg := loadConfig()
	s := Settings{
		Name:     resolve(flagOverride, cfg),
		RelayURL: cfg.Relay(),
		DBPath:   DefaultDBPath(),
	}
	if cfg != nil && cfg.DBPath != "" {
		s.DBPath = cfg.DBPath
	}
	return s
}

func resolve(flagOverride string, cfg *config.Config) string {
	if flagOverride != "" {
		return flagOverride
	}
	if cfg != nil && cfg.DefaultSession != "" {
		return cfg.DefaultSession
	}
	return DefaultSessionName
}

func loadConfig() *config.Config {
	cfg, err := config.Load(ConfigPath())
	if err != nil {
		return nil
	}
	return cfg
}
