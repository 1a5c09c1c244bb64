package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// LoadEnv reads a .env file and returns a map of key-value pairs.
// It ignores comments (starting with #) and empty lines.
func LoadEnv(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	env := make(map[string]string)
	scanner := bufio.NewScanner(file)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Remove inline comments
		if idx := strings.Index(value, " #"); idx != -1 {
			value = strings.TrimSpace(value[:idx])
		}

		// Remove quotes if present
		if len(value) >= 2 && ((value[0] == '"' && value[len(value)-1] == '"') ||
			(value[0] == '\'' && value[len(value)-1] == '\'')) {
			value = value[1 : len(value)-1]
		}

		env[key] = value
	}

	return env, scanner.Err()
}

// ApplyEnvOverrides updates the configuration based on environment
// variables. API keys are not handled here; the adapters read them from
// the process environment directly.
func ApplyEnvOverrides(cfg *Config, env map[string]string) {
	// Server
	if val, ok := env["SERVER_PORT"]; ok {
		if port, err := strconv.Atoi(val); err == nil {
			cfg.Server.Port = port
		}
	}

	// Defaults
	if val, ok := env["DEFAULT_ROSTER"]; ok {
		var roster []string
		for _, id := range strings.Split(val, ",") {
			if id = strings.TrimSpace(id); id != "" {
				roster = append(roster, id)
			}
		}
		if len(roster) > 0 {
			cfg.Defaults.Roster = roster
		}
	}
	if val, ok := env["DEFAULT_MAX_TURNS"]; ok {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			cfg.Defaults.MaxTurns = n
		}
	}
	if val, ok := env["SYNTHESIS_BACKEND"]; ok {
		cfg.Defaults.SynthesisBackend = val
	}

	// Backend enablement and timeouts
	for name, bc := range cfg.Backends {
		envKey := fmt.Sprintf("BACKEND_%s_ENABLED", strings.ToUpper(name))
		if val, ok := env[envKey]; ok {
			if boolVal, err := strconv.ParseBool(val); err == nil {
				bc.Enabled = boolVal
				cfg.Backends[name] = bc
			}
		}

		if val, ok := env["BACKEND_TIMEOUT"]; ok {
			if seconds, err := strconv.Atoi(val); err == nil {
				bc.Timeout = time.Duration(seconds) * time.Second
				cfg.Backends[name] = bc
			} else if duration, err := time.ParseDuration(val); err == nil {
				bc.Timeout = duration
				cfg.Backends[name] = bc
			}
		}
	}
}
