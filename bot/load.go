package bot

import (
	"fmt"
	"os"
	"regexp"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${VAR} references in a loaded YAML document,
// mirroring config/env.go's expandEnvVars braced form (the bot package
// only needs the plain-braced case: bot-package authors reference secrets
// as `${OPENAI_API_KEY}`, never the `:-default` form).
var envVarPattern = regexp.MustCompile(`\$\{([A-Z_][A-Z0-9_]*)\}`)

func expandEnvVars(raw []byte) []byte {
	return envVarPattern.ReplaceAllFunc(raw, func(match []byte) []byte {
		name := envVarPattern.FindSubmatch(match)[1]
		return []byte(os.Getenv(string(name)))
	})
}

// LoadEnvFiles loads .env.local then .env into the process environment,
// in priority order, the same precedence config.LoadEnvFiles uses.
func LoadEnvFiles() error {
	for _, file := range []string{".env.local", ".env"} {
		if err := godotenv.Load(file); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("bot: load %s: %w", file, err)
		}
	}
	return nil
}

// Load parses a bot-package YAML document: environment overlay, parse,
// defaults, then validation, mirroring config.LoadConfig's sequence.
func Load(raw []byte) (*Config, error) {
	raw = expandEnvVars(raw)

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("bot: parse yaml: %w", err)
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("bot: invalid config: %w", err)
	}
	return &cfg, nil
}

// LoadFile reads path and parses it as a bot-package document.
func LoadFile(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("bot: read %s: %w", path, err)
	}
	return Load(raw)
}
