package node

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"combinelock.dev/node/consensus"
	"gopkg.in/yaml.v3"
)

type Config struct {
	DataDir  string `yaml:"data_dir" json:"data_dir"`
	LogLevel string `yaml:"log_level" json:"log_level"`
	// MaxCycles is the cycle budget of one transaction check.
	MaxCycles uint64 `yaml:"max_cycles" json:"max_cycles"`
	// Parallel verifies the members of a selected group concurrently.
	Parallel bool `yaml:"parallel" json:"parallel"`
	// CombineLockProgram names the catalog program whose cells are verified
	// as combine locks at the top level.
	CombineLockProgram string `yaml:"combine_lock_program" json:"combine_lock_program"`
}

var allowedLogLevels = map[string]struct{}{
	"debug": {},
	"info":  {},
	"warn":  {},
	"error": {},
}

func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".combinelock"
	}
	return filepath.Join(home, ".combinelock")
}

func DefaultConfig() Config {
	return Config{
		DataDir:            DefaultDataDir(),
		LogLevel:           "info",
		MaxCycles:          consensus.MAX_CYCLES_DEFAULT,
		Parallel:           false,
		CombineLockProgram: ProgramCombineLock,
	}
}

func ValidateConfig(cfg Config) error {
	if strings.TrimSpace(cfg.DataDir) == "" {
		return errors.New("data_dir is required")
	}
	logLevel := strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	if _, ok := allowedLogLevels[logLevel]; !ok {
		return fmt.Errorf("invalid log_level %q", cfg.LogLevel)
	}
	if cfg.MaxCycles == 0 {
		return errors.New("max_cycles must be > 0")
	}
	if _, ok := LookupProgram(cfg.CombineLockProgram); !ok {
		return fmt.Errorf("unknown combine_lock_program %q", cfg.CombineLockProgram)
	}
	return nil
}

// LoadConfig reads a YAML config file over DefaultConfig. Keys absent from
// the file keep their defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	raw, err := readFileByPath(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := ValidateConfig(cfg); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}
