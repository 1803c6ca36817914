package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Load loads the parameter file at path. A missing file is created with the
// defaults; an empty path yields the defaults without touching disk. Unknown
// keys are rejected so typos do not silently fall back to defaults.
func Load(path string) (*File, error) {
	if strings.TrimSpace(path) == "" {
		return defaultFile(), nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	} else if err != nil {
		return nil, err
	}

	cfg := defaultFile()
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		return nil, fmt.Errorf("config: %s has unknown keys: %s", path, strings.Join(keys, ", "))
	}
	if err := ValidateConfig(*cfg); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

func defaultFile() *File {
	return &File{Airdrop: DefaultAirdropParams()}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*File, error) {
	cfg := defaultFile()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *File) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
