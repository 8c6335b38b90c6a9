package vm

import (
	"encoding/json"
	"fmt"
	"os"
)

// Config holds the geometry of a simulated memory system.
type Config struct {
	// NumFrames is the number of physical page frames. Default: 128.
	NumFrames int `json:"num_frames"`

	// NumPages is the number of virtual pages per process. Default: 128.
	NumPages int `json:"num_pages"`

	// PTEsPerDirectory is the number of entries in each second-level
	// directory. Default: 16.
	PTEsPerDirectory int `json:"ptes_per_directory"`
}

// DefaultConfig returns a Config with the default geometry.
func DefaultConfig() Config {
	return Config{
		NumFrames:        128,
		NumPages:         128,
		PTEsPerDirectory: 16,
	}
}

// LoadConfig loads a Config from a JSON file. Fields absent from the file
// keep their default values.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read vm config file: %w", err)
	}

	config := DefaultConfig()
	if err := json.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("failed to parse vm config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return Config{}, err
	}

	return config, nil
}

// Validate checks that the geometry is usable.
func (c Config) Validate() error {
	if c.NumFrames <= 0 {
		return fmt.Errorf("invalid vm config: num_frames must be positive, got %d",
			c.NumFrames)
	}
	if c.NumPages <= 0 {
		return fmt.Errorf("invalid vm config: num_pages must be positive, got %d",
			c.NumPages)
	}
	if c.PTEsPerDirectory <= 0 {
		return fmt.Errorf(
			"invalid vm config: ptes_per_directory must be positive, got %d",
			c.PTEsPerDirectory)
	}
	return nil
}

// numDirectories returns the number of first-level slots needed to cover
// NumPages.
func (c Config) numDirectories() int {
	return (c.NumPages + c.PTEsPerDirectory - 1) / c.PTEsPerDirectory
}
