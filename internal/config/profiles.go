package config

import (
	"embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed profiles/*.yaml
var profileFS embed.FS

// profilePreset captures the pool/rate-limit/bulk defaults one named
// profile recommends. Run configuration still wins over these: they
// only seed viper's default layer, so any value the config file or an
// environment override sets explicitly takes precedence.
type profilePreset struct {
	Pool struct {
		Strategy           string `yaml:"strategy"`
		MaxIdleTime        string `yaml:"max_idle_time"`
		MaxLifetime        string `yaml:"max_lifetime"`
		ValidationInterval string `yaml:"validation_interval"`
	} `yaml:"pool"`
	RateLimit struct {
		Preset                         string  `yaml:"preset"`
		DecreaseFactor                 float64 `yaml:"decrease_factor"`
		ConsecutiveSuccessesToIncrease int     `yaml:"consecutive_successes_to_increase"`
	} `yaml:"rate_limit"`
	Bulk struct {
		BatchSize          int `yaml:"batch_size"`
		MaxParallelBatches int `yaml:"max_parallel_batches"`
	} `yaml:"bulk"`
}

// loadProfilePreset reads and parses the embedded profile document
// named name ("conservative", "balanced", or "aggressive").
func loadProfilePreset(name string) (profilePreset, error) {
	var preset profilePreset
	data, err := profileFS.ReadFile("profiles/" + name + ".yaml")
	if err != nil {
		return preset, fmt.Errorf("config: unknown profile %q", name)
	}
	if err := yaml.Unmarshal(data, &preset); err != nil {
		return preset, fmt.Errorf("config: parse profile %q: %w", name, err)
	}
	return preset, nil
}
