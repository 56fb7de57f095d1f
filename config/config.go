// Package config loads the YAML configuration shared by the gojostm binaries.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/sushant-115/gojostm/core/kernels"
	"github.com/sushant-115/gojostm/core/loop"
	"github.com/sushant-115/gojostm/core/stm"
	"github.com/sushant-115/gojostm/pkg/logger"
	"github.com/sushant-115/gojostm/pkg/telemetry"
	"gopkg.in/yaml.v3"
)

var ErrInvalid = errors.New("invalid configuration")

// Workload selects the kernel a binary runs.
type Workload struct {
	Kernel string         `yaml:"kernel"`
	Params kernels.Params `yaml:",inline"`
	// Verify checks the result against the sequential semantics.
	Verify bool `yaml:"verify"`
}

// Config is the root of the configuration file.
type Config struct {
	Logger    logger.Config    `yaml:"logger"`
	Telemetry telemetry.Config `yaml:"telemetry"`
	STM       stm.Config       `yaml:"stm"`
	Loop      loop.Config      `yaml:"loop"`
	Workload  Workload         `yaml:"workload"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Logger:    logger.DefaultConfig(),
		Telemetry: telemetry.Config{ServiceName: logger.ServiceName, PrometheusAddr: ":9464", TraceSampleRatio: 1},
		STM:       stm.DefaultConfig(),
		Loop:      loop.DefaultConfig(),
		Workload:  Workload{Kernel: "scale", Params: kernels.Params{N: 1 << 16}, Verify: true},
	}
}

// Load reads path over the defaults. Keys missing from the file keep their
// default value.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks every section.
func (c Config) Validate() error {
	if err := c.STM.Validate(); err != nil {
		return err
	}
	if c.Workload.Kernel != "" {
		if _, err := kernels.ByName(c.Workload.Kernel); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalid, err)
		}
	}
	if c.Telemetry.TraceSampleRatio < 0 || c.Telemetry.TraceSampleRatio > 1 {
		return fmt.Errorf("%w: trace_sample_ratio %v outside [0, 1]", ErrInvalid, c.Telemetry.TraceSampleRatio)
	}
	return nil
}
