// SPDX-License-Identifier: MIT
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"lfnmon/pkg/bitint"
)

// Load reads configuration from the YAML file at path. If path is empty it
// searches the default location ("config.yaml"); if no file is found the
// built-in defaults are returned. The final configuration is validated
// before being returned.
func Load(path string) (*Config, error) {
	cfg := NewConfig()

	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		} else {
			if err := cfg.Validate(); err != nil {
				return nil, fmt.Errorf("invalid default configuration: %w", err)
			}
			return cfg, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration for values the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Audio.SampleRate != 0 &&
		(c.Audio.SampleRate < MinSampleRate || c.Audio.SampleRate > MaxSampleRate) {
		return fmt.Errorf("sample rate %.0f outside supported range [%d, %d]",
			c.Audio.SampleRate, MinSampleRate, MaxSampleRate)
	}
	if c.Audio.FramesPerBuffer <= 0 {
		return fmt.Errorf("frames_per_buffer must be positive, got %d", c.Audio.FramesPerBuffer)
	}

	if c.Queue.Capacity <= 0 {
		return fmt.Errorf("queue capacity must be positive, got %d", c.Queue.Capacity)
	}
	switch c.Queue.Policy {
	case PolicyBlock, PolicyDropOldest:
	default:
		return fmt.Errorf("unknown queue policy %q", c.Queue.Policy)
	}
	if c.Queue.ReadTimeout <= 0 {
		return fmt.Errorf("queue read_timeout must be positive, got %s", c.Queue.ReadTimeout)
	}

	if len(c.Monitor.Bands) == 0 {
		return fmt.Errorf("at least one monitored band is required")
	}
	for _, b := range c.Monitor.Bands {
		if b.Name == "" {
			return fmt.Errorf("band with range [%.0f, %.0f] has no name", b.LowHz, b.HighHz)
		}
		if b.LowHz < 0 || b.HighHz <= b.LowHz {
			return fmt.Errorf("band %q has invalid range [%.0f, %.0f]", b.Name, b.LowHz, b.HighHz)
		}
	}
	if c.Monitor.WindowSeconds <= 0 {
		return fmt.Errorf("monitor window_seconds must be positive, got %d", c.Monitor.WindowSeconds)
	}
	if !bitint.IsPowerOfTwo(c.Monitor.NPerSeg) {
		return fmt.Errorf("nperseg must be a power of 2, got %d", c.Monitor.NPerSeg)
	}
	if c.Monitor.NOverlap < 0 || c.Monitor.NOverlap >= c.Monitor.NPerSeg {
		return fmt.Errorf("noverlap %d must be in [0, nperseg)", c.Monitor.NOverlap)
	}

	if c.Recording.SegmentDuration <= 0 {
		return fmt.Errorf("segment_duration must be positive, got %s", c.Recording.SegmentDuration)
	}
	switch c.Recording.BitDepth {
	case 16, 24, 32:
	default:
		return fmt.Errorf("bit_depth must be 16, 24 or 32, got %d", c.Recording.BitDepth)
	}
	if c.Recording.FilterCutoffHz < 0 {
		return fmt.Errorf("filter_cutoff_hz must be non-negative, got %.1f", c.Recording.FilterCutoffHz)
	}
	if c.Recording.FilterChunk <= 0 {
		return fmt.Errorf("filter_chunk must be positive, got %d", c.Recording.FilterChunk)
	}

	return nil
}
