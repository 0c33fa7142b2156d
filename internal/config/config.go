// Package config loads railctl's runtime configuration: listen address,
// topology file, default acceleration, lookahead depth, sensor grace
// period. Adapted from niceyeti/tabular's reinforcement.FromYaml
// (tabular/reinforcement/learning.go): a per-call spf13/viper instance
// reads the file (so config loading never depends on shared global state),
// then the raw result is re-marshalled and decoded with gopkg.in/yaml.v3,
// because — in that repo's own experience — viper's struct-tag
// unmarshalling is lossy for nested time.Duration fields.
package config

import (
	"path/filepath"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is railctl's full runtime configuration.
type Config struct {
	// ListenAddr is the address the HTTP/websocket server binds to.
	ListenAddr string `yaml:"listen_addr"`

	// TopologyFile is the path to a YAML track-plan description. It is
	// loaded but not read by cmd/railctl, which builds its built-in demo
	// topology instead.
	TopologyFile string `yaml:"topology_file"`

	// DefaultAcceleration is the per-10ms-tick Drive-level ramp step
	// (§4.10), absent a per-train override.
	DefaultAcceleration uint8 `yaml:"default_acceleration"`

	// Lookahead is how many already-granted signals ahead stop
	// request_next_block from requesting more (§4.10; §9 open question 4 resolved in favor of
	// per-Railroad, not per-train or hardcoded, configurability).
	Lookahead int `yaml:"lookahead"`

	// SensorGrace is the debounce window between a sensor's physical Free
	// event and its logical Free status (§4.3).
	SensorGrace time.Duration `yaml:"sensor_grace"`

	// AdvisoryStaleAfter is how long a train may sit at the head of a
	// signal's pending_requesters before the advisory engine flags it.
	AdvisoryStaleAfter time.Duration `yaml:"advisory_stale_after"`

	// AdvisoryInterval is the minimum gap between advisory recomputations.
	AdvisoryInterval time.Duration `yaml:"advisory_interval"`
}

// Default returns the configuration railctl starts from before any file or
// environment overlay is applied.
func Default() Config {
	return Config{
		ListenAddr:          "0.0.0.0:22222",
		DefaultAcceleration: 5,
		Lookahead:           1,
		SensorGrace:         500 * time.Millisecond,
		AdvisoryStaleAfter:  30 * time.Second,
		AdvisoryInterval:    5 * time.Second,
	}
}

// Load reads path as a YAML document, overlaying it onto Default(). Viper
// is used only for file discovery and RAILCTL_-prefixed environment
// overlay (viper.AutomaticEnv); the final decode goes through yaml.v3, the
// same two-step niceyeti/tabular's FromYaml performs.
func Load(path string) (Config, error) {
	cfg := Default()

	vp := viper.New()
	vp.SetConfigFile(filepath.Base(path))
	vp.SetConfigType("yaml")
	vp.AddConfigPath(filepath.Dir(path))
	vp.SetEnvPrefix("RAILCTL")
	vp.AutomaticEnv()

	if err := vp.ReadInConfig(); err != nil {
		return Config{}, err
	}

	raw := vp.AllSettings()
	spec, err := yaml.Marshal(raw)
	if err != nil {
		return Config{}, err
	}
	if err := yaml.Unmarshal(spec, &cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
