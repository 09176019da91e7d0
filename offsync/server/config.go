package server

import (
	"errors"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Range bounds for Config fields, mirrored in Valid's checks below.
const (
	BiasPacketMin = 1
	BiasPacketMax = 100_000

	RegistryCapacityMin = 1
	RegistryCapacityMax = 1_000_000

	SnapshotIntervalMin = 0 // 0 disables periodic snapshots

	// ReceiveTimeoutMax bounds how long ReceiveTimeout may be set to;
	// past this the receive loop would no longer be shutdown-responsive
	// in any practical sense.
	ReceiveTimeoutMax = time.Minute
)

// Config defines the offset server's bind address and tuning knobs.
// The default is applied for each unspecified value, the same pattern
// the C37.118 codec's companion CLI config uses.
type Config struct {
	Addr string `yaml:"addr"`

	// EWMAAlpha is the EWMA smoothing factor; 0 selects the standard
	// default of 0.2.
	EWMAAlpha float64 `yaml:"ewma_alpha"`

	// BiasPacket is the packet number at which a client's raw sample
	// is captured as its steady-state bias, subtracted from ewma,
	// kalman, and pid replies from then on.
	BiasPacket int `yaml:"bias_packet"`

	// RegistryCapacity bounds the number of tracked client endpoints
	// before LRU eviction kicks in.
	RegistryCapacity int `yaml:"registry_capacity"`

	// SnapshotPath, when non-empty, is where the periodic statistics
	// snapshot JSON is written. Empty disables the snapshot writer.
	SnapshotPath string `yaml:"snapshot_path"`

	// SnapshotEvery is how many processed packets elapse between
	// snapshot writes. 0 disables periodic snapshots even if
	// SnapshotPath is set.
	SnapshotEvery int `yaml:"snapshot_every"`

	// HideRaw suppresses raw-scheme diagnostic logging, matching the
	// --hide-raw CLI flag.
	HideRaw bool `yaml:"hide_raw"`

	// ReceiveTimeout bounds each blocking read on the socket so the
	// receive loop wakes periodically to check for shutdown even with
	// no inbound traffic. Default is 0 (no timeout, block indefinitely);
	// 1s is recommended for tighter shutdown responsiveness. The loop
	// stays shutdown-responsive even at the default, since Run closes
	// the socket on cancellation regardless of this setting.
	ReceiveTimeout time.Duration `yaml:"receive_timeout"`
}

// Valid fills in defaults for every unspecified field and rejects
// out-of-range values.
func (c *Config) Valid() error {
	if c == nil {
		return errors.New("invalid pointer")
	}

	if c.Addr == "" {
		c.Addr = "127.0.0.1:12345"
	}

	if c.EWMAAlpha == 0 {
		c.EWMAAlpha = 0.2
	} else if c.EWMAAlpha < 0 || c.EWMAAlpha > 1 {
		return errors.New("EWMAAlpha not in (0, 1]")
	}

	if c.BiasPacket == 0 {
		c.BiasPacket = 30
	} else if c.BiasPacket < BiasPacketMin || c.BiasPacket > BiasPacketMax {
		return errors.New("BiasPacket out of range")
	}

	if c.RegistryCapacity == 0 {
		c.RegistryCapacity = 4096
	} else if c.RegistryCapacity < RegistryCapacityMin || c.RegistryCapacity > RegistryCapacityMax {
		return errors.New("RegistryCapacity out of range")
	}

	if c.SnapshotEvery < SnapshotIntervalMin {
		return errors.New("SnapshotEvery must be >= 0")
	}

	if c.ReceiveTimeout < 0 || c.ReceiveTimeout > ReceiveTimeoutMax {
		return errors.New("ReceiveTimeout out of range")
	}

	return nil
}

// DefaultConfig returns a Config with every field at its standard
// default.
func DefaultConfig() Config {
	cfg := Config{}
	cfg.Valid() //nolint:errcheck // zero-value Config always validates
	return cfg
}

// LoadConfigFile reads a YAML configuration file and validates it,
// filling in defaults for anything the file leaves unset.
func LoadConfigFile(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Valid(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
