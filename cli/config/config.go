package config

import (
	"fmt"
	"time"
)

// Config represents a rosen.yaml configuration file.
// All values are optional and act as defaults for subcommand flags.
// CLI flags always override config values.
type Config struct {
	Station  string         `yaml:"station"`
	Link     LinkConfig     `yaml:"link"`
	Ack      AckConfig      `yaml:"ack"`
	Observe  ObserveConfig  `yaml:"observe"`
	Download DownloadConfig `yaml:"download"`
	Storage  StorageConfig  `yaml:"storage"`
	Adapter  AdapterConfig  `yaml:"adapter"`
}

// LinkConfig selects and addresses the ground link transport.
type LinkConfig struct {
	Transport   string   `yaml:"transport"` // tcp or serial
	Host        string   `yaml:"host"`
	Port        int      `yaml:"port"`
	SerialPort  string   `yaml:"serial_port"`
	Baud        int      `yaml:"baud"`
	DialTimeout Duration `yaml:"dial_timeout"`
}

// AckConfig holds acknowledgement and retry defaults.
type AckConfig struct {
	Timeout     Duration `yaml:"timeout"`
	Policy      string   `yaml:"policy"` // resend or abort
	MaxAttempts int      `yaml:"max_attempts"`
	Command     string   `yaml:"command"`
}

// ObserveConfig holds observation log defaults.
type ObserveConfig struct {
	LogFile string `yaml:"log_file"`
}

// DownloadConfig holds bulk download defaults.
type DownloadConfig struct {
	Settle       Duration `yaml:"settle"`
	PollInterval Duration `yaml:"poll_interval"`
	DisableDelay Duration `yaml:"disable_delay"`
	Checkpoint   Duration `yaml:"checkpoint"`
	OutputDir    string   `yaml:"output_dir"`
}

// StorageConfig holds archive defaults. An empty backend disables the
// archive.
type StorageConfig struct {
	Dataset     string `yaml:"dataset"`
	Backend     string `yaml:"backend"` // fs or s3
	Path        string `yaml:"path"`
	Region      string `yaml:"region"`
	Endpoint    string `yaml:"endpoint"`
	S3PathStyle bool   `yaml:"s3_path_style"`
}

// AdapterConfig holds completion notifier defaults. KeyPrefix applies to
// redis only and stores the latest event per station.
type AdapterConfig struct {
	Type      string            `yaml:"type"` // redis or webhook
	URL       string            `yaml:"url"`
	Channel   string            `yaml:"channel,omitempty"`
	Headers   map[string]string `yaml:"headers,omitempty"`
	Timeout   Duration          `yaml:"timeout,omitempty"`
	Retries   *int              `yaml:"retries,omitempty"`
	KeyPrefix string            `yaml:"key_prefix,omitempty"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// Validate checks enumerated fields.
func (c *Config) Validate() error {
	switch c.Link.Transport {
	case "", "tcp", "serial":
	default:
		return fmt.Errorf("link.transport must be tcp or serial, got %q", c.Link.Transport)
	}
	switch c.Ack.Policy {
	case "", "resend", "abort":
	default:
		return fmt.Errorf("ack.policy must be resend or abort, got %q", c.Ack.Policy)
	}
	if c.Ack.MaxAttempts < 0 {
		return fmt.Errorf("ack.max_attempts must be >= 0, got %d", c.Ack.MaxAttempts)
	}
	switch c.Storage.Backend {
	case "", "fs", "s3":
	default:
		return fmt.Errorf("storage.backend must be fs or s3, got %q", c.Storage.Backend)
	}
	if c.Storage.Backend != "" && c.Storage.Path == "" {
		return fmt.Errorf("storage.path is required for backend %q", c.Storage.Backend)
	}
	switch c.Adapter.Type {
	case "":
	case "redis", "webhook":
		if c.Adapter.URL == "" {
			return fmt.Errorf("adapter.url is required for type %q", c.Adapter.Type)
		}
	default:
		return fmt.Errorf("adapter.type must be redis or webhook, got %q", c.Adapter.Type)
	}
	return nil
}
