package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"i4.energy/across/osmocon/celllog"
	"i4.energy/across/osmocon/gsm"
	"i4.energy/across/osmocon/gsmtap"
	"i4.energy/across/osmocon/loader"
)

// Config holds the application configuration
type Config struct {
	// BindAddress is the address the status server listens on (e.g. "0.0.0.0:8080")
	BindAddress string `yaml:"bind_address"`
	// SerialPort is the path to the phone's serial cable (e.g. "/dev/ttyUSB0")
	SerialPort string `yaml:"serial_port"`
	// Variant selects the chainloader for the phone model
	Variant loader.Variant `yaml:"variant"`
	// Firmware is the layer1 image uploaded to the phone
	Firmware string `yaml:"firmware"`
	// ResyncTimeout is the receive gap after which a partial frame is dropped
	ResyncTimeout time.Duration `yaml:"resync_timeout"`
	// RestartDelay is the pause before the phone is booted again after a failure
	RestartDelay time.Duration `yaml:"restart_delay"`
	// BridgeSocket is the layer2 socket path; a leading '@' names an abstract socket
	BridgeSocket string `yaml:"bridge_socket"`
	// GSMTAPAddress is the UDP address GSMTAP is received on
	GSMTAPAddress string `yaml:"gsmtap_address"`
	// GSMTAPRelay re-emits received GSMTAP to this UDP address; empty disables the relay
	GSMTAPRelay string `yaml:"gsmtap_relay"`
	// RecordPath is a strftime pattern for the measurement record files; empty disables recording
	RecordPath string `yaml:"record_path"`
	// LogLevel sets the logging level (e.g. "debug", "info", "warn", "error")
	LogLevel string `yaml:"log_level"`
	// LogFormat is "json" or "text"
	LogFormat string `yaml:"log_format"`

	CellLog CellLogConfig `yaml:"cell_log"`
}

// CellLogConfig controls the cell_log scanner hosted by the daemon.
type CellLogConfig struct {
	Enabled  bool       `yaml:"enabled"`
	Binary   string     `yaml:"binary"`
	FIFO     string     `yaml:"fifo"`
	Bands    []gsm.Band `yaml:"bands"`
	Transmit bool       `yaml:"transmit"`
}

// ConfigOption is a function that modifies a Config
type ConfigOption func(*Config) error

// LoadConfig creates a new config by applying the given options in order
func LoadConfig(opts ...ConfigOption) (*Config, error) {
	config := &Config{}

	for _, opt := range opts {
		if err := opt(config); err != nil {
			return nil, err
		}
	}

	return config, nil
}

// WithDefaults applies default configuration values
func WithDefaults() ConfigOption {
	return func(c *Config) error {
		c.BindAddress = "0.0.0.0:8080"
		c.SerialPort = "/dev/ttyUSB0"
		c.Variant = loader.C140xor
		c.Firmware = "layer1.highram.bin"
		c.ResyncTimeout = time.Second
		c.RestartDelay = 2 * time.Second
		c.BridgeSocket = "/tmp/osmocom_l2"
		c.GSMTAPAddress = gsmtap.DefaultAddr
		c.LogLevel = "info"
		c.LogFormat = "json"
		c.CellLog = CellLogConfig{
			Enabled: true,
			Binary:  "cell_log",
			FIFO:    "/tmp/cell_log_fifo",
			Bands:   celllog.DefaultBands,
		}
		return nil
	}
}

// WithFile loads configuration from a YAML file. Keys missing from the file
// keep their current value. An empty path is ignored.
func WithFile(path string) ConfigOption {
	return func(c *Config) error {
		if path == "" {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("parse config file %s: %w", path, err)
		}
		return nil
	}
}

// WithEnv loads configuration from environment variables
func WithEnv() ConfigOption {
	return func(c *Config) error {
		if addr := os.Getenv("BIND_ADDRESS"); addr != "" {
			c.BindAddress = addr
		}

		if serial := os.Getenv("SERIAL_PORT"); serial != "" {
			c.SerialPort = serial
		}

		if variant := os.Getenv("PHONE_VARIANT"); variant != "" {
			if err := c.Variant.Set(variant); err != nil {
				return fmt.Errorf("PHONE_VARIANT: %w", err)
			}
		}

		if fw := os.Getenv("FIRMWARE"); fw != "" {
			c.Firmware = fw
		}

		if socket := os.Getenv("BRIDGE_SOCKET"); socket != "" {
			c.BridgeSocket = socket
		}

		if addr := os.Getenv("GSMTAP_ADDRESS"); addr != "" {
			c.GSMTAPAddress = addr
		}

		if relay := os.Getenv("GSMTAP_RELAY"); relay != "" {
			c.GSMTAPRelay = relay
		}

		if fifo := os.Getenv("CELL_LOG_FIFO"); fifo != "" {
			c.CellLog.FIFO = fifo
		}

		if bin := os.Getenv("CELL_LOG_BINARY"); bin != "" {
			c.CellLog.Binary = bin
		}

		if bands := os.Getenv("CELL_LOG_BANDS"); bands != "" {
			parsed, err := parseBands(strings.Split(bands, ","))
			if err != nil {
				return fmt.Errorf("CELL_LOG_BANDS: %w", err)
			}
			c.CellLog.Bands = parsed
		}

		if path := os.Getenv("RECORD_PATH"); path != "" {
			c.RecordPath = path
		}

		if level := os.Getenv("LOG_LEVEL"); level != "" {
			c.LogLevel = level
		}

		if format := os.Getenv("LOG_FORMAT"); format != "" {
			c.LogFormat = format
		}

		return nil
	}
}

// WithFlags loads configuration from command-line flags. Only flags set
// explicitly override earlier layers.
func WithFlags(fSet *pflag.FlagSet) ConfigOption {
	return func(c *Config) error {
		var errs []error
		fSet.Visit(func(f *pflag.Flag) {
			switch f.Name {
			case "bind-address":
				c.BindAddress = f.Value.String()
			case "serial-port":
				c.SerialPort = f.Value.String()
			case "variant":
				if err := c.Variant.Set(f.Value.String()); err != nil {
					errs = append(errs, fmt.Errorf("--variant: %w", err))
				}
			case "firmware":
				c.Firmware = f.Value.String()
			case "resync-timeout":
				if d, err := time.ParseDuration(f.Value.String()); err == nil {
					c.ResyncTimeout = d
				}
			case "restart-delay":
				if d, err := time.ParseDuration(f.Value.String()); err == nil {
					c.RestartDelay = d
				}
			case "bridge-socket":
				c.BridgeSocket = f.Value.String()
			case "gsmtap-address":
				c.GSMTAPAddress = f.Value.String()
			case "gsmtap-relay":
				c.GSMTAPRelay = f.Value.String()
			case "record-path":
				c.RecordPath = f.Value.String()
			case "log-level":
				c.LogLevel = f.Value.String()
			case "log-format":
				c.LogFormat = f.Value.String()
			case "cell-log":
				c.CellLog.Enabled = f.Value.String() == "true"
			case "cell-log-binary":
				c.CellLog.Binary = f.Value.String()
			case "cell-log-fifo":
				c.CellLog.FIFO = f.Value.String()
			case "transmit":
				c.CellLog.Transmit = f.Value.String() == "true"
			case "bands":
				names, err := fSet.GetStringSlice("bands")
				if err == nil {
					c.CellLog.Bands, err = parseBands(names)
				}
				if err != nil {
					errs = append(errs, fmt.Errorf("--bands: %w", err))
				}
			}
		})
		return errors.Join(errs...)
	}
}

func parseBands(names []string) ([]gsm.Band, error) {
	bands := make([]gsm.Band, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		b, err := gsm.ParseBand(name)
		if err != nil {
			return nil, err
		}
		bands = append(bands, b)
	}
	return bands, nil
}

// flagSet declares the command-line flags understood by WithFlags.
func flagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("osmocon", pflag.ContinueOnError)
	fs.StringP("config", "f", "", "YAML configuration file")
	fs.StringP("serial-port", "p", "/dev/ttyUSB0", "Serial port the phone is attached to")
	variant := loader.C140xor
	fs.VarP(&variant, "variant", "m", "Phone model: c123, c123xor, c140, c140xor")
	fs.StringP("firmware", "c", "layer1.highram.bin", "Layer1 firmware image uploaded to the phone")
	fs.Duration("resync-timeout", time.Second, "Receive gap after which a partial serial frame is dropped")
	fs.Duration("restart-delay", 2*time.Second, "Pause before booting the phone again after a failure")
	fs.StringP("bridge-socket", "s", "/tmp/osmocom_l2", "Layer2 socket; a leading '@' names an abstract socket")
	fs.String("gsmtap-address", gsmtap.DefaultAddr, "UDP address GSMTAP is received on")
	fs.String("gsmtap-relay", "", "UDP address received GSMTAP is relayed to (empty disables the relay)")
	fs.String("record-path", "", "strftime pattern for measurement record files (empty disables recording)")
	fs.String("bind-address", "0.0.0.0:8080", "Bind address for the HTTP status server")
	fs.String("log-level", "info", "Log level (debug, info, warn, error)")
	fs.String("log-format", "json", "Log format (json, text)")
	fs.Bool("cell-log", true, "Run the cell_log scanner")
	fs.String("cell-log-binary", "cell_log", "cell_log executable")
	fs.StringP("cell-log-fifo", "l", "/tmp/cell_log_fifo", "FIFO cell_log writes its log to")
	fs.StringSlice("bands", []string{"GSM850", "PCS1900"}, "Bands scanned by cell_log")
	fs.Bool("transmit", false, "Allow cell_log to transmit")
	fs.Bool("list-ports", false, "List serial ports and exit")
	return fs
}
