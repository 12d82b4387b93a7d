package modem

import (
	"log/slog"
	"time"

	"i4.energy/across/osmocon/framer"
	"i4.energy/across/osmocon/loader"
)

// Forwarder receives L1A/L23 payloads read from the phone.
type Forwarder interface {
	Forward(payload []byte) error
}

type Config struct {
	dialer         Dialer
	variant        loader.Variant
	payload        []byte
	resyncTimeout  time.Duration
	beaconInterval time.Duration
	logger         *slog.Logger
	onStatus       func(loader.Status)
	onConsole      func(string)
	forwarder      Forwarder
}

func (c *Config) setDefaults() {
	if c.variant == 0 {
		c.variant = loader.C123
	}
	if c.resyncTimeout == 0 {
		c.resyncTimeout = framer.DefaultTimeout
	}
	if c.beaconInterval == 0 {
		c.beaconInterval = loader.DefaultBeaconInterval
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
}

func (c *Config) validate() error {
	if c.dialer == nil {
		return ErrNoDialer
	}
	if len(c.payload) == 0 {
		return ErrNoPayload
	}
	if _, err := loader.BuildChainloader(c.variant); err != nil {
		return err
	}
	return nil
}

// ConfigBuilder assembles a Config. Build applies defaults and validates.
type ConfigBuilder struct {
	config Config
}

func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{}
}

func (b *ConfigBuilder) WithDialer(d Dialer) *ConfigBuilder {
	b.config.dialer = d
	return b
}

func (b *ConfigBuilder) WithVariant(v loader.Variant) *ConfigBuilder {
	b.config.variant = v
	return b
}

// WithPayload sets the application image uploaded after the chainloader.
func (b *ConfigBuilder) WithPayload(p []byte) *ConfigBuilder {
	b.config.payload = p
	return b
}

// WithResyncTimeout sets the receive gap after which a partial frame is
// dropped.
func (b *ConfigBuilder) WithResyncTimeout(d time.Duration) *ConfigBuilder {
	b.config.resyncTimeout = d
	return b
}

func (b *ConfigBuilder) WithBeaconInterval(d time.Duration) *ConfigBuilder {
	b.config.beaconInterval = d
	return b
}

func (b *ConfigBuilder) WithLogger(l *slog.Logger) *ConfigBuilder {
	b.config.logger = l
	return b
}

// WithStatusCallback is called from the serial loop on every boot progress
// change.
func (b *ConfigBuilder) WithStatusCallback(fn func(loader.Status)) *ConfigBuilder {
	b.config.onStatus = fn
	return b
}

// WithConsoleCallback receives text the firmware prints on the console
// channel.
func (b *ConfigBuilder) WithConsoleCallback(fn func(string)) *ConfigBuilder {
	b.config.onConsole = fn
	return b
}

func (b *ConfigBuilder) WithForwarder(f Forwarder) *ConfigBuilder {
	b.config.forwarder = f
	return b
}

func (b *ConfigBuilder) Build() (Config, error) {
	c := b.config
	c.setDefaults()
	if err := c.validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}
