// Package unp is the root of the UNP reliability-and-framing engine: it
// wires the wire codec, time-bounded caches, reassembly engine, reliability
// engine, and dispatcher together behind the high-level send API described
// in spec.md §4.7.
package unp

import (
	"fmt"
	"time"

	"github.com/unprotocol/unp/logx"
	"github.com/unprotocol/unp/serializer"
	"github.com/unprotocol/unp/wire"
)

// Default option values, spec.md §6.
const (
	DefaultAckResendTimeout        = 200 * time.Millisecond
	DefaultAckForgetTimeout        = 2000 * time.Millisecond
	DefaultResponseForgetTimeout   = 2000 * time.Millisecond
	DefaultReassemblyForgetTimeout = 2000 * time.Millisecond
	// DefaultRetries is not itself an item in spec.md §6's option table (the
	// table only configures timing); the retry count comes from this
	// engine-wide default. See DESIGN.md for the open-question rationale.
	DefaultRetries = 3
	// DefaultCacheSectors is spec.md's own worked example sector count
	// (§4.3: "e.g., four"); spec.md §9 leaves the exact count
	// implementation-defined.
	DefaultCacheSectors = 4
)

// Config holds every tunable in spec.md §6's configuration table, plus the
// ambient logger and serializer collaborators.
type Config struct {
	ProtocolSignature       string
	ServerPort              int
	MaxPacketSize           int
	AckResendTimeout        time.Duration
	AckForgetTimeout        time.Duration
	ResponseForgetTimeout   time.Duration
	ReassemblyForgetTimeout time.Duration
	IgnoreWantedAck         bool
	EnableSession           bool
	SupportedCommands       []string
	Retries                 int

	// BinaryDataParams is the global default serializer.Params applied to
	// every message unless overridden per (type, command) below, or by an
	// explicit SendOptions.Params on a specific call (spec.md §6
	// binary_data_params: "global + per-(type+command)").
	BinaryDataParams serializer.Params
	// BinaryDataParamsByKey overrides BinaryDataParams for specific
	// (type, command) pairs, keyed by the same "type+command" concatenation
	// the typed inbox uses (e.g. "Cping").
	BinaryDataParamsByKey map[string]serializer.Params

	Serializer serializer.Serializer
	Logger     logx.Logger
}

// paramsFor resolves the effective serializer.Params for (t, command): a
// per-(type+command) override if one is configured, else the global
// default.
func (c Config) paramsFor(t wire.Type, command string) serializer.Params {
	if c.BinaryDataParamsByKey != nil {
		if p, ok := c.BinaryDataParamsByKey[fmt.Sprintf("%c%s", t, command)]; ok {
			return p
		}
	}
	return c.BinaryDataParams
}

func defaultConfig() Config {
	return Config{
		ProtocolSignature:       "UNP",
		MaxPacketSize:           0,
		AckResendTimeout:        DefaultAckResendTimeout,
		AckForgetTimeout:        DefaultAckForgetTimeout,
		ResponseForgetTimeout:   DefaultResponseForgetTimeout,
		ReassemblyForgetTimeout: DefaultReassemblyForgetTimeout,
		Retries:                 DefaultRetries,
		Serializer:              serializer.NewJSONSerializer(),
		Logger:                  logx.NewDefaultLogger(),
	}
}

func (c Config) supportedCommandSet() map[string]bool {
	if len(c.SupportedCommands) == 0 {
		return nil
	}
	set := make(map[string]bool, len(c.SupportedCommands))
	for _, cmd := range c.SupportedCommands {
		set[cmd] = true
	}
	return set
}

// Option configures an Engine, generalizing the teacher's
// UDPOption func(*Transport) pattern to the full option set above.
type Option func(*Config)

func WithProtocolSignature(sig string) Option {
	return func(c *Config) { c.ProtocolSignature = sig }
}

func WithServerPort(port int) Option {
	return func(c *Config) { c.ServerPort = port }
}

func WithMaxPacketSize(size int) Option {
	return func(c *Config) { c.MaxPacketSize = size }
}

func WithAckResendTimeout(d time.Duration) Option {
	return func(c *Config) { c.AckResendTimeout = d }
}

func WithAckForgetTimeout(d time.Duration) Option {
	return func(c *Config) { c.AckForgetTimeout = d }
}

func WithResponseForgetTimeout(d time.Duration) Option {
	return func(c *Config) { c.ResponseForgetTimeout = d }
}

func WithReassemblyForgetTimeout(d time.Duration) Option {
	return func(c *Config) { c.ReassemblyForgetTimeout = d }
}

func WithIgnoreWantedAck(ignore bool) Option {
	return func(c *Config) { c.IgnoreWantedAck = ignore }
}

func WithEnableSession(enable bool) Option {
	return func(c *Config) { c.EnableSession = enable }
}

func WithSupportedCommands(commands ...string) Option {
	return func(c *Config) { c.SupportedCommands = commands }
}

func WithRetries(n int) Option {
	return func(c *Config) { c.Retries = n }
}

// WithBinaryDataParams sets the global default serializer.Params and,
// optionally, per-(type+command) overrides (spec.md §6 binary_data_params).
// perCommand may be nil.
func WithBinaryDataParams(global serializer.Params, perCommand map[string]serializer.Params) Option {
	return func(c *Config) {
		c.BinaryDataParams = global
		c.BinaryDataParamsByKey = perCommand
	}
}

func WithSerializer(s serializer.Serializer) Option {
	return func(c *Config) { c.Serializer = s }
}

func WithLogger(log logx.Logger) Option {
	return func(c *Config) { c.Logger = log }
}
