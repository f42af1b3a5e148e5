package server

import (
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
)

// Config represents the complete server configuration
type Config struct {
	Server  *Settings        `hcl:"server,block"`
	Storage *StorageSettings `hcl:"storage,block"`
	Bots    *BotSettings     `hcl:"bots,block"`
	Session *SessionSettings `hcl:"session,block"`
	Advice  *AdviceSettings  `hcl:"advice,block"`
}

// Settings contains listener and arbitration settings
type Settings struct {
	Address          string `hcl:"address,optional"`
	Port             int    `hcl:"port,optional"`
	LogLevel         string `hcl:"log_level,optional"`
	StrictTurns      *bool  `hcl:"strict_turns,optional"`
	AutoAdvance      bool   `hcl:"auto_advance,optional"`
	MaxAutoPlaySteps int    `hcl:"max_auto_play_steps,optional"`
}

// StorageSettings selects where action logs live
type StorageSettings struct {
	Driver string `hcl:"driver,optional"`
	Path   string `hcl:"path,optional"`
}

// BotSettings tunes automated players and win-probability analysis
type BotSettings struct {
	SearchDepth int `hcl:"search_depth,optional"`
	Simulations int `hcl:"simulations,optional"`
	Workers     int `hcl:"workers,optional"`
}

// SessionSettings configures player credentials
type SessionSettings struct {
	Secret string `hcl:"secret,optional"`
	TTL    string `hcl:"ttl,optional"`
}

// AdviceSettings toggles negotiation advice
type AdviceSettings struct {
	Enabled bool `hcl:"enabled,optional"`
}

const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"

	defaultSimulations = 100
)

// DefaultConfig returns default server configuration
func DefaultConfig() *Config {
	strict := true
	return &Config{
		Server: &Settings{
			Address:     "localhost",
			Port:        8080,
			LogLevel:    "info",
			StrictTurns: &strict,
		},
		Storage: &StorageSettings{Driver: DriverMemory},
		Bots:    &BotSettings{SearchDepth: 2, Simulations: defaultSimulations},
		Session: &SessionSettings{TTL: "24h"},
		Advice:  &AdviceSettings{Enabled: true},
	}
}

// LoadConfig loads server configuration from an HCL file. A missing file
// yields the defaults.
func LoadConfig(filename string) (*Config, error) {
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file: %s", diags.Error())
	}

	var config Config
	diags = gohcl.DecodeBody(file.Body, nil, &config)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL: %s", diags.Error())
	}
	config.applyDefaults()
	return &config, nil
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.Server == nil {
		c.Server = d.Server
	}
	if c.Server.Address == "" {
		c.Server.Address = d.Server.Address
	}
	if c.Server.Port == 0 {
		c.Server.Port = d.Server.Port
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = d.Server.LogLevel
	}
	if c.Server.StrictTurns == nil {
		c.Server.StrictTurns = d.Server.StrictTurns
	}

	if c.Storage == nil {
		c.Storage = d.Storage
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = DriverMemory
	}

	if c.Bots == nil {
		c.Bots = d.Bots
	}
	if c.Bots.SearchDepth == 0 {
		c.Bots.SearchDepth = d.Bots.SearchDepth
	}
	if c.Bots.Simulations == 0 {
		c.Bots.Simulations = d.Bots.Simulations
	}

	if c.Session == nil {
		c.Session = d.Session
	}
	if c.Session.TTL == "" {
		c.Session.TTL = d.Session.TTL
	}

	// An absent advice block keeps advice on; an explicit block decides.
	if c.Advice == nil {
		c.Advice = d.Advice
	}
}

// Validate validates the server configuration
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	if c.Server.MaxAutoPlaySteps < 0 {
		return fmt.Errorf("max_auto_play_steps must not be negative")
	}

	switch c.Storage.Driver {
	case DriverMemory:
	case DriverSQLite:
		if c.Storage.Path == "" {
			return fmt.Errorf("storage: sqlite driver needs a path")
		}
	default:
		return fmt.Errorf("storage: unknown driver %q", c.Storage.Driver)
	}

	if c.Bots.SearchDepth < 1 {
		return fmt.Errorf("bots: search depth must be positive")
	}
	if c.Bots.Simulations < 1 {
		return fmt.Errorf("bots: simulations must be positive")
	}
	if c.Bots.Workers < 0 {
		return fmt.Errorf("bots: workers must not be negative")
	}

	if _, err := c.SessionTTL(); err != nil {
		return err
	}
	return nil
}

// Address returns the full listen address
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Address, c.Server.Port)
}

// SessionTTL parses the credential lifetime.
func (c *Config) SessionTTL() (time.Duration, error) {
	ttl, err := time.ParseDuration(c.Session.TTL)
	if err != nil {
		return 0, fmt.Errorf("session: invalid ttl %q: %w", c.Session.TTL, err)
	}
	if ttl <= 0 {
		return 0, fmt.Errorf("session: ttl must be positive")
	}
	return ttl, nil
}
