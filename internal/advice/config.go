package advice

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Config is read from the environment at startup.
type Config struct {
	APIKey        string `env:"OPENAI_API_KEY"`
	BaseURL       string `env:"OPENAI_BASE_URL"                   envDefault:"https://api.openai.com/v1"`
	Model         string `env:"NEGOTIATION_ADVICE_MODEL"`
	OpenAIModel   string `env:"OPENAI_MODEL"`
	FallbackModel string `env:"NEGOTIATION_ADVICE_FALLBACK_MODEL" envDefault:"gpt-4o-mini"`
	// Temperature is kept as text so an unparseable value means "provider
	// default" rather than a startup failure.
	Temperature string `env:"NEGOTIATION_ADVICE_TEMPERATURE"`
	LogLimit    int    `env:"NEGOTIATION_LOG_LIMIT"             envDefault:"32"`
}

// LoadConfig reads Config from the process environment.
func LoadConfig() (Config, error) {
	return parseConfig(env.Options{})
}

func parseConfig(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse advice env: %w", err)
	}
	if cfg.FallbackModel == "" {
		cfg.FallbackModel = "gpt-4o-mini"
	}
	return cfg, nil
}

// PreferredModel is the model tried first.
func (c Config) PreferredModel() string {
	switch {
	case c.Model != "":
		return c.Model
	case c.OpenAIModel != "":
		return c.OpenAIModel
	}
	return c.FallbackModel
}

// TemperatureValue returns the configured temperature, or nil when unset or
// invalid.
func (c Config) TemperatureValue() *float64 {
	v := strings.TrimSpace(c.Temperature)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil
	}
	return &f
}
