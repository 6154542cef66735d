package envutil

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Runtime holds process-level settings that come from the environment rather
// than the config file.
type Runtime struct {
	Env       string `env:"ANIMESWIPE_ENV" envDefault:"production"`
	LogLevel  string `env:"LOG_LEVEL"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`
}

// Load parses the runtime settings from the current environment.
func Load() (Runtime, error) {
	var rt Runtime
	if err := env.Parse(&rt); err != nil {
		return Runtime{}, fmt.Errorf("parse env: %w", err)
	}
	return rt, nil
}

// IsDev reports whether this runtime is a development one, where cookie
// security requirements are relaxed so the app works over plain http.
func (rt Runtime) IsDev() bool {
	e := strings.ToLower(rt.Env)
	return e == "development" || e == "dev"
}

// IsDev checks the current environment for development mode.
func IsDev() bool {
	rt, err := Load()
	if err != nil {
		return false
	}
	return rt.IsDev()
}
