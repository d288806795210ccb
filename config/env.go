package config

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/joeshaw/envdecode"
)

// Env holds settings read from the environment. Command-line flags take
// precedence over these, and these take precedence over synf.toml.
type Env struct {
	// LogLevel is one of debug, info, warn, error. ENV: SYNF_LOG_LEVEL
	LogLevel string `env:"SYNF_LOG_LEVEL,default=info"`
	// LogFormat is text or json. ENV: SYNF_LOG_FORMAT
	LogFormat string `env:"SYNF_LOG_FORMAT,default=text"`
	// Resend overrides resend_resource_subscriptions when set.
	// ENV: SYNF_RESEND_RESOURCE_SUBSCRIPTIONS
	Resend string `env:"SYNF_RESEND_RESOURCE_SUBSCRIPTIONS"`
}

// LoadEnv decodes Env from the process environment.
func LoadEnv() (Env, error) {
	var e Env
	if err := envdecode.Decode(&e); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return Env{}, fmt.Errorf("failed to decode environment: %w", err)
	}
	if e.Resend != "" {
		if _, err := strconv.ParseBool(e.Resend); err != nil {
			return Env{}, fmt.Errorf("SYNF_RESEND_RESOURCE_SUBSCRIPTIONS: %w", err)
		}
	}
	return e, nil
}

// Apply folds environment overrides into r.
func (e Env) Apply(r *Resolved) {
	if e.Resend == "" {
		return
	}
	if v, err := strconv.ParseBool(e.Resend); err == nil {
		r.ResendSubscriptions = v
	}
}
