package app

import "errors"

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	PipelineFiles []string // yaml documents, merged left to right
	Inputs        map[string]string

	TraceOut        string // execution log path; empty disables persistence
	LogFormat       string
	LogLevel        string
	HealthcheckPort int
}

// NewConfig validates and returns the configuration.
func NewConfig(cfg Config) (*Config, error) {
	if len(cfg.PipelineFiles) == 0 {
		return nil, errors.New("at least one pipeline file is required")
	}
	return &cfg, nil
}
