package main

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const envPrefix = "MCPAP"

type Config struct {
	ServerAddr string        `envconfig:"SERVER_ADDR" default:"http://localhost:3200"`
	APIKey     string        `envconfig:"API_KEY"`
	Timeout    time.Duration `envconfig:"TIMEOUT" default:"60s"`
}

func NewConfig() (*Config, error) {
	c := &Config{}
	err := envconfig.Process(envPrefix, c)
	if err != nil {
		return nil, fmt.Errorf("failed to parse environment variables: %w", err)
	}
	return c, nil
}
