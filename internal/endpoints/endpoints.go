// Package endpoints maps endpoint selector keys to configured GraphQL
// endpoint/credential pairs.
package endpoints

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Endpoint is one configured GraphQL endpoint. A zero URL means the
// selector did not resolve.
type Endpoint struct {
	URL        string `yaml:"url"`
	Credential string `yaml:"credential,omitempty"`
}

// Config resolves selector keys to endpoints.
type Config struct {
	endpoints map[string]Endpoint
}

// NewStatic builds a Config from an in-memory map.
func NewStatic(m map[string]Endpoint) *Config {
	cp := make(map[string]Endpoint, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return &Config{endpoints: cp}
}

// Load reads a YAML file mapping selector keys to endpoints:
//
//	reporting:
//	  url: https://api.example.com/graphql
//	  credential: token
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read endpoint config: %w", err)
	}
	var m map[string]Endpoint
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parse endpoint config %s: %w", path, err)
	}
	return NewStatic(m), nil
}

// Resolve returns the endpoint for selector, or a zero Endpoint when
// the selector is unknown.
func (c *Config) Resolve(selector string) Endpoint {
	if c == nil {
		return Endpoint{}
	}
	return c.endpoints[selector]
}
