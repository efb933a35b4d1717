package main

import (
	"flag"
	"log"
	"os"
	"strconv"
)

// Config holds the daemon configuration.
type Config struct {
	Addr      string
	LogLevel  string
	MaxPasses int
}

// configResolver defines how to resolve a single configuration value
// from a CLI flag, an environment variable or a default, in that order.
type configResolver struct {
	flagName    string
	envVarName  string
	defaultVal  string
	description string
	setter      func(*Config, string)
}

func loadConfig() Config {
	cfg := Config{}

	resolvers := []configResolver{
		{
			flagName:    "addr",
			envVarName:  "LSIMD_ADDR",
			defaultVal:  ":8318",
			description: "HTTP listen address (e.g. :8318, 0.0.0.0:8318)",
			setter:      func(c *Config, v string) { c.Addr = v },
		},
		{
			flagName:    "log-level",
			envVarName:  "LSIMD_LOG_LEVEL",
			defaultVal:  "info",
			description: "log level: debug, info, warn, error",
			setter:      func(c *Config, v string) { c.LogLevel = v },
		},
		{
			flagName:    "max-passes",
			envVarName:  "LSIMD_MAX_PASSES",
			defaultVal:  "100",
			description: "settle pass bound per simulation step",
			setter: func(c *Config, v string) {
				if val, err := strconv.Atoi(v); err == nil && val > 0 {
					c.MaxPasses = val
				} else {
					log.Printf("invalid value for max-passes: %s, using default 100", v)
					c.MaxPasses = 100
				}
			},
		},
	}

	flagVars := make(map[string]*string)
	for _, resolver := range resolvers {
		flagVars[resolver.flagName] = flag.String(resolver.flagName, "", resolver.description)
	}
	flag.Parse()

	for _, resolver := range resolvers {
		var value string
		if *flagVars[resolver.flagName] != "" {
			value = *flagVars[resolver.flagName]
		} else if envValue := os.Getenv(resolver.envVarName); envValue != "" {
			value = envValue
		} else {
			value = resolver.defaultVal
		}
		resolver.setter(&cfg, value)
	}

	return cfg
}
