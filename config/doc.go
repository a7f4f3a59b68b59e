// Package config loads and validates runtime configuration.
//
// Configuration is layered: a YAML file provides the base, a .env file may
// supply secrets, and process environment variables override both. Viper
// handles the merging; godotenv loads the .env file.
//
// # Usage
//
//	var cfg config.RuntimeConfig
//	err := config.Load("payments", &cfg)
//	cfg.ApplyDefaults()
//	err = cfg.Validate()
package config
