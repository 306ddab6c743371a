// Package config loads asyncify configuration with viper.
//
// Values come from, in increasing priority: Defaults, a YAML file
// (./config/<name>.yml, ./<name>.yml, ./config/config.yml or ./config.yml
// unless WithConfigFile is given), a .env file loaded with godotenv, and
// ASYNCIFY_* environment variables:
//
//	cfg, err := config.Load("ingest")
//	// ASYNCIFY_BRIDGE_BUFFERING=false disables buffering for FromConfig bridges
//
// Load validates the result and returns an *errors.AppError naming every
// offending key.
package config
