// Package config loads the widgetauth-server settings.
//
// Process settings come from the environment, with an optional .env file
// loaded first for development. Rate-limit overrides and the static partner
// directory come from an optional TOML policy file.
package config
