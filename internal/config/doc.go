// Package config provides centralized configuration and path resolution for
// the air quality cleaning toolchain.
//
// Configuration is loaded from environment variables (prefix AQ_) merged with
// an optional YAML file. The Paths type is the single source of truth for all
// file locations used by the pipeline and the HTTP server.
package config
