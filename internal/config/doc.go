// Package config provides centralized configuration management for the
// rank-index engine. It handles loading configuration from multiple sources,
// validation, and provides a type-safe API for accessing configuration
// values throughout the application.
//
// # Configuration Sources
//
// Configuration is loaded from the following sources in order of precedence:
//
//	1. Environment variables (highest priority)
//	2. Configuration files (YAML)
//	3. Default values (lowest priority)
//
// # Environment Variables
//
// All environment variables follow the pattern PLACEPULSE_* for namespacing:
//
//	PLACEPULSE_SERVER_PORT=8080
//	PLACEPULSE_ORACLE_BASE_URL=http://oracle.internal:9090
//	PLACEPULSE_CALIBRATION_MIN_KEYWORD_SAMPLES=5
//	PLACEPULSE_LOGGING_LEVEL=info
//
// # Validation
//
// All configuration is validated at load time to ensure:
//
//	- Required fields are present
//	- Values are within acceptable ranges
//	- Working directories exist or can be created
//
// # Usage
//
// Load configuration at application startup:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
