// Package config handles loading and validating stbridge configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//   - Persisting updated configuration (token refresh, setup results)
//
// Security Considerations:
//   - Sensitive values (API tokens, MQTT credentials) should be set via
//     environment variables rather than the config file
//   - The config file should have restricted permissions (0600)
//
// Performance Characteristics:
//   - Configuration is loaded once at startup
//   - Save performs an atomic replace-on-write; no partial files on crash
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.SmartThings.LocationName)
package config
