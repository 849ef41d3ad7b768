// Package config handles loading and validating hublink configuration.
//
// This package manages:
//   - Loading configuration from an optional YAML file
//   - Loading a .env file into the process environment
//   - Overriding with environment variables
//   - Validation of required fields
//
// Security Considerations:
//   - The connection string carries the shared access key. Set it via
//     AZ_IOT_CONNECTION_STRING rather than the config file.
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	_ = config.LoadEnvFile(".env")
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
