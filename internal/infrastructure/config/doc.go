// Package config loads and validates Gray Logic Power configuration.
//
// Configuration comes from a YAML file, with selected values overridable
// through GRAYPOWER_* environment variables so secrets (broker
// credentials, InfluxDB tokens) stay out of the file. Defaults are
// applied before validation, and loading happens once at startup.
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Site.Name)
package config
