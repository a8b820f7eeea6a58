// Package config provides configuration management for the lead scoring
// pipeline. It covers two kinds of configuration: the application settings
// (paths, run policy, logging, server, telemetry) and the static mapping
// data the stages apply (city tiers, categorical allow-lists, index column
// sets, schemas).
//
// # Configuration Sources
//
// Application settings are loaded in order of precedence:
//
//	1. Environment variables (highest priority)
//	2. YAML configuration file
//	3. Default values (lowest priority)
//
// # Environment Variables
//
// All environment variables follow the pattern LEADSCORE_<SECTION>_<FIELD>:
//
//	LEADSCORE_PATHS_DB_FILE=/var/lib/leadscoring/lead_scoring.db
//	LEADSCORE_PIPELINE_MODE=inference
//	LEADSCORE_PIPELINE_VALIDATION_POLICY=fail
//	LEADSCORE_LOGGING_LEVEL=debug
//
// # Mappings
//
// The mapping data lives in its own YAML file and is turned into an
// immutable *Mappings by NewMappings, which validates it once:
//
//	m, err := config.LoadMappings(cfg.Paths.MappingsFile)
//	tier := m.CityTier("bangalore")
//
// When no mapping file exists, DefaultMappingsSpec supplies the built-in
// levels.
//
// # Usage
//
//	cfg, err := config.Load("")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// # Testing
//
// Use Default() for a configuration that needs no files or environment.
package config
