// Package config loads and validates experiment configuration.
//
// Configuration flows one way at startup:
//
//	manifest (YAML or CUE) -> schema check -> apps -> session configs -> Registry
//
// Each raw session config is merged over the manifest's
// session_config_defaults, checked for required keys, name format and a
// duplicate-free app_sequence, and has its monetary fields coerced to
// fixed-point decimals. The resulting Registry is immutable and injected into
// every component that needs config or app lookups.
//
// Process settings (database path, base URL, marketplace multiplier) come
// from COHORT_* environment variables.
package config
