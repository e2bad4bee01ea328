// Package config handles configuration loading for lattice.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	sync:
//	  targets:
//	    - name: "replica"
//	      secret: "${LATTICE_SYNC_SECRET}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	sync:
//	  initial_backoff: "500ms"
//	  max_backoff: "30s"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// Database:
//
//	database:
//	  path: "/var/lib/lattice"   # one database file per namespace beneath it
//
// Search:
//
//	search:
//	  lexical_weight: 0.5
//	  semantic_weight: 0.5
//	  chunk_max_tokens: 200
//	  chunk_overlap: 40
//
// Sync:
//
//	sync:
//	  enabled: true
//	  max_attempts: 4
//	  initial_backoff: "500ms"
//	  max_backoff: "30s"
//	  targets:
//	    - name: "replica"
//	      url: "https://replica.example.com/ingest"
//	      secret: "${LATTICE_SYNC_SECRET}"
//	      timeout: "10s"
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Validation
//
// Load() validates:
//
//   - Database path presence
//   - Search weight and chunking bounds
//   - Sync target name/url presence and name uniqueness
//   - Duration format validity
//
// # Usage
//
//	cfg, err := config.Load("/etc/lattice/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
