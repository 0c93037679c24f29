// ABOUTME: Package documentation for the config package
// ABOUTME: Describes file format, env expansion, and duration parsing

// Package config handles configuration loading for agent-mesh.
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
//	auth:
//	  secret: "${MESH_SECRET}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	mesh:
//	  presence_age: "5m"
//	  sweep_interval: "30s"
package config
