// Package config loads renderer configuration from defaults, a YAML file,
// MANDEL_* environment variables and command-line flags, in that order of
// increasing precedence.
package config
