// Package config provides configuration loading and validation for the HTTP server.
// It decodes a YAML file on top of built-in defaults and validates every section
// before the server is wired together.
package config
