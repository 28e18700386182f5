// Package config holds the options of a dump run and the .ctfdump site file,
// which stores per-platform credentials and defaults.
package config
