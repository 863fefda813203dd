// Package config loads the daemon's HCL configuration file, applies
// defaults, and validates it into a model both the daemon and the worker
// process construct themselves from.
package config
