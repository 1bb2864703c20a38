// Package config defines the configuration for a tanglevis engine.
//
// Regardless of how tanglevis is started, directly from Go code or as a
// standalone process from the command line, it uses the Config object defined
// in this package to store and forward configuration options. One engine
// instance serves exactly one logical network feed; switching networks means
// discarding the engine and constructing a fresh one from a new Config.
package config
