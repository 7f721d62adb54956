/*
Package config provides type-safe access to loosely typed configuration.

Graph definitions, compile options and retry policies can be written as
YAML or JSON. config wraps the decoded map[string]any and exposes typed
accessors that fall back to a default on missing keys or type mismatches:

	cfg, err := config.FromFile("graph.yaml")
	if err != nil {
	    return err
	}

	steps := cfg.Int("max_steps", 25)
	backoff := cfg.Duration("retry.initial_backoff", time.Second)
	pauses := cfg.StringSlice("interrupt_before", nil)

Dotted keys walk nested maps. Sub returns a nested map as its own Config,
and List returns a list of maps, which is how edge lists are read:

	for _, edge := range cfg.List("edges") {
	    from := edge.String("from", "")
	    to := edge.String("to", "")
	}

# Layering

FromFiles merges documents in order, so a shared graph definition can be
combined with per-environment overrides. Nested maps merge key by key;
lists and scalars replace. FromFile(path, true) expands ${VAR} references
from the environment before parsing.

# Type Coercion

Duration accepts a time.ParseDuration string ("30s", "1h30m"), a number of
seconds, or a time.Duration. Int accepts whole float64 values, which is how
JSON decodes numbers. Float accepts ints.

Config is safe for concurrent reads. The underlying map is never modified.
*/
package config
