// Package registry holds named values for declarative graph construction.
//
// A graph definition loaded from YAML or JSON refers to node and router
// functions by name. Applications register those functions ahead of time
// and the loader resolves each name through a Registry:
//
//	nodes := registry.New[stategraph.NodeFunc]()
//	nodes.MustRegister("fetch", fetchNode)
//	nodes.MustRegister("summarize", summarizeNode)
//
//	fn, err := nodes.Lookup("fetch")
//
// Lookup returns an error wrapping ErrNotRegistered that names the missing
// entry and lists what is available.
//
// GetOrCreate provides lazily created per-key values.
//
// All methods are safe for concurrent use.
package registry
