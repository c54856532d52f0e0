// Package registry provides the central "glue" for the module system.
//
// The Registry maps the node type names used in saved graphs and commands
// (e.g., "counter", "print") to the Go constructors that implement them.
// Modules add their types through the Module interface during application
// startup; the registry is then validated so that every type can actually
// be built, which turns a whole class of load-time surprises into a startup
// failure.
package registry
