// Package app contains the process-level application: its configuration,
// logger and lifecycle. It assembles a session, the snapshot store and the
// optional HTTP and monitor surfaces, decoupled from any specific entrypoint
// like a CLI.
package app
