// Package app wires nostrid dependencies for the CLI.
//
// It builds the identity store backend, the biometric platform, the
// credential vault and the session manager from config.Config, exposing them
// via the Wire struct for commands to use.
package app
