// Package commands implements the nostrid CLI: create, import, status,
// unlock, reset and bio subcommands over the identity session manager.
package commands
