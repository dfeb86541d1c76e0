// Package cli provides the interactive comicsync command-line client.
//
// It wires configuration, the local replica, the sync engine and the remote
// API into a REPL that keeps working offline. Typical flow: prompt for
// credentials (falling back to the cached ones when the server is down),
// start a background connectivity watcher, and execute user commands.
//
// Reads are always served from the replica. A list is pulled from the
// server the first time it is shown and again whenever the connection comes
// back. Edits are local until "persist" sends them. When a refresh changes
// which rows a shown list contains, the old rows stay on screen until the
// user types "apply" (or, for background refreshes, until a timeout).
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
package cli
