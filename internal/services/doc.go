// Package services wires the journal pipeline together.
//
// Journal is the core surface used by the CLI and the HTTP API: StoreEntry,
// GetFeedback and AskAboutSelf. Registry holds the constructed components so
// their lifetimes can be managed in one place. Use New to build everything
// from configuration, or NewRegistry to assemble pre-built components in
// tests.
package services
