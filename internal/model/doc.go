// Package model defines the domain types and value objects for the
// deepexport CLI.
//
// This package contains pure data structures with no external dependencies.
// Nodes, content descriptors and counters are transient: they are read
// from the repository during a single traversal pass and nothing outside
// the exported files and the run log survives the process.
//
// The package also defines the fatal error classes (ErrConfig,
// ErrPrecondition, ErrAuth, ErrQuery), the per-object skip reasons, and
// the CLIError type that carries an exit code to the OS.
package model
