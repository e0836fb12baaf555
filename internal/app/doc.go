// Package app contains the core application logic. It defines the main App
// struct, its configuration, and the run pipeline (load definitions, expand
// templates, build the graph, evaluate, reconcile), decoupled from any
// specific entrypoint like a CLI.
package app
