// Package datasets registers all dataset processors with the core registry.
// Import this package to ensure all datasets are registered.
package datasets

// This file exists to provide a single import point.
// Each dataset file uses init() to register its processor.
