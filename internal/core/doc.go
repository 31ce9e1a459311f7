// Package core holds the dataset registry, the run orchestration and the
// PostGIS store of the GIS material update tools.
//
// It is independent of the command line entry points and can be driven by
// tests with fake processors and a fake database.
//
// # Architecture
//
// The package is organized around a few concepts:
//
//   - Dataset Definitions: registered via the registry, each dataset builds a
//     [Processor] and names the tormays tables it can deploy.
//   - Service: the entry point for processing runs and validate/deploy.
//   - Store: writes feature collections into PostGIS and moves staged tables
//     into production.
//
// # Dataset Registry
//
// Datasets are registered at init time using [Register]:
//
//	core.Register(core.DatasetDefinition{
//	    Info:    core.DatasetInfo{Key: "hsl", Group: "transit", Label: "HSL bus lines"},
//	    New:     newHSL,
//	    Tormays: tormays("hsl"),
//	})
//
// A dataset that reads the output files of other datasets lists them in
// DependsOn; [Resolve] orders a selection so those run first.
//
// # Processing
//
// [Service.Run] processes datasets one after another. Each dataset goes
// through New (source files are opened), Process, PersistToDatabase and
// SaveToFile. A failure stops that dataset only; its [RunResult] records the
// phase that failed.
//
// # Validate and Deploy
//
// [Service.ValidateAndDeploy] compares the geometry row count of each staged
// table with its production table. A staged table whose count lies within
// [floor(min*old), ceil(max*old)] is copied into production in a single
// transaction, using delete_insert or replace semantics.
//
// # Error Handling
//
// Technical errors are mapped to operator messages using [MapError]. Each
// error category has a code prefix:
//
//   - CFG: configuration
//   - FILE: source files and layers
//   - GTFS: transit feeds
//   - GEO: coordinate systems and buffers
//   - DEP: deploy and run ordering
//   - DB: database
//   - RUN: dataset selection and cancellation
package core
