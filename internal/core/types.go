package core

import (
	"context"
	"time"

	"github.com/haitaton/gis-material-update/internal/config"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the interface for database operations.
// Satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
	SendBatch(context.Context, *pgx.Batch) pgx.BatchResults
}

// TxBeginner is a DBTX that can open transactions. Satisfied by *pgxpool.Pool.
type TxBeginner interface {
	DBTX
	Begin(context.Context) (pgx.Tx, error)
}

// Processor turns the source material of one dataset into tormays GIS
// material. Process must run before PersistToDatabase and SaveToFile.
type Processor interface {
	Process(ctx context.Context) error
	PersistToDatabase(ctx context.Context, store *Store) error
	SaveToFile() error
}

// Env is what a processor is built from.
type Env struct {
	Config *config.Config
}

// DatasetInfo contains display information about a dataset.
type DatasetInfo struct {
	Key   string // Config section and CLI name: "hsl"
	Group string // Source family: "transit", "infra", "streets", "areas"
	Label string // Display name: "HSL bus lines"
}

// TormaysTarget is a staged polygon table and the production table it is
// deployed into.
type TormaysTarget struct {
	Dataset  string
	Org      string
	Temp     string
	LimitMin float64
	LimitMax float64
	Mode     string

	// OrgGeometry is the geometry column counted in Org. Empty means
	// geometry.
	OrgGeometry string
}

// DatasetDefinition contains everything needed to run a dataset.
type DatasetDefinition struct {
	Info DatasetInfo

	// DependsOn lists datasets whose output files this dataset reads.
	DependsOn []string

	// New builds the processor. Source files are opened here so missing
	// inputs fail before any processing starts.
	New func(Env) (Processor, error)

	// Tormays returns the deployable tables of the dataset. Nil means the
	// dataset has nothing to validate or deploy.
	Tormays func(*config.Config) []TormaysTarget
}

// RunPhase indicates the current stage of a dataset run.
type RunPhase string

const (
	PhaseStarting   RunPhase = "starting"
	PhaseProcessing RunPhase = "processing"
	PhasePersisting RunPhase = "persisting"
	PhaseSaving     RunPhase = "saving"
	PhaseComplete   RunPhase = "complete"
	PhaseFailed     RunPhase = "failed"
)

// RunOptions selects which outputs a run produces.
type RunOptions struct {
	SkipDatabase bool
	SkipFiles    bool
}

// RunResult contains the outcome of one dataset run. FailedIn is the phase
// that was running when Err occurred.
type RunResult struct {
	Dataset  string
	Phase    RunPhase
	FailedIn RunPhase
	Duration time.Duration
	Err      error
}

// ValidationStatus is the outcome of a data amount check.
type ValidationStatus string

const (
	StatusValid    ValidationStatus = "Valid"
	StatusBelow    ValidationStatus = "Data amount is Below given limits"
	StatusAbove    ValidationStatus = "Data amount is Above given limits"
	StatusNotValid ValidationStatus = "Not valid"
)

// ValidationResult compares the staged row count against the production
// row count. Low and High are the accepted bounds, or -1 when they could
// not be computed.
type ValidationResult struct {
	Target TormaysTarget
	Status ValidationStatus
	Old    int64
	New    int64
	Low    int64
	High   int64
}

// Valid reports whether the staged table may be deployed.
func (r ValidationResult) Valid() bool {
	return r.Status == StatusValid
}

// DeployResult contains the row counts of a deploy transaction.
type DeployResult struct {
	Target   TormaysTarget
	Deleted  int64
	Inserted int64
}

// TargetResult is the validate and deploy outcome of one target. Deploy is
// nil when the target was not deployed.
type TargetResult struct {
	Validation ValidationResult
	Deploy     *DeployResult
	Err        error
}
