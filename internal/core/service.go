package core

import (
	"context"
	"fmt"
	"time"

	"github.com/haitaton/gis-material-update/internal/config"
	"github.com/haitaton/gis-material-update/internal/logging"
)

// Service runs registered datasets and deploys their results.
type Service struct {
	cfg   *config.Config
	store *Store
}

// NewService creates a new Service instance. store may be nil when no
// database work is requested.
func NewService(cfg *config.Config, store *Store) *Service {
	return &Service{cfg: cfg, store: store}
}

// ListDatasets returns information about all registered datasets.
func (s *Service) ListDatasets() []DatasetInfo {
	defs := All()
	infos := make([]DatasetInfo, len(defs))
	for i, def := range defs {
		infos[i] = def.Info
	}
	return infos
}

// ListDatasetsByGroup returns datasets organized by group.
func (s *Service) ListDatasetsByGroup() map[string][]DatasetInfo {
	result := make(map[string][]DatasetInfo)
	for _, group := range Groups() {
		for _, def := range ByGroup(group) {
			result[group] = append(result[group], def.Info)
		}
	}
	return result
}

// Run processes the datasets named by keys one after another. A failing
// dataset is recorded in its result and the run continues with the next
// one. The error is non-nil only when keys cannot be resolved.
func (s *Service) Run(ctx context.Context, keys []string, opts RunOptions) ([]RunResult, error) {
	defs, err := Resolve(keys)
	if err != nil {
		return nil, err
	}

	results := make([]RunResult, 0, len(defs))
	for _, def := range defs {
		if ctx.Err() != nil {
			results = append(results, RunResult{Dataset: def.Info.Key, Phase: PhaseFailed, FailedIn: PhaseStarting, Err: ctx.Err()})
			continue
		}
		results = append(results, s.runDataset(ctx, def, opts))
	}
	return results, nil
}

func (s *Service) runDataset(ctx context.Context, def DatasetDefinition, opts RunOptions) RunResult {
	ctx = logging.WithDataset(ctx, def.Info.Key)
	ctx, cancel := context.WithTimeout(ctx, RunTimeout)
	defer cancel()

	log := logging.FromContext(ctx)
	start := time.Now()
	result := RunResult{Dataset: def.Info.Key, Phase: PhaseStarting}

	fail := func(err error) RunResult {
		result.FailedIn = result.Phase
		result.Phase = PhaseFailed
		result.Err = err
		result.Duration = time.Since(start)
		log.Error("dataset failed", "phase", string(result.FailedIn), "error", err, "duration", result.Duration)
		return result
	}

	log.Info("dataset started", "label", def.Info.Label)

	p, err := def.New(Env{Config: s.cfg})
	if err != nil {
		return fail(err)
	}

	result.Phase = PhaseProcessing
	if err := p.Process(ctx); err != nil {
		return fail(fmt.Errorf("process: %w", err))
	}

	if !opts.SkipDatabase {
		result.Phase = PhasePersisting
		if s.store == nil {
			return fail(ErrNoDatabase)
		}
		if err := p.PersistToDatabase(ctx, s.store); err != nil {
			return fail(fmt.Errorf("persist: %w", err))
		}
	}

	if !opts.SkipFiles {
		result.Phase = PhaseSaving
		if err := p.SaveToFile(); err != nil {
			return fail(fmt.Errorf("save: %w", err))
		}
	}

	result.Phase = PhaseComplete
	result.Duration = time.Since(start)
	log.Info("dataset complete", "duration", result.Duration)
	return result
}

// ValidateAndDeploy validates every tormays target of the datasets named by
// keys and deploys the valid ones unless dryRun is set. Targets are handled
// independently; a failing target does not stop the others.
func (s *Service) ValidateAndDeploy(ctx context.Context, keys []string, dryRun bool) ([]TargetResult, error) {
	defs, err := Resolve(keys)
	if err != nil {
		return nil, err
	}

	var results []TargetResult
	for _, def := range defs {
		if def.Tormays == nil {
			continue
		}
		dsCtx := logging.WithDataset(ctx, def.Info.Key)
		targets := def.Tormays(s.cfg)
		if len(targets) == 0 {
			logging.FromContext(dsCtx).Warn("no tormays tables configured")
			continue
		}
		for _, target := range targets {
			results = append(results, s.validateAndDeploy(dsCtx, target, dryRun))
		}
	}
	return results, nil
}

func (s *Service) validateAndDeploy(ctx context.Context, target TormaysTarget, dryRun bool) TargetResult {
	ctx, cancel := context.WithTimeout(ctx, DeployTimeout)
	defer cancel()

	log := logging.WithFields(ctx, "org", target.Org)

	v, err := s.store.Validate(ctx, target)
	result := TargetResult{Validation: v, Err: err}
	if err != nil || !v.Valid() {
		log.Error("data amount validation result", "status", string(v.Status))
		return result
	}
	if dryRun {
		log.Info("dry run, deploy skipped")
		return result
	}

	d, err := s.store.Deploy(ctx, target)
	if err != nil {
		log.Error("deploy failed, transaction rolled back", "error", err)
		result.Err = err
		return result
	}
	result.Deploy = &d
	return result
}

// FailedRuns returns the number of failed dataset runs.
func FailedRuns(results []RunResult) int {
	n := 0
	for _, r := range results {
		if r.Phase == PhaseFailed {
			n++
		}
	}
	return n
}

// FailedTargets returns the number of targets whose validation or deploy
// returned an error.
func FailedTargets(results []TargetResult) int {
	n := 0
	for _, r := range results {
		if r.Err != nil {
			n++
		}
	}
	return n
}

// RejectedTargets returns the number of targets whose data amount was out of
// limits. Rejections are expected outcomes and are not counted as failures.
func RejectedTargets(results []TargetResult) int {
	n := 0
	for _, r := range results {
		if r.Err == nil && !r.Validation.Valid() {
			n++
		}
	}
	return n
}
