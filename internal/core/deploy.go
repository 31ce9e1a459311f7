package core

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/haitaton/gis-material-update/internal/config"
	"github.com/haitaton/gis-material-update/internal/logging"
)

// checkLimits accepts staged when floor(min*prod) <= staged <= ceil(max*prod).
// Zero counts are never valid.
func checkLimits(prod, staged int64, min, max float64) ValidationResult {
	r := ValidationResult{Old: prod, New: staged, Low: -1, High: -1}
	if prod <= 0 || staged <= 0 {
		r.Status = StatusNotValid
		return r
	}

	r.Low = int64(math.Floor(min * float64(prod)))
	r.High = int64(math.Ceil(max * float64(prod)))
	switch {
	case staged < r.Low:
		r.Status = StatusBelow
	case staged > r.High:
		r.Status = StatusAbove
	default:
		r.Status = StatusValid
	}
	return r
}

// Validate compares the geometry row counts of the staged and production
// tables of target. A count that cannot be read makes the result Not valid;
// the read error is returned alongside it.
func (s *Store) Validate(ctx context.Context, target TormaysTarget) (ValidationResult, error) {
	log := logging.WithFields(ctx, "org", target.Org, "temp", target.Temp)

	old, oldErr := s.CountGeometries(ctx, target.Org, target.OrgGeometry)
	if oldErr != nil {
		log.Error("count production table failed", "error", oldErr)
	}
	n, newErr := s.CountGeometries(ctx, target.Temp, geometryColumn)
	if newErr != nil {
		log.Error("count staged table failed", "error", newErr)
	}

	r := checkLimits(old, n, target.LimitMin, target.LimitMax)
	r.Target = target

	log.Info("data amount validated",
		"old", old,
		"new", n,
		"low", r.Low,
		"high", r.High,
		"status", string(r.Status),
	)
	if oldErr != nil {
		return r, oldErr
	}
	return r, newErr
}

// Deploy moves the staged table into the production table in a single
// transaction. delete_insert empties the production table and copies every
// staged row; replace recreates the production table from the staged one.
// Nothing is changed when any statement fails.
func (s *Store) Deploy(ctx context.Context, target TormaysTarget) (DeployResult, error) {
	result := DeployResult{Target: target}
	if s == nil || s.db == nil {
		return result, ErrNoDatabase
	}
	log := logging.WithFields(ctx, "org", target.Org, "temp", target.Temp, "mode", target.Mode)
	org, temp := quoteQualified(target.Org), quoteQualified(target.Temp)

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return result, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	switch target.Mode {
	case config.DeployReplace:
		if _, err := tx.Exec(ctx, "DROP TABLE IF EXISTS "+org); err != nil {
			return result, fmt.Errorf("deploy %s: drop: %w", target.Org, err)
		}
		tag, err := tx.Exec(ctx, fmt.Sprintf("CREATE TABLE %s AS SELECT * FROM %s", org, temp))
		if err != nil {
			return result, fmt.Errorf("deploy %s: create: %w", target.Org, err)
		}
		result.Inserted = tag.RowsAffected()

	case config.DeployDeleteInsert, "":
		tag, err := tx.Exec(ctx, "DELETE FROM "+org)
		if err != nil {
			return result, fmt.Errorf("deploy %s: delete: %w", target.Org, err)
		}
		result.Deleted = tag.RowsAffected()

		tag, err = tx.Exec(ctx, fmt.Sprintf("INSERT INTO %s SELECT * FROM %s", org, temp))
		if err != nil {
			return result, fmt.Errorf("deploy %s: insert: %w", target.Org, err)
		}
		result.Inserted = tag.RowsAffected()

	default:
		return result, fmt.Errorf("deploy %s: unknown deploy mode %q", target.Org, target.Mode)
	}

	if err := tx.Commit(ctx); err != nil {
		return DeployResult{Target: target}, fmt.Errorf("deploy %s: commit: %w", target.Org, err)
	}

	log.Info("deployed", "deleted", result.Deleted, "inserted", result.Inserted)
	return result, nil
}

// TormaysTargets returns the validate/deploy targets configured for dataset
// name. Table names containing "{}" yield one target per buffer distance.
func TormaysTargets(cfg *config.Config, name string) []TormaysTarget {
	ds, err := cfg.Dataset(name)
	if err != nil || ds.TormaysTableOrg == "" || ds.TormaysTableTemp == "" {
		return nil
	}

	base := TormaysTarget{
		Dataset:  name,
		Org:      ds.TormaysTableOrg,
		Temp:     ds.TormaysTableTemp,
		LimitMin: ds.ValidateLimitMin,
		LimitMax: ds.ValidateLimitMax,
		Mode:     ds.DeployMode,

		OrgGeometry: ds.TormaysGeometryColumn,
	}
	if !isTemplate(ds.TormaysTableOrg) && !isTemplate(ds.TormaysTableTemp) {
		return []TormaysTarget{base}
	}

	targets := make([]TormaysTarget, 0, len(ds.Buffer))
	for _, b := range ds.Buffer {
		t := base
		t.Org = config.ExpandTemplate(ds.TormaysTableOrg, b)
		t.Temp = config.ExpandTemplate(ds.TormaysTableTemp, b)
		targets = append(targets, t)
	}
	return targets
}

func isTemplate(s string) bool {
	return strings.Contains(s, "{}")
}
