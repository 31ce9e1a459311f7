package core

import (
	"context"
	"errors"
	"testing"

	"github.com/haitaton/gis-material-update/internal/config"
)

// fakeProcessor records which phases ran.
type fakeProcessor struct {
	calls      *[]string
	key        string
	processErr error
}

func (p *fakeProcessor) Process(context.Context) error {
	*p.calls = append(*p.calls, p.key+":process")
	return p.processErr
}

func (p *fakeProcessor) PersistToDatabase(context.Context, *Store) error {
	*p.calls = append(*p.calls, p.key+":persist")
	return nil
}

func (p *fakeProcessor) SaveToFile() error {
	*p.calls = append(*p.calls, p.key+":save")
	return nil
}

func fakeDef(calls *[]string, key string, processErr error, deps ...string) DatasetDefinition {
	def := testDef(key, "test", deps...)
	def.New = func(Env) (Processor, error) {
		return &fakeProcessor{calls: calls, key: key, processErr: processErr}, nil
	}
	return def
}

// ============================================================================
// Run Tests
// ============================================================================

func TestService_Run(t *testing.T) {
	var calls []string
	registerTestDatasets(t,
		fakeDef(&calls, "b", nil, "a"),
		fakeDef(&calls, "a", nil),
	)

	svc := NewService(&config.Config{}, nil)
	results, err := svc.Run(t.Context(), []string{"b", "a"}, RunOptions{SkipDatabase: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []string{"a:process", "a:save", "b:process", "b:save"}
	if len(calls) != len(want) {
		t.Fatalf("calls = %v, want %v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("calls[%d] = %s, want %s", i, calls[i], want[i])
		}
	}
	if FailedRuns(results) != 0 {
		t.Errorf("failed runs = %d, want 0", FailedRuns(results))
	}
	for _, r := range results {
		if r.Phase != PhaseComplete {
			t.Errorf("%s phase = %s, want complete", r.Dataset, r.Phase)
		}
	}
}

func TestService_Run_FailureContinues(t *testing.T) {
	var calls []string
	boom := errors.New("boom")
	registerTestDatasets(t,
		fakeDef(&calls, "a", boom),
		fakeDef(&calls, "b", nil),
	)

	svc := NewService(&config.Config{}, nil)
	results, err := svc.Run(t.Context(), []string{"all"}, RunOptions{SkipDatabase: true, SkipFiles: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if FailedRuns(results) != 1 {
		t.Fatalf("failed runs = %d, want 1", FailedRuns(results))
	}
	if !errors.Is(results[0].Err, boom) || results[0].FailedIn != PhaseProcessing {
		t.Errorf("a result = %+v", results[0])
	}
	if results[1].Phase != PhaseComplete {
		t.Errorf("b phase = %s, want complete", results[1].Phase)
	}
}

func TestService_Run_NoDatabase(t *testing.T) {
	var calls []string
	registerTestDatasets(t, fakeDef(&calls, "a", nil))

	svc := NewService(&config.Config{}, nil)
	results, err := svc.Run(t.Context(), []string{"a"}, RunOptions{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !errors.Is(results[0].Err, ErrNoDatabase) || results[0].FailedIn != PhasePersisting {
		t.Errorf("result = %+v, want ErrNoDatabase while persisting", results[0])
	}
}

func TestService_Run_UnknownDataset(t *testing.T) {
	registerTestDatasets(t)

	svc := NewService(&config.Config{}, nil)
	if _, err := svc.Run(t.Context(), []string{"nope"}, RunOptions{}); !errors.Is(err, ErrUnknownDataset) {
		t.Errorf("error = %v, want ErrUnknownDataset", err)
	}
}

func TestService_Run_Cancelled(t *testing.T) {
	var calls []string
	registerTestDatasets(t, fakeDef(&calls, "a", nil))

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	svc := NewService(&config.Config{}, nil)
	results, _ := svc.Run(ctx, []string{"a"}, RunOptions{SkipDatabase: true})
	if len(calls) != 0 {
		t.Errorf("calls = %v, want none", calls)
	}
	if !errors.Is(results[0].Err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", results[0].Err)
	}
}

// ============================================================================
// Validate and Deploy Tests
// ============================================================================

func TestService_ValidateAndDeploy(t *testing.T) {
	cfg := &config.Config{Datasets: map[string]config.DatasetConfig{
		"ok":  {TormaysTableOrg: "ok", TormaysTableTemp: "ok_temp", ValidateLimitMin: 0.5, ValidateLimitMax: 1.5},
		"low": {TormaysTableOrg: "low", TormaysTableTemp: "low_temp", ValidateLimitMin: 0.9, ValidateLimitMax: 1.1},
	}}
	tormays := func(key string) func(*config.Config) []TormaysTarget {
		return func(c *config.Config) []TormaysTarget { return TormaysTargets(c, key) }
	}
	ok, low := testDef("ok", "g"), testDef("low", "g")
	ok.Tormays, low.Tormays = tormays("ok"), tormays("low")
	registerTestDatasets(t, ok, low, testDef("none", "g"))

	tests := []struct {
		name       string
		dryRun     bool
		wantDeploy bool
	}{
		{"deploy", false, true},
		{"dry run", true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := &fakeDB{counts: map[string]int64{"ok": 10, "ok_temp": 12, "low": 10, "low_temp": 5}}
			svc := NewService(cfg, NewStore(db, 0))

			results, err := svc.ValidateAndDeploy(t.Context(), []string{"all"}, tt.dryRun)
			if err != nil {
				t.Fatalf("ValidateAndDeploy: %v", err)
			}
			if len(results) != 2 {
				t.Fatalf("results = %d, want 2", len(results))
			}
			if FailedTargets(results) != 0 || RejectedTargets(results) != 1 {
				t.Errorf("failed/rejected = %d/%d, want 0/1", FailedTargets(results), RejectedTargets(results))
			}

			for _, r := range results {
				switch r.Validation.Target.Org {
				case "low":
					if r.Validation.Status != StatusBelow || r.Deploy != nil {
						t.Errorf("low = %+v", r)
					}
				case "ok":
					if !r.Validation.Valid() {
						t.Errorf("ok status = %q", r.Validation.Status)
					}
					if (r.Deploy != nil) != tt.wantDeploy {
						t.Errorf("ok deployed = %v, want %v", r.Deploy != nil, tt.wantDeploy)
					}
				}
			}
			if db.committed != tt.wantDeploy {
				t.Errorf("committed = %v, want %v", db.committed, tt.wantDeploy)
			}
		})
	}
}

func TestService_ValidateAndDeploy_NoDatabase(t *testing.T) {
	cfg := &config.Config{Datasets: map[string]config.DatasetConfig{
		"ok": {TormaysTableOrg: "ok", TormaysTableTemp: "ok_temp"},
	}}
	def := testDef("ok", "g")
	def.Tormays = func(c *config.Config) []TormaysTarget { return TormaysTargets(c, "ok") }
	registerTestDatasets(t, def)

	results, err := NewService(cfg, nil).ValidateAndDeploy(t.Context(), []string{"ok"}, false)
	if err != nil {
		t.Fatalf("ValidateAndDeploy: %v", err)
	}
	if len(results) != 1 || !errors.Is(results[0].Err, ErrNoDatabase) {
		t.Errorf("results = %+v, want ErrNoDatabase", results)
	}
}
