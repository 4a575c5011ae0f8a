package loss_test

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/nao1215/forestloss/internal/loss"
	"github.com/nao1215/forestloss/internal/model"
	"github.com/nao1215/forestloss/internal/synthetic"
	"github.com/paulmach/orb"
	"go.uber.org/goleak"
)

// oneAcre is the cell area in square meters that makes each cell one acre.
const oneAcre = 1 / model.AcresPerSquareMeter

// hundredAcreFarm returns a 10x10 grid of one-acre cells with ten cells lost
// in 2022 and a region covering the whole grid.
func hundredAcreFarm(t *testing.T, opts ...synthetic.Option) (*synthetic.Grid, *model.Region) {
	t.Helper()

	opts = append([]synthetic.Option{synthetic.WithCellArea(oneAcre)}, opts...)
	g := synthetic.NewGrid(orb.Point{75.9, 13.0}, 0.0006, 10, 10, opts...)
	for col := 0; col < 10; col++ {
		if err := g.Set(3, col, 22); err != nil {
			t.Fatal(err)
		}
	}
	region, err := model.NewRegion(g.Bound().ToPolygon())
	if err != nil {
		t.Fatalf("failed to build region: %v", err)
	}
	return g, region
}

var approx = cmpopts.EquateApprox(0, 1e-9)

// TestComputeYearlyLoss tests the aggregation against a synthetic raster.
func TestComputeYearlyLoss(t *testing.T) {
	defer goleak.VerifyNone(t)

	t.Run("ten acres lost in 2022 on a hundred acre farm", func(t *testing.T) {
		g, region := hundredAcreFarm(t)

		a := loss.NewAggregator(g)
		got, err := a.ComputeYearlyLoss(context.Background(), region, []int{2020, 2021, 2022, 2023})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		want := model.YearlyLossResult{
			{Year: 2020, Acres: 0},
			{Year: 2021, Acres: 0},
			{Year: 2022, Acres: 10},
			{Year: 2023, Acres: 0},
		}
		if diff := cmp.Diff(want, got, approx); diff != "" {
			t.Errorf("result mismatch (-want +got):\n%s", diff)
		}
		if g.Calls() != 4 {
			t.Errorf("expected 4 reductions, got %d", g.Calls())
		}
	})

	t.Run("result follows request order", func(t *testing.T) {
		g, region := hundredAcreFarm(t)
		if err := g.Set(5, 5, 20); err != nil {
			t.Fatal(err)
		}

		a := loss.NewAggregator(g, loss.WithConcurrency(8))
		years := []int{2023, 2020, 2022, 2021}
		got, err := a.ComputeYearlyLoss(context.Background(), region, years)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		want := model.YearlyLossResult{
			{Year: 2023, Acres: 0},
			{Year: 2020, Acres: 1},
			{Year: 2022, Acres: 10},
			{Year: 2021, Acres: 0},
		}
		if diff := cmp.Diff(want, got, approx); diff != "" {
			t.Errorf("result mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("single 900 square meter cell", func(t *testing.T) {
		g := synthetic.NewGrid(orb.Point{75.7, 12.4}, 0.0003, 1, 1, synthetic.WithCellArea(900))
		if err := g.Set(0, 0, 21); err != nil {
			t.Fatal(err)
		}
		region, err := model.NewRegion(g.Bound().ToPolygon())
		if err != nil {
			t.Fatal(err)
		}

		got, err := loss.NewAggregator(g).ComputeYearlyLoss(context.Background(), region, []int{2021})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got) != 1 || math.Abs(got[0].Acres-0.2223) > 1e-4 {
			t.Errorf("expected about 0.2223 acres, got %v", got)
		}
	})

	t.Run("absent statistic is reported as zero", func(t *testing.T) {
		g, _ := hundredAcreFarm(t)
		outside, err := model.NewRegion(orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{0.01, 0.01}}.ToPolygon())
		if err != nil {
			t.Fatal(err)
		}

		got, err := loss.NewAggregator(g).ComputeYearlyLoss(context.Background(), outside, []int{2021, 2022})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := model.YearlyLossResult{{Year: 2021, Acres: 0}, {Year: 2022, Acres: 0}}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("result mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("years outside the dataset yield zero", func(t *testing.T) {
		g, region := hundredAcreFarm(t)

		got, err := loss.NewAggregator(g).ComputeYearlyLoss(context.Background(), region, []int{1990, 2150})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.Total() != 0 || len(got) != 2 {
			t.Errorf("expected two zero entries, got %v", got)
		}
	})

	t.Run("identical inputs give identical results", func(t *testing.T) {
		g, region := hundredAcreFarm(t)
		a := loss.NewAggregator(g)
		years := []int{2020, 2021, 2022, 2023}

		first, err := a.ComputeYearlyLoss(context.Background(), region, years)
		if err != nil {
			t.Fatal(err)
		}
		second, err := a.ComputeYearlyLoss(context.Background(), region, years)
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(first, second); diff != "" {
			t.Errorf("results differ (-first +second):\n%s", diff)
		}
	})

	t.Run("empty years list", func(t *testing.T) {
		g, region := hundredAcreFarm(t)

		got, err := loss.NewAggregator(g).ComputeYearlyLoss(context.Background(), region, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got) != 0 {
			t.Errorf("expected empty result, got %v", got)
		}
		if g.Calls() != 0 {
			t.Errorf("expected no reductions, got %d", g.Calls())
		}
	})
}

// TestComputeYearlyLossErrors tests the error taxonomy.
func TestComputeYearlyLossErrors(t *testing.T) {
	defer goleak.VerifyNone(t)

	t.Run("invalid region makes no remote call", func(t *testing.T) {
		g, _ := hundredAcreFarm(t)

		for _, region := range []*model.Region{nil, {}} {
			_, err := loss.NewAggregator(g).ComputeYearlyLoss(context.Background(), region, []int{2022})
			if !errors.Is(err, loss.ErrInvalidRegion) {
				t.Errorf("expected ErrInvalidRegion, got %v", err)
			}
			if !errors.Is(err, model.ErrEmptyRegion) {
				t.Errorf("expected the cause to be kept, got %v", err)
			}
		}
		if g.Calls() != 0 {
			t.Errorf("expected no reductions, got %d", g.Calls())
		}
	})

	t.Run("non-positive year", func(t *testing.T) {
		g, region := hundredAcreFarm(t)

		_, err := loss.NewAggregator(g).ComputeYearlyLoss(context.Background(), region, []int{2022, 0})
		if !errors.Is(err, loss.ErrInvalidYear) {
			t.Errorf("expected ErrInvalidYear, got %v", err)
		}
		if g.Calls() != 0 {
			t.Errorf("expected no reductions, got %d", g.Calls())
		}
	})

	t.Run("request timeout is a service failure", func(t *testing.T) {
		g, region := hundredAcreFarm(t, synthetic.WithLatency(time.Second))

		a := loss.NewAggregator(g, loss.WithRequestTimeout(10*time.Millisecond))
		got, err := a.ComputeYearlyLoss(context.Background(), region, []int{2020, 2021, 2022})
		if !errors.Is(err, loss.ErrServiceUnavailable) {
			t.Errorf("expected ErrServiceUnavailable, got %v", err)
		}
		if got != nil {
			t.Errorf("expected no partial result, got %v", got)
		}
	})

	t.Run("service error is passed through", func(t *testing.T) {
		g, region := hundredAcreFarm(t, synthetic.WithError(loss.ErrServiceUnavailable))

		_, err := loss.NewAggregator(g).ComputeYearlyLoss(context.Background(), region, []int{2020, 2021})
		if !errors.Is(err, loss.ErrServiceUnavailable) {
			t.Errorf("expected ErrServiceUnavailable, got %v", err)
		}
		if errors.Is(err, loss.ErrComputationFailed) {
			t.Error("expected a single classification")
		}
	})

	t.Run("unclassified error is a computation failure", func(t *testing.T) {
		g, region := hundredAcreFarm(t, synthetic.WithError(errors.New("Image.load: asset not found")))

		_, err := loss.NewAggregator(g).ComputeYearlyLoss(context.Background(), region, []int{2020})
		if !errors.Is(err, loss.ErrComputationFailed) {
			t.Errorf("expected ErrComputationFailed, got %v", err)
		}
	})

	t.Run("failed session makes no reduction", func(t *testing.T) {
		g, region := hundredAcreFarm(t)
		b := &sessionBackend{Backend: g, sessionErr: loss.ErrServiceUnavailable}

		_, err := loss.NewAggregator(b).ComputeYearlyLoss(context.Background(), region, []int{2020})
		if !errors.Is(err, loss.ErrServiceUnavailable) {
			t.Errorf("expected ErrServiceUnavailable, got %v", err)
		}
		if g.Calls() != 0 {
			t.Errorf("expected no reductions, got %d", g.Calls())
		}
	})
}

// TestComputeYearlyLossValues tests handling of values returned by a backend.
func TestComputeYearlyLossValues(t *testing.T) {
	t.Parallel()

	_, region := hundredAcreFarm(t)

	tests := []struct {
		name    string
		value   float64
		wantErr bool
	}{
		{"zero", 0, false},
		{"positive", 3.5, false},
		{"negative", -1, true},
		{"NaN", math.NaN(), true},
		{"infinite", math.Inf(1), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			b := fixedBackend(tt.value)
			got, err := loss.NewAggregator(b).ComputeYearlyLoss(context.Background(), region, []int{2022})
			if tt.wantErr {
				if !errors.Is(err, loss.ErrComputationFailed) {
					t.Errorf("expected ErrComputationFailed, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got[0].Acres != tt.value {
				t.Errorf("expected %f, got %f", tt.value, got[0].Acres)
			}
		})
	}
}

// TestComputeYearlyLossSession tests that the session is ensured once per call.
func TestComputeYearlyLossSession(t *testing.T) {
	t.Parallel()

	g, region := hundredAcreFarm(t)
	b := &sessionBackend{Backend: g}
	a := loss.NewAggregator(b)

	for range 2 {
		if _, err := a.ComputeYearlyLoss(context.Background(), region, []int{2022, 2023}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if got := b.ensured.Load(); got != 2 {
		t.Errorf("expected EnsureSession per computation, got %d", got)
	}
}

// TestAggregatorDataset tests the dataset option.
func TestAggregatorDataset(t *testing.T) {
	t.Parallel()

	if got := loss.NewAggregator(nil).Dataset(); got != loss.DefaultDataset {
		t.Errorf("expected default dataset, got %s", got)
	}
	if got := loss.NewAggregator(nil, loss.WithDataset("UMD/hansen/custom")).Dataset(); got != "UMD/hansen/custom" {
		t.Errorf("expected custom dataset, got %s", got)
	}
}

type fixedBackend float64

func (f fixedBackend) ReduceSumOverRegion(context.Context, loss.Expression, *model.Region, float64, float64) (*float64, error) {
	v := float64(f)
	return &v, nil
}

type sessionBackend struct {
	loss.Backend
	sessionErr error
	ensured    atomic.Int64
}

func (s *sessionBackend) EnsureSession(context.Context) error {
	s.ensured.Add(1)
	return s.sessionErr
}
