package scheduler_test

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/betarena/market-engine/internal/betting"
	"github.com/betarena/market-engine/internal/metrics"
	"github.com/betarena/market-engine/internal/model"
	"github.com/betarena/market-engine/internal/scheduler"
	"github.com/betarena/market-engine/internal/store"
)

func TestReconcile_RepairsRanksAndGauge(t *testing.T) {
	ctx := context.Background()
	ms := store.NewMemoryStore()
	svc := betting.NewService(ms, betting.DefaultConfig(), nil, nil)

	for _, title := range []string{"A", "B", "C"} {
		if _, err := svc.CreateContract(ctx, betting.CreateContractRequest{Title: title}); err != nil {
			t.Fatalf("create contract: %v", err)
		}
	}
	contracts, _ := ms.ListContracts(ctx)
	ms.CloseContract(ctx, contracts[0].ID, model.SideNo)

	// Rows saved by another writer without ranks.
	ms.SaveRanking(ctx, &model.UserRanking{UserID: "x", Tier: "Rookie", RankPoints: 10})
	ms.SaveRanking(ctx, &model.UserRanking{UserID: "y", Tier: "Rookie", RankPoints: 40})
	metrics.ActiveContracts.Set(99)

	s := scheduler.New(svc, "@every 1h")
	if err := s.Reconcile(ctx); err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	if got := testutil.ToFloat64(metrics.ActiveContracts); got != 2 {
		t.Errorf("expected gauge 2, got %v", got)
	}
	y, _ := ms.GetRanking(ctx, "y")
	x, _ := ms.GetRanking(ctx, "x")
	if y.GlobalRank != 1 || x.GlobalRank != 2 || x.TierRank != 2 {
		t.Errorf("unexpected ranks y=%+v x=%+v", y, x)
	}
}

type brokenRanker struct{}

func (brokenRanker) RecomputeRanks(context.Context) error { return errors.New("db down") }

func (brokenRanker) ActiveContractCount(context.Context) (int, error) { return 5, nil }

func TestReconcile_ReportsRankError(t *testing.T) {
	s := scheduler.New(brokenRanker{}, "@every 1h")
	if err := s.Reconcile(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if got := testutil.ToFloat64(metrics.ActiveContracts); got != 5 {
		t.Errorf("gauge should still refresh, got %v", got)
	}
}

func TestStartStop(t *testing.T) {
	s := scheduler.New(brokenRanker{}, "not a schedule")
	if err := s.Start(); err == nil {
		t.Error("expected error for invalid schedule")
	}

	s = scheduler.New(brokenRanker{}, "0 */5 * * * *")
	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	s.Stop()
}
