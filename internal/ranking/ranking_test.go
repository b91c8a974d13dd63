package ranking

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/betarena/market-engine/internal/model"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

var now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func win(amount, odds float64) Outcome {
	o := d(odds)
	return Outcome{
		Result:           Win,
		Amount:           d(amount),
		Odds:             o,
		IsUnderdog:       o.GreaterThan(d(2)),
		IsHighConfidence: d(amount).GreaterThan(d(100)),
	}
}

func loss(amount float64) Outcome {
	return Outcome{Result: Loss, Amount: d(amount), Odds: d(2)}
}

// --- Tier tests ---

func TestTierFromPoints_Boundaries(t *testing.T) {
	tests := []struct {
		points int64
		want   Tier
	}{
		{-40, Rookie},
		{0, Rookie},
		{100, Rookie},
		{101, Amateur},
		{500, Amateur},
		{501, SemiPro},
		{1500, SemiPro},
		{1501, Professional},
		{5000, Professional},
		{5001, Expert},
		{15000, Expert},
		{15001, Master},
		{50000, Master},
		{50001, Legend},
		{9_000_000, Legend},
	}
	for _, tc := range tests {
		if got := TierFromPoints(tc.points); got != tc.want {
			t.Errorf("TierFromPoints(%d) = %s, want %s", tc.points, got, tc.want)
		}
	}
}

func TestBands_ContiguousAndOrdered(t *testing.T) {
	for i := 1; i < len(Bands); i++ {
		if Bands[i].Min != Bands[i-1].Max+1 {
			t.Errorf("band %s starts at %d, previous ends at %d",
				Bands[i].Tier, Bands[i].Min, Bands[i-1].Max)
		}
	}
	if len(Bands) != 7 {
		t.Errorf("expected 7 tiers, got %d", len(Bands))
	}
}

func TestBandFor_UnknownFallsBackToRookie(t *testing.T) {
	if b := BandFor("Grandmaster"); b.Tier != Rookie {
		t.Errorf("expected Rookie band, got %s", b.Tier)
	}
	if b := BandFor(Master); b.Min != 15001 || b.Max != 50000 {
		t.Errorf("unexpected Master band %+v", b)
	}
}

// --- Points tests ---

func TestBetPoints(t *testing.T) {
	tests := []struct {
		name string
		o    Outcome
		want int64
	}{
		{"plain win at even odds", win(50, 2.0), 20},
		{"underdog and high confidence", win(150, 3.0), 180},
		{"underdog only", win(50, 3.0), 90},
		{"high confidence only", win(150, 1.5), 30},
		{"rounds to nearest", win(10, 1.83), 18},
		{"rounds half up", win(10, 1.25), 13},
		{"stake of exactly 100 is not high confidence", win(100, 2.0), 20},
		{"loss", loss(500), -5},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := BetPoints(tc.o); got != tc.want {
				t.Errorf("BetPoints = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestBetPoints_UnderdogFlagRequiresOddsAboveTwo(t *testing.T) {
	o := win(50, 2.0)
	o.IsUnderdog = true
	if got := BetPoints(o); got != 20 {
		t.Errorf("odds of exactly 2 must not triple, got %d", got)
	}
}

func TestStreakBonus(t *testing.T) {
	tests := []struct {
		streak int
		want   int64
	}{
		{-1, 0},
		{0, 0},
		{1, 5},
		{4, 20},
		{10, 50},
		{11, 50},
		{20, 50},
	}
	for _, tc := range tests {
		if got := StreakBonus(tc.streak); got != tc.want {
			t.Errorf("StreakBonus(%d) = %d, want %d", tc.streak, got, tc.want)
		}
	}
}

// --- Transition tests ---

func TestApply_FirstWin(t *testing.T) {
	r, c := Apply(New("u1", now), win(150, 3.0), now)

	if c.BetPoints != 180 {
		t.Errorf("expected 180 base points, got %d", c.BetPoints)
	}
	if c.StreakBonus != 5 {
		t.Errorf("expected streak bonus 5, got %d", c.StreakBonus)
	}
	if r.RankPoints != 185 {
		t.Errorf("expected 185 points, got %d", r.RankPoints)
	}
	if r.Tier != string(Amateur) {
		t.Errorf("expected Amateur, got %s", r.Tier)
	}
	if r.WinStreak != 1 || r.BestStreak != 1 || r.LossStreak != 0 {
		t.Errorf("unexpected streaks win=%d best=%d loss=%d", r.WinStreak, r.BestStreak, r.LossStreak)
	}
	if c.PreviousTier != Rookie || c.NewTier != Amateur {
		t.Errorf("expected Rookie → Amateur, got %s → %s", c.PreviousTier, c.NewTier)
	}
}

func TestApply_LossResetsWinStreakAndGoesNegative(t *testing.T) {
	r := New("u1", now)
	r, _ = Apply(r, win(10, 2.0), now)
	r, _ = Apply(r, win(10, 2.0), now)
	before := r.RankPoints

	r, c := Apply(r, loss(10), now)
	if c.StreakBonus != 0 {
		t.Errorf("loss must not earn a streak bonus, got %d", c.StreakBonus)
	}
	if r.RankPoints != before-5 {
		t.Errorf("expected %d points, got %d", before-5, r.RankPoints)
	}
	if r.WinStreak != 0 || r.LossStreak != 1 || r.BestStreak != 2 {
		t.Errorf("unexpected streaks win=%d best=%d loss=%d", r.WinStreak, r.BestStreak, r.LossStreak)
	}

	fresh := New("u2", now)
	fresh, _ = Apply(fresh, loss(10), now)
	fresh, _ = Apply(fresh, loss(10), now)
	if fresh.RankPoints != -10 {
		t.Errorf("points have no floor: expected -10, got %d", fresh.RankPoints)
	}
	if fresh.Tier != string(Rookie) {
		t.Errorf("negative points should stay Rookie, got %s", fresh.Tier)
	}
	if fresh.LossStreak != 2 {
		t.Errorf("expected loss streak 2, got %d", fresh.LossStreak)
	}
}

func TestApply_StreakBonusCapsAtFifty(t *testing.T) {
	r := New("u1", now)
	var c Change
	for i := 0; i < 20; i++ {
		r, c = Apply(r, win(10, 1.0), now)
	}
	if r.WinStreak != 20 {
		t.Fatalf("expected win streak 20, got %d", r.WinStreak)
	}
	if c.StreakBonus != 50 {
		t.Errorf("expected capped streak bonus 50, got %d", c.StreakBonus)
	}
}

func TestApply_BestStreakSurvivesReset(t *testing.T) {
	r := New("u1", now)
	for i := 0; i < 3; i++ {
		r, _ = Apply(r, win(10, 2.0), now)
	}
	r, _ = Apply(r, loss(10), now)
	r, _ = Apply(r, win(10, 2.0), now)
	if r.BestStreak != 3 {
		t.Errorf("expected best streak 3, got %d", r.BestStreak)
	}
	if r.WinStreak != 1 {
		t.Errorf("expected win streak 1, got %d", r.WinStreak)
	}
}

// --- Outcome derivation ---

func TestOutcomeForBet(t *testing.T) {
	b := &model.Bet{
		Amount:        d(150),
		PurchasePrice: d(0.25),
		PayoutAmount:  d(600),
	}
	o := OutcomeForBet(b)
	if o.Result != Win {
		t.Errorf("positive payout should be a win")
	}
	if !o.Odds.Equal(d(4)) {
		t.Errorf("expected odds 4, got %s", o.Odds)
	}
	if !o.IsUnderdog || !o.IsHighConfidence {
		t.Errorf("expected underdog and high confidence, got %+v", o)
	}

	lost := OutcomeForBet(&model.Bet{Amount: d(50), PurchasePrice: d(0.5)})
	if lost.Result != Loss || lost.IsUnderdog || lost.IsHighConfidence {
		t.Errorf("unexpected outcome for losing bet: %+v", lost)
	}
}

func TestOutcomeForBet_ZeroPriceUsesUnitOdds(t *testing.T) {
	o := OutcomeForBet(&model.Bet{Amount: d(10), PayoutAmount: d(10)})
	if !o.Odds.Equal(d(1)) {
		t.Errorf("expected odds 1 for zero purchase price, got %s", o.Odds)
	}
}

// --- Recompute tests ---

func TestRecompute_GlobalAndTierRanks(t *testing.T) {
	rows := []model.UserRanking{
		{UserID: "a", RankPoints: 50, Tier: string(Rookie)},
		{UserID: "b", RankPoints: 700, Tier: string(SemiPro)},
		{UserID: "c", RankPoints: 120, Tier: string(Amateur)},
		{UserID: "d", RankPoints: 90, Tier: string(Rookie)},
		{UserID: "e", RankPoints: -5, Tier: string(Rookie)},
		{UserID: "f", RankPoints: 300, Tier: string(Amateur)},
	}
	got := Recompute(rows)

	want := map[string][2]int{
		"b": {1, 1},
		"f": {2, 1},
		"c": {3, 2},
		"d": {4, 1},
		"a": {5, 2},
		"e": {6, 3},
	}
	if len(got) != len(rows) {
		t.Fatalf("expected %d assignments, got %d", len(rows), len(got))
	}
	for _, a := range got {
		w := want[a.UserID]
		if a.GlobalRank != w[0] || a.TierRank != w[1] {
			t.Errorf("user %s: global=%d tier=%d, want global=%d tier=%d",
				a.UserID, a.GlobalRank, a.TierRank, w[0], w[1])
		}
	}
	if rows[0].UserID != "a" {
		t.Error("input slice must not be reordered")
	}
}

func TestRecompute_TiesBrokenByUserID(t *testing.T) {
	rows := []model.UserRanking{
		{UserID: "zed", RankPoints: 10, Tier: string(Rookie)},
		{UserID: "amy", RankPoints: 10, Tier: string(Rookie)},
	}
	got := Recompute(rows)
	if got[0].UserID != "amy" || got[1].UserID != "zed" {
		t.Errorf("expected amy before zed, got %s, %s", got[0].UserID, got[1].UserID)
	}
}

func TestRecompute_Empty(t *testing.T) {
	if got := Recompute(nil); len(got) != 0 {
		t.Errorf("expected no assignments, got %d", len(got))
	}
}

func TestApplyRanks(t *testing.T) {
	rows := []model.UserRanking{
		{UserID: "a", RankPoints: 5, Tier: string(Rookie)},
		{UserID: "b", RankPoints: 200, Tier: string(Amateur)},
	}
	ApplyRanks(rows, Recompute(rows))
	if rows[0].GlobalRank != 2 || rows[0].TierRank != 1 {
		t.Errorf("unexpected ranks for a: %+v", rows[0])
	}
	if rows[1].GlobalRank != 1 || rows[1].TierRank != 1 {
		t.Errorf("unexpected ranks for b: %+v", rows[1])
	}
}
