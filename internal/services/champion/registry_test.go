package champion

import (
	"errors"
	"math"
	"testing"
)

func TestRegisterChallengerRejectsDuplicates(t *testing.T) {
	r := NewRegistry("champ")
	if err := r.RegisterChallenger("cand-1"); err != nil {
		t.Fatalf("RegisterChallenger: %v", err)
	}
	if err := r.RegisterChallenger("cand-1"); !errors.Is(err, ErrDuplicatePolicy) {
		t.Fatalf("got err %v, want ErrDuplicatePolicy", err)
	}
	if err := r.RegisterChallenger("champ"); !errors.Is(err, ErrDuplicatePolicy) {
		t.Fatalf("re-registering champion: got err %v, want ErrDuplicatePolicy", err)
	}
}

func TestAddPolicyReturnUnknownPolicy(t *testing.T) {
	r := NewRegistry("champ")
	if err := r.AddPolicyReturn("ghost", 0.01); !errors.Is(err, ErrUnknownPolicy) {
		t.Fatalf("got err %v, want ErrUnknownPolicy", err)
	}
}

func TestSeriesCapEvictsOldest(t *testing.T) {
	r := NewRegistry("champ")
	for i := 0; i < seriesCap+100; i++ {
		if err := r.AddPolicyReturn("champ", 0.001); err != nil {
			t.Fatalf("AddPolicyReturn(%d): %v", i, err)
		}
	}
	perf, err := r.Performance("champ")
	if err != nil {
		t.Fatalf("Performance: %v", err)
	}
	if perf.SampleCount != seriesCap {
		t.Fatalf("got %d samples, want %d", perf.SampleCount, seriesCap)
	}
}

func TestMetricsRecomputedOnAppend(t *testing.T) {
	r := NewRegistry("champ")
	for _, ret := range []float64{0.02, -0.01, 0.02, -0.01} {
		if err := r.AddPolicyReturn("champ", ret); err != nil {
			t.Fatalf("AddPolicyReturn: %v", err)
		}
	}
	perf, err := r.Performance("champ")
	if err != nil {
		t.Fatalf("Performance: %v", err)
	}
	if perf.WinRate != 0.5 {
		t.Fatalf("got win rate %v, want 0.5", perf.WinRate)
	}
	if math.Abs(perf.MaxDrawdown-0.01) > 1e-9 {
		t.Fatalf("got max drawdown %v, want 0.01", perf.MaxDrawdown)
	}
	// mean 0.005, sample stdev sqrt(3e-4)
	wantSharpe := 0.005 / math.Sqrt(3e-4)
	if math.Abs(perf.Sharpe-wantSharpe) > 1e-9 {
		t.Fatalf("got sharpe %v, want %v", perf.Sharpe, wantSharpe)
	}
}

func TestEvaluatePromotionGuards(t *testing.T) {
	r := NewRegistry("champ")
	if err := r.RegisterChallenger("cand-1"); err != nil {
		t.Fatalf("RegisterChallenger: %v", err)
	}

	if _, err := r.EvaluatePromotion("champ"); !errors.Is(err, ErrAlreadyChampion) {
		t.Fatalf("got err %v, want ErrAlreadyChampion", err)
	}
	if _, err := r.EvaluatePromotion("ghost"); !errors.Is(err, ErrUnknownPolicy) {
		t.Fatalf("got err %v, want ErrUnknownPolicy", err)
	}

	// challenger has enough history but the champion does not, so the common
	// trailing window is still too short
	for i := 0; i < minSampleSize; i++ {
		if err := r.AddPolicyReturn("cand-1", 0.01); err != nil {
			t.Fatalf("AddPolicyReturn: %v", err)
		}
	}
	if _, err := r.EvaluatePromotion("cand-1"); !errors.Is(err, ErrInsufficientSamples) {
		t.Fatalf("got err %v, want ErrInsufficientSamples", err)
	}
}

func TestConsistentOutperformancePromotes(t *testing.T) {
	r := NewRegistry("champ")
	if err := r.RegisterChallenger("cand-1"); err != nil {
		t.Fatalf("RegisterChallenger: %v", err)
	}
	for i := 0; i < 60; i++ {
		if err := r.AddPolicyReturn("champ", 0.0); err != nil {
			t.Fatalf("AddPolicyReturn champ: %v", err)
		}
		if err := r.AddPolicyReturn("cand-1", 0.01); err != nil {
			t.Fatalf("AddPolicyReturn cand-1: %v", err)
		}
	}

	out, err := r.EvaluatePromotion("cand-1")
	if err != nil {
		t.Fatalf("EvaluatePromotion: %v", err)
	}
	if !out.Promoted {
		t.Fatalf("not promoted: %+v", out)
	}
	if out.PValue > 1e-6 {
		t.Fatalf("got p-value %v, want ~0", out.PValue)
	}
	if out.SampleSize != 60 {
		t.Fatalf("got sample size %d, want 60", out.SampleSize)
	}
	if r.ChampionID() != "cand-1" {
		t.Fatalf("champion flag did not move: %s", r.ChampionID())
	}

	newChamp, _ := r.Performance("cand-1")
	oldChamp, _ := r.Performance("champ")
	if !newChamp.IsChampion || oldChamp.IsChampion {
		t.Fatalf("champion flags inconsistent: new=%v old=%v", newChamp.IsChampion, oldChamp.IsChampion)
	}
}

func TestIndistinguishableChallengerNotPromoted(t *testing.T) {
	r := NewRegistry("champ")
	if err := r.RegisterChallenger("cand-1"); err != nil {
		t.Fatalf("RegisterChallenger: %v", err)
	}
	// symmetric excess around zero: mean 0, nonzero variance
	for i := 0; i < 60; i++ {
		ret := 0.01
		if i%2 == 1 {
			ret = -0.01
		}
		if err := r.AddPolicyReturn("champ", 0.0); err != nil {
			t.Fatalf("AddPolicyReturn champ: %v", err)
		}
		if err := r.AddPolicyReturn("cand-1", ret); err != nil {
			t.Fatalf("AddPolicyReturn cand-1: %v", err)
		}
	}

	out, err := r.EvaluatePromotion("cand-1")
	if err != nil {
		t.Fatalf("EvaluatePromotion: %v", err)
	}
	if out.Promoted {
		t.Fatalf("promoted an indistinguishable challenger: %+v", out)
	}
	if math.Abs(out.PValue-0.5) > 1e-9 {
		t.Fatalf("got p-value %v, want 0.5", out.PValue)
	}
	if r.ChampionID() != "champ" {
		t.Fatalf("champion changed: %s", r.ChampionID())
	}
}

func TestZeroVarianceUnderperformerYieldsPValueOne(t *testing.T) {
	r := NewRegistry("champ")
	if err := r.RegisterChallenger("cand-1"); err != nil {
		t.Fatalf("RegisterChallenger: %v", err)
	}
	for i := 0; i < 60; i++ {
		if err := r.AddPolicyReturn("champ", 0.0); err != nil {
			t.Fatalf("AddPolicyReturn champ: %v", err)
		}
		if err := r.AddPolicyReturn("cand-1", -0.01); err != nil {
			t.Fatalf("AddPolicyReturn cand-1: %v", err)
		}
	}

	out, err := r.EvaluatePromotion("cand-1")
	if err != nil {
		t.Fatalf("EvaluatePromotion: %v", err)
	}
	if out.TStat != 0 || out.PValue != 1 || out.Promoted {
		t.Fatalf("unexpected degenerate outcome: %+v", out)
	}
}

func TestPoliciesOrdering(t *testing.T) {
	r := NewRegistry("champ")
	for _, id := range []string{"cand-b", "cand-a"} {
		if err := r.RegisterChallenger(id); err != nil {
			t.Fatalf("RegisterChallenger(%s): %v", id, err)
		}
	}
	all := r.Policies()
	if len(all) != 3 {
		t.Fatalf("got %d policies, want 3", len(all))
	}
	if all[0].PolicyID != "champ" || !all[0].IsChampion {
		t.Fatalf("champion not first: %+v", all[0])
	}
	if all[1].PolicyID != "cand-a" || all[2].PolicyID != "cand-b" {
		t.Fatalf("challengers not ordered: %s, %s", all[1].PolicyID, all[2].PolicyID)
	}
}
