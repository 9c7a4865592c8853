package sample

import (
	"math"
	"testing"
)

func TestTemperature(t *testing.T) {
	got, err := Temperature(0.5).Apply([]float64{2, -1, 4, -3, 1, -2, 0})
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{-4, -10, 0, -14, -6, -12, -8}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-6 {
			t.Fatalf("got %v, want %v", got, want)
		}
	}

	if _, err := Temperature(0).Apply([]float64{1}); err == nil {
		t.Error("expected error for temperature 0")
	}
	if _, err := Temperature(3).Apply([]float64{1}); err == nil {
		t.Error("expected error for temperature above 2")
	}
}

func TestTopK(t *testing.T) {
	got, err := TopK(2).Apply([]float64{1, 4, 2, 3})
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range got {
		keep := i == 1 || i == 3
		if keep && math.IsInf(v, -1) {
			t.Errorf("index %d should survive top-k", i)
		}
		if !keep && !math.IsInf(v, -1) {
			t.Errorf("index %d should be masked, got %v", i, v)
		}
	}

	// k >= len is a no-op
	got, err = TopK(10).Apply([]float64{1, 2})
	if err != nil {
		t.Fatal(err)
	}
	for _, v := range got {
		if math.IsInf(v, -1) {
			t.Error("k >= len must keep all logits")
		}
	}

	if _, err := TopK(0).Apply([]float64{1}); err == nil {
		t.Error("expected error for k = 0")
	}
}

func TestTopP(t *testing.T) {
	// one dominant logit: a tight p keeps only it
	got, err := TopP(0.9).Apply([]float64{10, 0, 0, 0})
	if err != nil {
		t.Fatal(err)
	}
	if math.IsInf(got[0], -1) {
		t.Error("dominant logit must survive")
	}
	for i, v := range got[1:] {
		if !math.IsInf(v, -1) {
			t.Errorf("index %d should be masked, got %v", i+1, v)
		}
	}

	if _, err := TopP(0).Apply([]float64{1}); err == nil {
		t.Error("expected error for p = 0")
	}
	if _, err := TopP(1).Apply([]float64{1}); err == nil {
		t.Error("expected error for p = 1")
	}
}

func TestMinP(t *testing.T) {
	got, err := MinP(0.5).Apply([]float64{10, 9.9, 0})
	if err != nil {
		t.Fatal(err)
	}
	if math.IsInf(got[0], -1) || math.IsInf(got[1], -1) {
		t.Error("near-max logits must survive min-p")
	}
	if !math.IsInf(got[2], -1) {
		t.Error("far-below-max logit should be masked")
	}
}

func TestGreedy(t *testing.T) {
	id, err := Greedy().Sample([]float32{0.1, 0.9, 0.3})
	if err != nil {
		t.Fatal(err)
	}
	if id != 1 {
		t.Errorf("Sample = %d, want 1", id)
	}
}

func TestGreedySkipsMasked(t *testing.T) {
	inf := float32(math.Inf(-1))
	id, err := Greedy().Sample([]float32{inf, 0.2, 0.8, inf})
	if err != nil {
		t.Fatal(err)
	}
	if id != 2 {
		t.Errorf("Sample = %d, want 2", id)
	}

	if _, err := Greedy().Sample([]float32{inf, inf}); err == nil {
		t.Error("expected error when every token is masked")
	}
}

func TestWeightedRespectsMask(t *testing.T) {
	inf := float32(math.Inf(-1))
	seed := int64(42)
	s := Weighted(&seed)
	for range 50 {
		id, err := s.Sample([]float32{inf, 1, inf, 2})
		if err != nil {
			t.Fatal(err)
		}
		if id != 1 && id != 3 {
			t.Fatalf("sampled masked token %d", id)
		}
	}

	if _, err := s.Sample([]float32{inf, inf}); err == nil {
		t.Error("expected error when every token is masked")
	}
}

func TestWeightedSeedReproducible(t *testing.T) {
	logits := []float32{1, 2, 3, 4}
	draw := func() []int32 {
		seed := int64(7)
		s := Weighted(&seed)
		out := make([]int32, 20)
		for i := range out {
			id, err := s.Sample(logits)
			if err != nil {
				t.Fatal(err)
			}
			out[i] = id
		}
		return out
	}

	a, b := draw(), draw()
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("draw %d differs: %d vs %d", i, a[i], b[i])
		}
	}
}
