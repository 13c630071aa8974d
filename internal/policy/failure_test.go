package policy

import "testing"

func TestDefaultPolicyFailsOnlyAtThirdStep(t *testing.T) {
	p := Default()
	for _, total := range []int{1, 2, 3, 5, 50} {
		for i := 0; i < total; i++ {
			want := i == 2
			if got := p.ShouldFail(i, total); got != want {
				t.Errorf("ShouldFail(%d, %d) = %v, want %v", i, total, got, want)
			}
		}
	}
}

func TestDefaultPolicyIsReproducible(t *testing.T) {
	p := Default()
	for i := 0; i < 10; i++ {
		if p.ShouldFail(2, 5) != p.ShouldFail(2, 5) {
			t.Fatal("expected identical answers for identical positions")
		}
	}
}

func TestNeverPolicy(t *testing.T) {
	var p FailurePolicy = Never{}
	for i := 0; i < 10; i++ {
		if p.ShouldFail(i, 10) {
			t.Fatalf("expected step %d to succeed", i)
		}
	}
}

func TestFailureFunc(t *testing.T) {
	p := FailureFunc(func(index, total int) bool { return index == total-1 })
	if p.ShouldFail(0, 3) || !p.ShouldFail(2, 3) {
		t.Error("expected only the last step to fail")
	}
}

func TestConfigPolicy(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Policy() != FailAt(2) {
		t.Errorf("expected FailAt(2), got %v", cfg.Policy())
	}

	cfg.FailAtIndex = 0
	if !cfg.Policy().ShouldFail(0, 1) {
		t.Error("expected first step to fail with fail_at_index=0")
	}

	cfg.FailAtIndex = -1
	if _, ok := cfg.Policy().(Never); !ok {
		t.Errorf("expected Never for negative index, got %T", cfg.Policy())
	}
}
