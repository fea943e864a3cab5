package store

import "testing"

func TestPolicyExcess(t *testing.T) {
	tests := []struct {
		name     string
		policy   Policy
		existing int
		want     int
	}{
		{"empty", DefaultPolicy(), 0, 0},
		{"below cap", DefaultPolicy(), 11, 0},
		{"at cap", DefaultPolicy(), 12, 2},
		{"above cap", DefaultPolicy(), 13, 3},
		{"far above cap", DefaultPolicy(), 30, 20},
		{"zero reserve", Policy{MaxTurns: 12, Reserve: 0}, 12, 0},
		{"zero reserve above", Policy{MaxTurns: 12, Reserve: 0}, 15, 3},
		{"disabled", Policy{}, 100, 0},
		{"reserve larger than cap", Policy{MaxTurns: 1, Reserve: 5}, 2, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.policy.Excess(tt.existing)
			if got != tt.want {
				t.Errorf("Excess(%d) = %d, want %d", tt.existing, got, tt.want)
			}
		})
	}
}

func TestPolicyKeepsCapAfterAppend(t *testing.T) {
	p := DefaultPolicy()
	for existing := p.MaxTurns; existing < 40; existing++ {
		after := existing - p.Excess(existing) + 2
		if after != p.MaxTurns {
			t.Errorf("existing=%d: %d turns after append, want %d", existing, after, p.MaxTurns)
		}
	}
}
