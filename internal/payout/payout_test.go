package payout

import (
	"testing"

	"github.com/holiman/uint256"
)

func u(v uint64) *uint256.Int { return uint256.NewInt(v) }

func mustCompute(t *testing.T, scheme Scheme, fee *uint256.Int, n uint32, bps uint16, k int) *Split {
	t.Helper()
	s, err := Compute(scheme, fee, n, bps, k)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	return s
}

func assertConserved(t *testing.T, s *Split) {
	t.Helper()
	sum := new(uint256.Int).Set(s.Fee)
	for _, p := range s.Payouts {
		sum.Add(sum, p)
	}
	if !sum.Eq(s.Pool) {
		t.Fatalf("fee+payouts=%s, pool=%s", sum, s.Pool)
	}
	for i := 1; i < len(s.Payouts); i++ {
		if s.Payouts[i].Gt(s.Payouts[i-1]) {
			t.Fatalf("rank order violated: payout[%d]=%s > payout[%d]=%s",
				i, s.Payouts[i], i-1, s.Payouts[i-1])
		}
	}
}

func TestEqualSplitTwoPlayers(t *testing.T) {
	// entry_fee=10^15, 2 players, 250 bps, 2 winners:
	// pool=2e15, fee=5e13, available=1.95e15, each winner 975e12.
	entry := new(uint256.Int)
	entry.Exp(u(10), u(15))

	s := mustCompute(t, SchemeEqual, entry, 2, 250, 2)
	assertConserved(t, s)

	if want := u(2_000_000_000_000_000); !s.Pool.Eq(want) {
		t.Fatalf("pool=%s, want %s", s.Pool, want)
	}
	if want := u(50_000_000_000_000); !s.Fee.Eq(want) {
		t.Fatalf("fee=%s, want %s", s.Fee, want)
	}
	if want := u(1_950_000_000_000_000); !s.Available.Eq(want) {
		t.Fatalf("available=%s, want %s", s.Available, want)
	}
	want := u(975_000_000_000_000)
	for i, p := range s.Payouts {
		if !p.Eq(want) {
			t.Fatalf("payout[%d]=%s, want %s", i, p, want)
		}
	}
}

func TestRemainderFrontLoaded(t *testing.T) {
	// 3 players at 1 unit, no fee, 2 winners: available=3 -> [2,1].
	s := mustCompute(t, SchemeEqual, u(1), 3, 0, 2)
	assertConserved(t, s)
	if !s.Payouts[0].Eq(u(2)) || !s.Payouts[1].Eq(u(1)) {
		t.Fatalf("payouts=[%s,%s], want [2,1]", s.Payouts[0], s.Payouts[1])
	}
}

func TestRemainderThreeWinners(t *testing.T) {
	// 4 players at 1 unit, no fee, 3 winners: available=4 -> [2,1,1].
	s := mustCompute(t, SchemeEqual, u(1), 4, 0, 3)
	assertConserved(t, s)
	want := []uint64{2, 1, 1}
	for i, w := range want {
		if !s.Payouts[i].Eq(u(w)) {
			t.Fatalf("payout[%d]=%s, want %d", i, s.Payouts[i], w)
		}
	}
}

func TestFeeBpsEdges(t *testing.T) {
	// 0 bps: no fee, full pool split.
	s := mustCompute(t, SchemeEqual, u(1000), 4, 0, 2)
	if !s.Fee.IsZero() {
		t.Fatalf("fee=%s, want 0", s.Fee)
	}
	if !s.Available.Eq(s.Pool) {
		t.Fatalf("available=%s, pool=%s", s.Available, s.Pool)
	}

	// 1000 bps: exactly 10%.
	s = mustCompute(t, SchemeEqual, u(1000), 4, 1000, 2)
	if want := u(400); !s.Fee.Eq(want) {
		t.Fatalf("fee=%s, want %s", s.Fee, want)
	}
	assertConserved(t, s)

	if _, err := Compute(SchemeEqual, u(1000), 4, 1001, 2); err == nil {
		t.Fatalf("expected error for fee above cap")
	}
}

func TestWeightedSplit(t *testing.T) {
	s := mustCompute(t, SchemeWeighted, u(100), 10, 0, 2)
	assertConserved(t, s)
	if !s.Payouts[0].Eq(u(600)) || !s.Payouts[1].Eq(u(400)) {
		t.Fatalf("payouts=[%s,%s], want [600,400]", s.Payouts[0], s.Payouts[1])
	}

	s = mustCompute(t, SchemeWeighted, u(100), 10, 0, 3)
	assertConserved(t, s)
	want := []uint64{700, 200, 100}
	for i, w := range want {
		if !s.Payouts[i].Eq(u(w)) {
			t.Fatalf("payout[%d]=%s, want %d", i, s.Payouts[i], w)
		}
	}
}

func TestWeightedRemainderToTopRank(t *testing.T) {
	// available=101: 60% -> 60, 40% -> 40, remainder 1 to rank 0.
	s := mustCompute(t, SchemeWeighted, u(101), 1, 0, 1)
	assertConserved(t, s)

	s = mustCompute(t, SchemeWeighted, u(101), 2, 0, 2)
	assertConserved(t, s)
	if !s.Payouts[0].Eq(u(122)) || !s.Payouts[1].Eq(u(80)) {
		t.Fatalf("payouts=[%s,%s], want [122,80]", s.Payouts[0], s.Payouts[1])
	}
}

func TestWeightedUnknownCountFallsBackToEqual(t *testing.T) {
	s := mustCompute(t, SchemeWeighted, u(10), 5, 0, 4)
	assertConserved(t, s)
	// 50/4 -> 12 each, remainder 2 front-loaded.
	want := []uint64{13, 13, 12, 12}
	for i, w := range want {
		if !s.Payouts[i].Eq(u(w)) {
			t.Fatalf("payout[%d]=%s, want %d", i, s.Payouts[i], w)
		}
	}
}

func TestComputeRejectsBadInputs(t *testing.T) {
	cases := []struct {
		name string
		fee  *uint256.Int
		n    uint32
		bps  uint16
		k    int
	}{
		{"zero fee", u(0), 2, 0, 1},
		{"nil fee", nil, 2, 0, 1},
		{"no players", u(1), 0, 0, 1},
		{"zero winners", u(1), 2, 0, 0},
		{"winners exceed players", u(1), 2, 0, 3},
	}
	for _, tc := range cases {
		if _, err := Compute(SchemeEqual, tc.fee, tc.n, tc.bps, tc.k); err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
}

func TestPoolOverflowDetected(t *testing.T) {
	max := new(uint256.Int).Not(new(uint256.Int)) // 2^256-1
	if _, err := Compute(SchemeEqual, max, 2, 0, 1); err == nil {
		t.Fatalf("expected pool overflow error")
	}
}

func TestConservationSweep(t *testing.T) {
	fees := []uint64{1, 7, 999, 1_000_000_007}
	for _, f := range fees {
		for n := uint32(2); n <= 8; n++ {
			for k := 1; k <= int(n); k++ {
				for _, bps := range []uint16{0, 250, 300, 1000} {
					s, err := Compute(SchemeEqual, u(f), n, bps, k)
					if err != nil {
						t.Fatalf("fee=%d n=%d k=%d bps=%d: %v", f, n, k, bps, err)
					}
					assertConserved(t, s)
				}
			}
		}
	}
}
