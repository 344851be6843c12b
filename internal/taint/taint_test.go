package taint

import (
	"testing"

	"github.com/gxchain/gxcd/pkg/tx"
	"github.com/gxchain/gxcd/pkg/types"
)

func testAddr(b byte) types.Address {
	var a types.Address
	a[0] = b
	return a
}

// fakeRegistry is a minimal CleanZoneChecker for tests.
type fakeRegistry struct {
	clean map[types.Address]bool
}

func newFakeRegistry(addrs ...types.Address) *fakeRegistry {
	r := &fakeRegistry{clean: make(map[types.Address]bool)}
	for _, a := range addrs {
		r.clean[a] = true
	}
	return r
}

func (r *fakeRegistry) IsCleanZone(addr types.Address) bool { return r.clean[addr] }

func coinbaseTx(outAddr types.Address, amount uint64, ts uint64) *tx.Transaction {
	return &tx.Transaction{
		Kind:      tx.KindCoinbase,
		Inputs:    []tx.Input{{}}, // zero hash, zero index: IsCoinbaseInput
		Outputs:   []tx.Output{{Address: outAddr, Amount: amount}},
		Timestamp: ts,
	}
}

func spendTx(prev types.Hash, outIdx uint32, amount uint64, to types.Address, ts uint64) *tx.Transaction {
	return &tx.Transaction{
		Kind: tx.KindNormal,
		Inputs: []tx.Input{
			{PrevTxHash: prev, OutputIndex: outIdx, Amount: amount},
		},
		Outputs:          []tx.Output{{Address: to, Amount: amount}},
		PrevTxHash:       prev,
		ReferencedAmount: amount,
		Timestamp:        ts,
	}
}

// TestEngine_SplitPropagation covers the spec scenario: a 100-coin stolen
// source (two outputs of 60 and 40, both to X) is marked stolen, then each
// output is spent separately — one to a registered clean zone, one to an
// ordinary address. Taint must split proportionally to each output's share
// of the source's total value, not collapse to 1.0 on each spender.
func TestEngine_SplitPropagation(t *testing.T) {
	x := testAddr(1)
	y := testAddr(2) // clean zone
	z := testAddr(3)

	reg := newFakeRegistry(y)
	e := NewEngine(reg)

	a := &tx.Transaction{
		Kind: tx.KindCoinbase,
		Inputs: []tx.Input{{}},
		Outputs: []tx.Output{
			{Address: x, Amount: 60},
			{Address: x, Amount: 40},
		},
		Timestamp: 1000,
	}
	e.Ingest(a, 1000)
	aHash := a.Hash()
	e.MarkStolen(aHash)

	b := spendTx(aHash, 0, 60, y, 2000)
	c := spendTx(aHash, 1, 40, z, 2000)

	alertsB := e.Ingest(b, 2000)
	alertsC := e.Ingest(c, 2000)

	if got := e.Score(b.Hash()); got != 0.6 {
		t.Errorf("Score(B) = %v, want 0.6", got)
	}
	if got := e.Score(c.Hash()); got != 0.4 {
		t.Errorf("Score(C) = %v, want 0.4", got)
	}

	foundCleanZone := 0
	for _, al := range alertsB {
		if al.Rule == RuleCleanZoneEntry {
			foundCleanZone++
			if al.Address != y {
				t.Errorf("clean zone alert address = %v, want %v", al.Address, y)
			}
		}
	}
	if foundCleanZone != 1 {
		t.Errorf("expected exactly one CLEAN_ZONE_ENTRY alert for B, got %d", foundCleanZone)
	}
	for _, al := range alertsC {
		if al.Rule == RuleCleanZoneEntry {
			t.Errorf("C did not send to a clean zone, unexpected alert: %+v", al)
		}
	}
}

// TestEngine_TaintConservation checks property 5: a transaction's score
// equals the sum of its per-predecessor weighted contributions, within
// floating point tolerance, when none of its own outputs are a clean zone.
func TestEngine_TaintConservation(t *testing.T) {
	x := testAddr(1)
	w := testAddr(2)
	z := testAddr(9)

	e := NewEngine(newFakeRegistry())

	a1 := coinbaseTx(x, 100, 1000)
	a2 := coinbaseTx(w, 200, 1000)
	e.Ingest(a1, 1000)
	e.Ingest(a2, 1000)
	e.MarkStolen(a1.Hash())
	e.MarkStolen(a2.Hash())

	merge := &tx.Transaction{
		Kind: tx.KindNormal,
		Inputs: []tx.Input{
			{PrevTxHash: a1.Hash(), OutputIndex: 0, Amount: 100},
			{PrevTxHash: a2.Hash(), OutputIndex: 0, Amount: 200},
		},
		Outputs:   []tx.Output{{Address: z, Amount: 300}},
		Timestamp: 2000,
	}
	e.Ingest(merge, 2000)

	got := e.Score(merge.Hash())
	want := (100.0/100.0)*1.0 + (200.0/200.0)*1.0
	if want > 1 {
		want = 1
	}
	if diff := got - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("conservation violated: got %v, want %v", got, want)
	}
}

func TestEngine_ShouldBlockTransaction(t *testing.T) {
	x := testAddr(1)
	e := NewEngine(newFakeRegistry())

	a := coinbaseTx(x, 100, 1000)
	e.Ingest(a, 1000)
	e.MarkStolen(a.Hash())

	full := spendTx(a.Hash(), 0, 100, testAddr(5), 2000)
	e.Ingest(full, 2000)

	if !e.ShouldBlockTransaction(full.Hash(), tx.KindNormal) {
		t.Error("expected fully tainted NORMAL tx to be blocked")
	}
	if e.ShouldBlockTransaction(full.Hash(), tx.KindReversal) {
		t.Error("REVERSAL transactions must never be blocked by the taint gate")
	}
	if e.ShouldBlockTransaction(types.Hash{}, tx.KindNormal) {
		t.Error("unknown tx hash should never be blocked")
	}
}

func TestComputeLevel_Boundaries(t *testing.T) {
	cases := []struct {
		score      float64
		violations int
		want       Level
	}{
		{0.0, 0, LevelLow},
		{0.2, 0, LevelLow},
		{0.3, 0, LevelMedium},
		{0.2, 2, LevelMedium},
		{0.5, 0, LevelHigh},
		{0.8, 0, LevelCritical},
		{1.0, 0, LevelCritical},
	}
	for _, c := range cases {
		if got := computeLevel(c.score, c.violations); got != c.want {
			t.Errorf("computeLevel(%v, %d) = %v, want %v", c.score, c.violations, got, c.want)
		}
	}
}

func TestEngine_MarkStolenRetroactivelyUpdatesDescendants(t *testing.T) {
	x := testAddr(1)
	y := testAddr(2)

	e := NewEngine(newFakeRegistry())

	a := coinbaseTx(x, 100, 1000)
	e.Ingest(a, 1000)

	b := spendTx(a.Hash(), 0, 100, y, 2000)
	e.Ingest(b, 2000)

	if got := e.Score(b.Hash()); got != 0 {
		t.Fatalf("Score(B) before MarkStolen = %v, want 0", got)
	}

	e.MarkStolen(a.Hash())

	if got := e.Score(b.Hash()); got != 1 {
		t.Errorf("Score(B) after MarkStolen(A) = %v, want 1", got)
	}
}

func TestEngine_PropagationStopsBelowDelta(t *testing.T) {
	x := testAddr(1)
	y := testAddr(2)

	e := NewEngine(newFakeRegistry())

	a := coinbaseTx(x, 1000, 1000)
	e.Ingest(a, 1000)
	e.MarkStolen(a.Hash())

	// Spend only a tiny fraction of the source's value, diluting taint
	// below Delta.
	small := spendTx(a.Hash(), 0, 50, y, 2000)
	e.Ingest(small, 2000)

	score := e.Score(small.Hash())
	if score >= Delta {
		t.Fatalf("expected test setup to dilute below Delta, got %v", score)
	}

	grandchild := spendTx(small.Hash(), 0, 50, testAddr(9), 3000)
	e.Ingest(grandchild, 3000)

	if got := e.Score(grandchild.Hash()); got != 0 {
		t.Errorf("taint should not propagate past a sub-Delta predecessor: got %v", got)
	}
}

func TestEngine_VelocityAlert(t *testing.T) {
	x := testAddr(1)
	y := testAddr(2)

	e := NewEngine(newFakeRegistry())

	a := coinbaseTx(x, 100, 1000)
	e.Ingest(a, 1000)
	e.MarkStolen(a.Hash())

	b := spendTx(a.Hash(), 0, 100, y, 1000+VelocityEpsilonSeconds-1)
	alerts := e.Ingest(b, 1000+VelocityEpsilonSeconds-1)

	found := false
	for _, al := range alerts {
		if al.Rule == RuleVelocity {
			found = true
		}
	}
	if !found {
		t.Error("expected VELOCITY_ANOMALY alert for rapid re-spend")
	}
}

func TestEngine_FanOutAlert(t *testing.T) {
	x := testAddr(1)
	e := NewEngine(newFakeRegistry())

	a := coinbaseTx(x, 600, 1000)
	e.Ingest(a, 1000)
	e.MarkStolen(a.Hash())

	outs := make([]tx.Output, 0, FanOutK+1)
	for i := 0; i < FanOutK+1; i++ {
		outs = append(outs, tx.Output{Address: testAddr(byte(10 + i)), Amount: 100})
	}
	spread := &tx.Transaction{
		Kind:             tx.KindNormal,
		Inputs:           []tx.Input{{PrevTxHash: a.Hash(), OutputIndex: 0, Amount: 600}},
		Outputs:          outs,
		PrevTxHash:       a.Hash(),
		ReferencedAmount: 600,
		Timestamp:        1500,
	}
	alerts := e.Ingest(spread, 1500)

	found := false
	for _, al := range alerts {
		if al.Rule == RuleFanOut {
			found = true
		}
	}
	if !found {
		t.Error("expected FAN_OUT alert when spreading to more than FanOutK addresses")
	}
}

func TestEngine_DormancyAlert(t *testing.T) {
	x := testAddr(1)
	y := testAddr(2)
	e := NewEngine(newFakeRegistry())

	a := coinbaseTx(x, 100, 1000)
	e.Ingest(a, 1000)
	e.MarkStolen(a.Hash())

	dormant := spendTx(a.Hash(), 0, 100, y, 1000+DormancyPeriodSeconds+1)
	alerts := e.Ingest(dormant, 1000+DormancyPeriodSeconds+1)

	found := false
	for _, al := range alerts {
		if al.Rule == RuleDormancy {
			found = true
		}
	}
	if !found {
		t.Error("expected DORMANCY alert when spending a long-tainted output")
	}
}

func TestEngine_ReAggregationAlert(t *testing.T) {
	x := testAddr(1)
	w := testAddr(2)
	z := testAddr(9)
	e := NewEngine(newFakeRegistry())

	a1 := coinbaseTx(x, 100, 1000)
	a2 := coinbaseTx(w, 100, 1000)
	e.Ingest(a1, 1000)
	e.Ingest(a2, 1000)
	e.MarkStolen(a1.Hash())
	e.MarkStolen(a2.Hash())

	merge := &tx.Transaction{
		Kind: tx.KindNormal,
		Inputs: []tx.Input{
			{PrevTxHash: a1.Hash(), OutputIndex: 0, Amount: 100},
			{PrevTxHash: a2.Hash(), OutputIndex: 0, Amount: 100},
		},
		Outputs:   []tx.Output{{Address: z, Amount: 200}},
		Timestamp: 2000,
	}
	alerts := e.Ingest(merge, 2000)

	found := false
	for _, al := range alerts {
		if al.Rule == RuleReAggregation {
			found = true
		}
	}
	if !found {
		t.Error("expected RE_AGGREGATION alert when merging two fully tainted sources")
	}
}

func TestEngine_CoinbaseNeverTainted(t *testing.T) {
	x := testAddr(1)
	e := NewEngine(newFakeRegistry())

	a := coinbaseTx(x, 100, 1000)
	alerts := e.Ingest(a, 1000)
	if len(alerts) != 0 {
		t.Errorf("coinbase ingestion should never raise alerts, got %+v", alerts)
	}
	if got := e.Score(a.Hash()); got != 0 {
		t.Errorf("un-marked coinbase score = %v, want 0", got)
	}
}

func TestEngine_TraceToHolder(t *testing.T) {
	x := testAddr(1)
	y := testAddr(2)
	z := testAddr(3)

	e := NewEngine(newFakeRegistry())

	a := coinbaseTx(x, 100, 1000)
	e.Ingest(a, 1000)
	e.MarkStolen(a.Hash())

	b := spendTx(a.Hash(), 0, 100, y, 2000)
	e.Ingest(b, 2000)
	c := spendTx(b.Hash(), 0, 100, z, 3000)
	e.Ingest(c, 3000)

	path, finalTaint, ok := e.TraceToHolder(a.Hash(), z)
	if !ok {
		t.Fatal("expected a path from A to Z")
	}
	if len(path) != 3 || path[0] != a.Hash() || path[2] != c.Hash() {
		t.Errorf("path = %v, want [A, B, C]", path)
	}
	if finalTaint != 1 {
		t.Errorf("finalTaint = %v, want 1", finalTaint)
	}

	if _, _, ok := e.TraceToHolder(a.Hash(), testAddr(99)); ok {
		t.Error("expected no path to an address nothing ever paid")
	}
}

func TestEngine_IngestIsIdempotent(t *testing.T) {
	x := testAddr(1)
	e := NewEngine(newFakeRegistry())

	a := coinbaseTx(x, 100, 1000)
	e.Ingest(a, 1000)
	if alerts := e.Ingest(a, 1000); alerts != nil {
		t.Errorf("re-ingesting the same tx hash should be a no-op, got %+v", alerts)
	}
}
