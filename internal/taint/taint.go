// Package taint implements fraud-flow propagation over the transaction
// DAG: once a transaction is marked stolen, its taint score spreads to
// every transaction that spends its proceeds, in proportion to the
// fraction of spent value each carries, until the trail runs cold or
// reaches a registered clean-zone address.
package taint

import (
	"sync"

	"github.com/gxchain/gxcd/pkg/tx"
	"github.com/gxchain/gxcd/pkg/types"
)

// Protocol constants (spec §4.9).
const (
	// Delta is the taint floor below which propagation stops.
	Delta = 0.1
	// MaxHops bounds how many edges taint may travel from a seed.
	MaxHops = 10

	VelocityEpsilonSeconds = 300
	FanOutK                = 5
	ReAggTheta             = 0.7
	DormancyPeriodSeconds  = 7 * 24 * 3600

	CriticalTaint = 0.8
	HighTaint     = 0.5
	MediumTaint   = 0.3
)

// Level is a taint alert's monotone severity classification.
type Level string

const (
	LevelLow      Level = "LOW"
	LevelMedium   Level = "MEDIUM"
	LevelHigh     Level = "HIGH"
	LevelCritical Level = "CRITICAL"
)

func computeLevel(score float64, violations int) Level {
	switch {
	case score >= CriticalTaint:
		return LevelCritical
	case score >= HighTaint:
		return LevelHigh
	case score >= MediumTaint || violations >= 2:
		return LevelMedium
	default:
		return LevelLow
	}
}

// Rule identifies which alert rule fired.
type Rule string

const (
	RuleVelocity       Rule = "VELOCITY_ANOMALY"
	RuleFanOut         Rule = "FAN_OUT"
	RuleReAggregation  Rule = "RE_AGGREGATION"
	RuleDormancy       Rule = "DORMANCY"
	RuleCleanZoneEntry Rule = "CLEAN_ZONE_ENTRY"
)

// Alert is one fired alert rule for a transaction.
type Alert struct {
	TxHash  types.Hash
	Rule    Rule
	Level   Level
	Taint   float64
	Address types.Address // populated for CLEAN_ZONE_ENTRY
}

// CleanZoneChecker reports whether an address is a registered clean-zone
// identity. Satisfied by *registry.Registry; taken as an interface here so
// this package does not depend on internal/registry.
type CleanZoneChecker interface {
	IsCleanZone(addr types.Address) bool
}

// Engine tracks taint scores over an append-only transaction DAG and
// raises alerts as new transactions commit.
type Engine struct {
	mu       sync.RWMutex
	registry CleanZoneChecker

	seeds      map[types.Hash]bool
	scores     map[types.Hash]float64
	hops       map[types.Hash]int
	stopped    map[types.Hash]bool // true once propagation must not continue past this tx
	timestamps map[types.Hash]uint64
	txs        map[types.Hash]*tx.Transaction
	order      []types.Hash
	successors map[types.Hash][]types.Hash // prevTxHash -> hashes of txs spending one of its outputs

	alerts []Alert
}

// NewEngine creates an empty taint engine. registry may be nil, in which
// case the clean-zone rule never fires (no registered identities exist).
func NewEngine(registry CleanZoneChecker) *Engine {
	return &Engine{
		registry:   registry,
		seeds:      make(map[types.Hash]bool),
		scores:     make(map[types.Hash]float64),
		hops:       make(map[types.Hash]int),
		stopped:    make(map[types.Hash]bool),
		timestamps: make(map[types.Hash]uint64),
		txs:        make(map[types.Hash]*tx.Transaction),
		successors: make(map[types.Hash][]types.Hash),
	}
}

// MarkStolen flags txHash as a fraud seed (τ = 1) and replays the full
// ingested history so every descendant's taint reflects it. Out-of-band
// fraud reports are rare compared to block commits, so paying for a full
// replay here keeps the common path (Ingest) a cheap one-pass update.
func (e *Engine) MarkStolen(txHash types.Hash) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.seeds[txHash] = true
	e.recomputeLocked()
}

// Score returns the current taint score for a transaction (0 if unknown).
func (e *Engine) Score(txHash types.Hash) float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.scores[txHash]
}

// IsSeed reports whether txHash was marked stolen.
func (e *Engine) IsSeed(txHash types.Hash) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.seeds[txHash]
}

// ShouldBlockTransaction reports whether a transaction of the given kind
// must be rejected at admission due to its taint score.
func (e *Engine) ShouldBlockTransaction(txHash types.Hash, kind tx.TransactionKind) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.scores[txHash] >= CriticalTaint && kind != tx.KindReversal
}

// Alerts returns a copy of every alert raised so far, in emission order.
func (e *Engine) Alerts() []Alert {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Alert, len(e.alerts))
	copy(out, e.alerts)
	return out
}

// Ingest processes one confirmed transaction at block-commit time and
// returns any alerts it raises. blockTimestamp is the timestamp of the
// block that confirmed t, used by the velocity and dormancy rules.
// Transactions must be ingested in the order they commit; ingesting the
// same hash twice is a no-op that returns no alerts.
func (e *Engine) Ingest(t *tx.Transaction, blockTimestamp uint64) []Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	h := t.Hash()
	if _, known := e.txs[h]; known {
		return nil
	}
	e.txs[h] = t
	e.order = append(e.order, h)
	e.timestamps[h] = blockTimestamp
	for _, in := range t.Inputs {
		if in.IsCoinbaseInput() {
			continue
		}
		e.successors[in.PrevTxHash] = append(e.successors[in.PrevTxHash], h)
	}

	alerts := e.computeOneLocked(t, h, blockTimestamp)
	e.alerts = append(e.alerts, alerts...)
	return alerts
}

// recomputeLocked replays every ingested transaction in commit order,
// rebuilding scores, hops, stop boundaries, and the alert log from
// scratch. Caller must hold e.mu.
func (e *Engine) recomputeLocked() {
	e.scores = make(map[types.Hash]float64)
	e.hops = make(map[types.Hash]int)
	e.stopped = make(map[types.Hash]bool)
	e.alerts = nil

	for _, h := range e.order {
		t := e.txs[h]
		alerts := e.computeOneLocked(t, h, e.timestamps[h])
		e.alerts = append(e.alerts, alerts...)
	}
}

// computeOneLocked computes h's taint score, hop distance, and stop
// boundary from its already-scored predecessors, then evaluates the alert
// rules against the result. Caller must hold e.mu.
func (e *Engine) computeOneLocked(t *tx.Transaction, h types.Hash, blockTimestamp uint64) []Alert {
	if t.Kind == tx.KindCoinbase && !e.seeds[h] {
		e.scores[h] = 0
		e.hops[h] = 0
		e.stopped[h] = true
		return nil
	}

	var score float64
	if e.seeds[h] {
		score = 1
	} else {
		score = e.propagateLocked(t)
	}
	e.scores[h] = score

	maxPredHop := -1
	for _, in := range t.Inputs {
		if in.IsCoinbaseInput() {
			continue
		}
		if ph, ok := e.hops[in.PrevTxHash]; ok && ph > maxPredHop {
			maxPredHop = ph
		}
	}
	hop := 0
	if maxPredHop >= 0 {
		hop = maxPredHop + 1
	}
	e.hops[h] = hop

	stopped := score < Delta || hop > MaxHops
	if !stopped && e.registry != nil {
		for _, out := range t.Outputs {
			if e.registry.IsCleanZone(out.Address) {
				stopped = true
				break
			}
		}
	}
	e.stopped[h] = stopped

	return e.evaluateAlertsLocked(t, h, score, blockTimestamp)
}

// propagateLocked computes τ(T_j) = Σ_i (amount_contributed_by_T_i /
// value(T_i)) · τ(T_i): each tainted predecessor T_i distributes its taint
// mass across its own outputs in proportion to their value, and T_j
// accumulates whatever share of that mass its inputs draw from T_i. This
// is why a predecessor's total OUTPUT value is the denominator, not T_j's
// own input total — τ must conserve across T_i's successors, not within
// T_j (spec scenario: a 100-coin stolen source split into a 60-coin and a
// 40-coin output taints its two spenders 0.6 and 0.4, not 1.0 each).
func (e *Engine) propagateLocked(t *tx.Transaction) float64 {
	var taint float64
	for _, in := range t.Inputs {
		if in.IsCoinbaseInput() || e.stopped[in.PrevTxHash] {
			continue
		}
		srcTaint := e.scores[in.PrevTxHash]
		if srcTaint <= 0 {
			continue
		}
		srcTx, ok := e.txs[in.PrevTxHash]
		if !ok {
			continue
		}
		srcValue, err := srcTx.TotalOutputValue()
		if err != nil || srcValue == 0 {
			continue
		}
		taint += (float64(in.Amount) / float64(srcValue)) * srcTaint
	}
	if taint > 1 {
		taint = 1
	}
	if taint < 0 {
		taint = 0
	}
	return taint
}

// evaluateAlertsLocked runs the five alert rules against a just-scored
// transaction. Rules that depend on predecessor state read it from the
// already-populated e.scores/e.timestamps maps.
func (e *Engine) evaluateAlertsLocked(t *tx.Transaction, h types.Hash, score float64, blockTimestamp uint64) []Alert {
	if score <= 0 {
		return nil
	}

	violations := 0
	var fired []Rule
	var cleanZoneHits []types.Address

	// 1. Velocity anomaly: this tx commits within VelocityEpsilonSeconds of
	// any parent transaction's commit time.
	for _, in := range t.Inputs {
		if in.IsCoinbaseInput() {
			continue
		}
		parentTs, ok := e.timestamps[in.PrevTxHash]
		if !ok {
			continue
		}
		if absDiff(blockTimestamp, parentTs) <= VelocityEpsilonSeconds {
			violations++
			fired = append(fired, RuleVelocity)
			break
		}
	}

	// 2. Fan-out: more than FanOutK distinct output addresses.
	distinctOut := make(map[types.Address]bool, len(t.Outputs))
	for _, out := range t.Outputs {
		distinctOut[out.Address] = true
	}
	if len(distinctOut) > FanOutK {
		violations++
		fired = append(fired, RuleFanOut)
	}

	// 3. Re-aggregation: >= ReAggTheta of input value tainted, merging >= 2
	// distinct tainted predecessor transactions.
	var sigmaInputs, taintedInputValue uint64
	distinctSources := make(map[types.Hash]bool)
	for _, in := range t.Inputs {
		if in.IsCoinbaseInput() {
			continue
		}
		sigmaInputs += in.Amount
		if e.scores[in.PrevTxHash] > 0 {
			taintedInputValue += in.Amount
			distinctSources[in.PrevTxHash] = true
		}
	}
	if sigmaInputs > 0 && len(distinctSources) >= 2 {
		if float64(taintedInputValue)/float64(sigmaInputs) >= ReAggTheta {
			violations++
			fired = append(fired, RuleReAggregation)
		}
	}

	// 4. Dormancy: a tainted input's source tx is older than
	// DormancyPeriodSeconds.
	for _, in := range t.Inputs {
		if in.IsCoinbaseInput() || e.scores[in.PrevTxHash] <= 0 {
			continue
		}
		parentTs, ok := e.timestamps[in.PrevTxHash]
		if !ok {
			continue
		}
		if blockTimestamp > parentTs && blockTimestamp-parentTs > DormancyPeriodSeconds {
			violations++
			fired = append(fired, RuleDormancy)
			break
		}
	}

	// 5. Clean-zone entry: any output address is registered.
	if e.registry != nil {
		for _, out := range t.Outputs {
			if e.registry.IsCleanZone(out.Address) {
				violations++
				fired = append(fired, RuleCleanZoneEntry)
				cleanZoneHits = append(cleanZoneHits, out.Address)
			}
		}
	}

	if len(fired) == 0 {
		return nil
	}

	level := computeLevel(score, violations)
	alerts := make([]Alert, 0, len(fired))
	cleanZoneIdx := 0
	for _, rule := range fired {
		a := Alert{TxHash: h, Rule: rule, Level: level, Taint: score}
		if rule == RuleCleanZoneEntry {
			a.Address = cleanZoneHits[cleanZoneIdx]
			cleanZoneIdx++
		}
		alerts = append(alerts, a)
	}
	return alerts
}

// TraceToHolder walks forward from stolenTx over the successor graph
// looking for a transaction that pays currentHolder, breadth-first so the
// shortest such path wins; among multiple matches at the same depth, the
// one with the highest taint score wins (spec §4.10 step 3). Returns
// ok=false if stolenTx is unknown or no path reaches currentHolder.
func (e *Engine) TraceToHolder(stolenTx types.Hash, currentHolder types.Address) ([]types.Hash, float64, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if _, ok := e.txs[stolenTx]; !ok {
		return nil, 0, false
	}

	visited := map[types.Hash]bool{stolenTx: true}
	paths := map[types.Hash][]types.Hash{stolenTx: {stolenTx}}
	frontier := []types.Hash{stolenTx}

	for len(frontier) > 0 {
		var matches []types.Hash
		for _, h := range frontier {
			t := e.txs[h]
			for _, out := range t.Outputs {
				if out.Address == currentHolder {
					matches = append(matches, h)
					break
				}
			}
		}
		if len(matches) > 0 {
			best := matches[0]
			for _, m := range matches[1:] {
				if e.scores[m] > e.scores[best] {
					best = m
				}
			}
			path := make([]types.Hash, len(paths[best]))
			copy(path, paths[best])
			return path, e.scores[best], true
		}

		var next []types.Hash
		for _, h := range frontier {
			for _, succ := range e.successors[h] {
				if visited[succ] {
					continue
				}
				visited[succ] = true
				p := append(append([]types.Hash{}, paths[h]...), succ)
				paths[succ] = p
				next = append(next, succ)
			}
		}
		frontier = next
	}
	return nil, 0, false
}

func absDiff(a, b uint64) uint64 {
	if a > b {
		return a - b
	}
	return b - a
}
