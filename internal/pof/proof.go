// Package pof implements Proof-of-Feasibility: the evidentiary record that
// authorizes a reversal. A proof traces a stolen transaction's tainted
// proceeds to their current holder, establishes how much of the holder's
// balance is recoverable, and carries an administrator's signature
// attesting to the decision.
package pof

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/gxchain/gxcd/pkg/crypto"
	"github.com/gxchain/gxcd/pkg/types"
)

// Protocol constants (spec §4.10).
const (
	// ReversalWindowBlocks bounds how old a stolen transaction may be and
	// still be reversible.
	ReversalWindowBlocks = 20_000
	// MinTaintThreshold is the minimum final taint a traced flow must carry
	// for a reversal to be considered.
	MinTaintThreshold = 0.1
)

var (
	ErrNotStolen                 = errors.New("pof: transaction was never marked stolen")
	ErrAlreadyReversed           = errors.New("pof: stolen transaction already reversed")
	ErrWindowExpired             = errors.New("pof: reversal window has expired")
	ErrNoTaintedPath             = errors.New("pof: no tainted flow reaches current holder")
	ErrBelowMinTaint             = errors.New("pof: final taint below minimum threshold")
	ErrNothingRecoverable        = errors.New("pof: recoverable amount is zero")
	ErrRecoverableExceedsBalance = errors.New("pof: recoverable amount exceeds current balance")
	ErrInvalidSignature          = errors.New("pof: admin signature verification failed")
	ErrProofHashMismatch         = errors.New("pof: proof hash does not match recomputed value")
)

// TaintTracer is the subset of the taint engine a proof generator needs:
// seed-membership and forward flow tracing toward a holder address.
type TaintTracer interface {
	IsSeed(txHash types.Hash) bool
	TraceToHolder(stolenTx types.Hash, currentHolder types.Address) (path []types.Hash, finalTaint float64, ok bool)
}

// AlreadyReversedChecker reports whether a stolen transaction has already
// been reversed. Satisfied by the reversal executor's idempotency index.
type AlreadyReversedChecker interface {
	IsReversed(stolenTx types.Hash) bool
}

// BalanceProvider supplies a holder's current spendable balance.
type BalanceProvider interface {
	Balance(addr types.Address) uint64
}

// HeightProvider supplies the block height at which a transaction
// confirmed, used to enforce the reversal window.
type HeightProvider interface {
	TxHeight(txHash types.Hash) (height uint64, ok bool)
}

// ProofOfFeasibility is the evidentiary record authorizing a reversal.
type ProofOfFeasibility struct {
	CorrelationID     string
	StolenTxHash      types.Hash
	Path              []types.Hash // stolenTx ... tx paying CurrentHolder
	CurrentHolder     types.Address
	FinalTaint        float64
	Recoverable       uint64
	AdminID           string
	AdminPublicKey    []byte
	AdminSignature    []byte
	GeneratedAtHeight uint64
	ProofHash         types.Hash
}

// signingBytes returns the canonical to-be-signed content. CorrelationID is
// deliberately excluded: it is assigned fresh by GenerateProof itself, so an
// administrator signing ahead of time has no way to predict it — everything
// else is known in advance from the traced flow and the holder's state.
func (p *ProofOfFeasibility) signingBytes() []byte {
	var buf []byte
	buf = append(buf, p.StolenTxHash[:]...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(p.Path)))
	for _, h := range p.Path {
		buf = append(buf, h[:]...)
	}
	buf = append(buf, p.CurrentHolder[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(p.FinalTaint))
	buf = binary.LittleEndian.AppendUint64(buf, p.Recoverable)
	buf = append(buf, []byte(p.AdminID)...)
	buf = append(buf, p.AdminPublicKey...)
	buf = binary.LittleEndian.AppendUint64(buf, p.GeneratedAtHeight)
	return buf
}

// SigningHash returns the digest the administrator must sign.
func (p *ProofOfFeasibility) SigningHash() types.Hash {
	return crypto.Hash(p.signingBytes())
}

// computeProofHash returns SHA256(canonicalSerialize(proof withoutHash)):
// the to-be-signed content plus the admin's signature, everything except
// ProofHash itself.
func (p *ProofOfFeasibility) computeProofHash() types.Hash {
	buf := p.signingBytes()
	buf = append(buf, p.AdminSignature...)
	return crypto.Hash(buf)
}

// Generator builds ProofOfFeasibility records.
type Generator struct {
	Taint    TaintTracer
	Reversed AlreadyReversedChecker // may be nil if no reversal has ever run yet
	Balances BalanceProvider
	Heights  HeightProvider
}

// NewGenerator constructs a Generator from its collaborators.
func NewGenerator(taint TaintTracer, reversed AlreadyReversedChecker, balances BalanceProvider, heights HeightProvider) *Generator {
	return &Generator{Taint: taint, Reversed: reversed, Balances: balances, Heights: heights}
}

// GenerateProof implements spec §4.10's six-step algorithm. adminSig must
// already be computed by the administrator over the to-be-signed digest
// (see ProofOfFeasibility.SigningHash) of the proof this call is about to
// assemble; callers typically call a dry-run assembly, hash it, have the
// admin sign, then call GenerateProof with the resulting signature.
func (g *Generator) GenerateProof(
	stolenTx types.Hash,
	currentHolder types.Address,
	currentHeight uint64,
	adminID string,
	adminPublicKey []byte,
	adminSignature []byte,
) (*ProofOfFeasibility, error) {
	if !g.Taint.IsSeed(stolenTx) {
		return nil, ErrNotStolen
	}
	if g.Reversed != nil && g.Reversed.IsReversed(stolenTx) {
		return nil, ErrAlreadyReversed
	}

	if g.Heights != nil {
		if stolenHeight, ok := g.Heights.TxHeight(stolenTx); ok {
			if currentHeight > stolenHeight && currentHeight-stolenHeight > ReversalWindowBlocks {
				return nil, ErrWindowExpired
			}
		}
	}

	path, finalTaint, ok := g.Taint.TraceToHolder(stolenTx, currentHolder)
	if !ok {
		return nil, ErrNoTaintedPath
	}
	if finalTaint < MinTaintThreshold {
		return nil, ErrBelowMinTaint
	}

	balance := g.Balances.Balance(currentHolder)
	recoverable := uint64(finalTaint * float64(balance))
	if recoverable == 0 {
		return nil, ErrNothingRecoverable
	}

	proof := &ProofOfFeasibility{
		CorrelationID:     uuid.NewString(),
		StolenTxHash:      stolenTx,
		Path:              path,
		CurrentHolder:     currentHolder,
		FinalTaint:        finalTaint,
		Recoverable:       recoverable,
		AdminID:           adminID,
		AdminPublicKey:    adminPublicKey,
		AdminSignature:    adminSignature,
		GeneratedAtHeight: currentHeight,
	}
	proof.ProofHash = proof.computeProofHash()
	return proof, nil
}

// Validator re-checks a previously generated proof at reversal-execution
// time, when balances and the reversed-set may have moved on.
type Validator struct {
	Taint    TaintTracer
	Reversed AlreadyReversedChecker
	Balances BalanceProvider
}

// NewValidator constructs a Validator from its collaborators.
func NewValidator(taint TaintTracer, reversed AlreadyReversedChecker, balances BalanceProvider) *Validator {
	return &Validator{Taint: taint, Reversed: reversed, Balances: balances}
}

// ValidateProof re-runs the generation checks, recomputes ProofHash,
// verifies the admin signature, and confirms the recoverable amount still
// fits within the holder's current balance (spec §4.10's validateProof).
func (v *Validator) ValidateProof(p *ProofOfFeasibility) error {
	if !v.Taint.IsSeed(p.StolenTxHash) {
		return ErrNotStolen
	}
	if v.Reversed != nil && v.Reversed.IsReversed(p.StolenTxHash) {
		return ErrAlreadyReversed
	}
	if p.FinalTaint < MinTaintThreshold {
		return ErrBelowMinTaint
	}
	if p.Recoverable == 0 {
		return ErrNothingRecoverable
	}

	recomputed := p.computeProofHash()
	if recomputed != p.ProofHash {
		return ErrProofHashMismatch
	}

	signingHash := p.SigningHash()
	if !crypto.VerifySignature(signingHash[:], p.AdminSignature, p.AdminPublicKey) {
		return fmt.Errorf("%w: correlation %s", ErrInvalidSignature, p.CorrelationID)
	}

	balance := v.Balances.Balance(p.CurrentHolder)
	if p.Recoverable > balance {
		return ErrRecoverableExceedsBalance
	}
	return nil
}
