package consensus

import (
	"fmt"

	"github.com/gxchain/gxcd/pkg/block"
)

// Validator validates blocks against consensus rules, dispatching
// kind-specific proof checks through a Router so POW_SHA256, POW_ETHASH, and
// POS blocks can all be validated on one chain.
type Validator struct {
	router *Router
}

// NewValidator creates a block validator backed by the given Router.
func NewValidator(router *Router) *Validator {
	return &Validator{router: router}
}

// ValidateBlock checks a block against both structural and consensus rules.
func (v *Validator) ValidateBlock(blk *block.Block) error {
	// Structural validation.
	if err := blk.Validate(); err != nil {
		return fmt.Errorf("block structure: %w", err)
	}

	// Consensus-specific header verification, dispatched by blk.Header.Kind.
	if err := v.router.VerifyHeader(blk.Header); err != nil {
		return fmt.Errorf("consensus: %w", err)
	}

	return nil
}
