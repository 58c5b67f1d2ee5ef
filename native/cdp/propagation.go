package cdp

import (
	"math/big"

	"github.com/google/uuid"

	"cdpcore/assets"
)

// WithdrawPropagation is the single-slot scratch record for a withdrawal's
// staged external transfers (spec.md §4.5, §5, §9). The record carries a
// fresh call id per invocation; Withdraw stages it, and this package has no
// reply handler that reads it back.
type WithdrawPropagation struct {
	CallID   string
	BasketID string
	Owner    string
	Position PositionID
	Pending  []PendingTransfer
}

// PendingTransfer is one staged value transfer awaiting a reply.
type PendingTransfer struct {
	Asset    assets.AssetRef
	Amount   *big.Int
	To       string
	Settled  bool
	Failed   bool
}

// NewWithdrawPropagation allocates a fresh propagation record with a new
// call id, overwriting whatever occupied the single slot before.
func NewWithdrawPropagation(basketID, owner string, position PositionID, transfers []PendingTransfer) *WithdrawPropagation {
	return &WithdrawPropagation{
		CallID:   uuid.NewString(),
		BasketID: basketID,
		Owner:    owner,
		Position: position,
		Pending:  transfers,
	}
}

// AllSettled reports whether every pending transfer has a reply recorded.
func (p *WithdrawPropagation) AllSettled() bool {
	for _, t := range p.Pending {
		if !t.Settled {
			return false
		}
	}
	return true
}

// AnyFailed reports whether any settled transfer failed.
func (p *WithdrawPropagation) AnyFailed() bool {
	for _, t := range p.Pending {
		if t.Settled && t.Failed {
			return true
		}
	}
	return false
}

// RepayPropagation is the single-slot scratch record for a liquidation
// waterfall's in-flight stage (spec.md §4.8, §9): which stage is active,
// how much credit that stage's reply repays (RepayRemaining), and how much
// collateral has been staged out to that stage pending its reply.
type RepayPropagation struct {
	CallID         string
	BasketID       string
	Owner          string
	Position       PositionID
	Stage          LiquidationStage
	RepayRemaining *big.Int
	StagedAmount   *big.Int
	StagedAsset    assets.AssetRef
}

// LiquidationStage identifies which leg of the waterfall a RepayPropagation
// record describes.
type LiquidationStage int

const (
	StageLiquidationQueue LiquidationStage = iota
	StageStabilityPool
	StageRouter
)

func (s LiquidationStage) String() string {
	switch s {
	case StageLiquidationQueue:
		return "liquidation_queue"
	case StageStabilityPool:
		return "stability_pool"
	case StageRouter:
		return "router"
	default:
		return "unknown"
	}
}

// NewRepayPropagation allocates a fresh propagation record for the given
// waterfall stage, overwriting the single slot.
func NewRepayPropagation(basketID, owner string, position PositionID, stage LiquidationStage, repayRemaining, stagedAmount *big.Int, stagedAsset assets.AssetRef) *RepayPropagation {
	return &RepayPropagation{
		CallID:         uuid.NewString(),
		BasketID:       basketID,
		Owner:          owner,
		Position:       position,
		Stage:          stage,
		RepayRemaining: repayRemaining,
		StagedAmount:   stagedAmount,
		StagedAsset:    stagedAsset,
	}
}
