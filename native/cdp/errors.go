package cdp

import "errors"

// Input validity.
var (
	errInvalidCollateral  = errors.New("cdp: invalid collateral")
	errInvalidCredit      = errors.New("cdp: invalid credit")
	errNonExistentBasket  = errors.New("cdp: basket does not exist")
	errNonExistentPosition = errors.New("cdp: position does not exist")
	errNoUserPositions    = errors.New("cdp: owner has no positions")
	errUnauthorized       = errors.New("cdp: unauthorized")
)

// Limits.
var (
	errBelowMinimumDebt    = errors.New("cdp: resulting debt below minimum")
	errExcessRepayment     = errors.New("cdp: repayment exceeds outstanding credit")
	errSupplyCapExceeded   = errors.New("cdp: supply cap exceeded")
	errMultiAssetCapExceeded = errors.New("cdp: multi-asset supply cap exceeded")
	errDebtCapExceeded     = errors.New("cdp: debt cap exceeded")
)

// Solvency.
var (
	errPositionInsolvent    = errors.New("cdp: position would be insolvent")
	errPositionNotInsolvent = errors.New("cdp: position is not insolvent")
)

// Oracle.
var (
	errOraclePriceInvalid = errors.New("cdp: no live or usable stored price")
	errNoRepaymentPrice   = errors.New("cdp: no repayment price available for borrow")
)

// Redemption.
var (
	errNoRedemptionsAvailable = errors.New("cdp: no redemptions available at or below bound")
	errPremiumOutOfRange      = errors.New("cdp: premium out of range")
)

// Plumbing.
var (
	errWrongDenomination = errors.New("cdp: wrong denomination")
	errFrozenBasket      = errors.New("cdp: basket is frozen")
	errInsufficientReply = errors.New("cdp: insufficient reply from external collaborator")
	errStaleReply        = errors.New("cdp: reply does not match the currently staged call")
)

// Internal / state wiring.
var (
	errNilState      = errors.New("cdp: nil engine state")
	errNilBasket     = errors.New("cdp: nil basket")
	errInvalidAmount = errors.New("cdp: invalid amount")
	errDuplicateCollateral = errors.New("cdp: duplicate collateral asset in position")
	errTooManyPositions    = errors.New("cdp: owner has reached the position ceiling")
	errTooManyCollateralAssets = errors.New("cdp: position has reached the collateral-asset ceiling")
)
