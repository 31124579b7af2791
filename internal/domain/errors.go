package domain

import "errors"

// Validation errors.
var (
	ErrZeroAmount      = errors.New("amount must be greater than zero")
	ErrBelowMinimum    = errors.New("amount below pool minimum deposit")
	ErrInvalidFee      = errors.New("fee exceeds cap")
	ErrInvalidPoolType = errors.New("unknown pool type")
	ErrInvalidRequest  = errors.New("invalid request")
)

// Authorization errors.
var (
	ErrAuthorizationRequired  = errors.New("authorization required")
	ErrJurisdictionRestricted = errors.New("jurisdiction restricted")
	ErrAuthorizationExpired   = errors.New("authorization expired")
	ErrIdentityNotFound       = errors.New("identity not found")
	ErrTierTooLow             = errors.New("tier too low")
	ErrPoolTypeNotAllowed     = errors.New("pool type not allowed for tier")
	ErrUnauthorized           = errors.New("caller not authorized")
)

// Limit errors.
var (
	ErrMonthlyLimitExceeded = errors.New("monthly deposit limit exceeded")
)

// External-data errors.
var (
	ErrInvalidPrice = errors.New("invalid oracle price")
	ErrStalePrice   = errors.New("stale oracle price")
	ErrInvalidNav   = errors.New("invalid pool nav")
)

// Arithmetic errors.
var (
	ErrArithmeticOverflow = errors.New("arithmetic overflow")
)

// State errors.
var (
	ErrProtocolInactive      = errors.New("protocol inactive")
	ErrNotInitialized        = errors.New("protocol not initialized")
	ErrAlreadyInitialized    = errors.New("protocol already initialized")
	ErrPoolNotActive         = errors.New("pool not active")
	ErrPoolNotFound          = errors.New("pool not found")
	ErrPoolExists            = errors.New("pool already registered")
	ErrPoolCapacityExceeded  = errors.New("pool max allocation exceeded")
	ErrUserNotFound          = errors.New("user ledger not found")
	ErrConversionNotFound    = errors.New("pending conversion not found")
	ErrInvalidState          = errors.New("pending conversion not in pending state")
	ErrDepositExpired        = errors.New("pending conversion expired")
	ErrNotExpired            = errors.New("pending conversion not yet expired")
	ErrSlippageExceeded      = errors.New("output below minimum acceptable amount")
	ErrInsufficientShares    = errors.New("insufficient shares")
	ErrInsufficientPoolShare = errors.New("insufficient pool shares")
	ErrNoYieldToClaim        = errors.New("no yield to claim")
)

// Kind is the error taxonomy used to decide reporting and retry policy.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindAuthorization Kind = "authorization"
	KindLimit         Kind = "limit"
	KindExternalData  Kind = "external_data"
	KindArithmetic    Kind = "arithmetic"
	KindState         Kind = "state"
	KindNotFound      Kind = "not_found"
	KindInternal      Kind = "internal"
)

var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrZeroAmount, KindValidation},
	{ErrBelowMinimum, KindValidation},
	{ErrInvalidFee, KindValidation},
	{ErrInvalidPoolType, KindValidation},
	{ErrInvalidRequest, KindValidation},
	{ErrAuthorizationRequired, KindAuthorization},
	{ErrJurisdictionRestricted, KindAuthorization},
	{ErrAuthorizationExpired, KindAuthorization},
	{ErrIdentityNotFound, KindAuthorization},
	{ErrTierTooLow, KindAuthorization},
	{ErrPoolTypeNotAllowed, KindAuthorization},
	{ErrUnauthorized, KindAuthorization},
	{ErrMonthlyLimitExceeded, KindLimit},
	{ErrInvalidPrice, KindExternalData},
	{ErrStalePrice, KindExternalData},
	{ErrInvalidNav, KindExternalData},
	{ErrArithmeticOverflow, KindArithmetic},
	{ErrPoolNotFound, KindNotFound},
	{ErrUserNotFound, KindNotFound},
	{ErrConversionNotFound, KindNotFound},
	{ErrNotInitialized, KindNotFound},
	{ErrProtocolInactive, KindState},
	{ErrAlreadyInitialized, KindState},
	{ErrPoolNotActive, KindState},
	{ErrPoolExists, KindState},
	{ErrPoolCapacityExceeded, KindState},
	{ErrInvalidState, KindState},
	{ErrDepositExpired, KindState},
	{ErrNotExpired, KindState},
	{ErrSlippageExceeded, KindState},
	{ErrInsufficientShares, KindState},
	{ErrInsufficientPoolShare, KindState},
	{ErrNoYieldToClaim, KindState},
}

// KindOf classifies err. Errors outside the domain taxonomy are KindInternal.
func KindOf(err error) Kind {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}

// Retryable reports whether an operation failing with this kind may succeed when re-invoked
// without out-of-band remediation (limit windows reset, fresh external data arrives).
func Retryable(kind Kind) bool {
	return kind == KindLimit || kind == KindExternalData
}
