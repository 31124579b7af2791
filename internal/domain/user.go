package domain

import "time"

// WindowLength is the rolling deposit-limit window.
const WindowLength = 30 * 24 * time.Hour

// UserLedger is the per-user accounting record, created lazily on first deposit.
type UserLedger struct {
	Owner string `json:"owner"`
	// TotalFiat is fiat taken into conversion, net of cancelled and expired refunds.
	TotalFiat uint64 `json:"totalFiat"`
	// TotalStable is the cost basis: reference-asset value credited to pools for this user.
	TotalStable     uint64    `json:"totalStable"`
	ConvertedFiat   uint64    `json:"convertedFiat"`
	Shares          uint64    `json:"shares"`
	RealizedYield   uint64    `json:"realizedYield"`
	UnrealizedYield uint64    `json:"unrealizedYield"`
	AvgRate         uint64    `json:"avgRate"`
	Tier            uint8     `json:"tier"`
	WindowFiat      uint64    `json:"windowFiat"`
	WindowStable    uint64    `json:"windowStable"`
	WindowStart     time.Time `json:"windowStart"`
	DepositCount    uint32    `json:"depositCount"`
	WithdrawalCount uint32    `json:"withdrawalCount"`
	LastDepositAt   time.Time `json:"lastDepositAt"`
	LastWithdrawAt  time.Time `json:"lastWithdrawAt"`
	DepositNonce    uint64    `json:"depositNonce"`
	CreatedAt       time.Time `json:"createdAt"`
}

// NewUserLedger creates an empty ledger whose window starts now.
func NewUserLedger(owner string, now time.Time) UserLedger {
	return UserLedger{Owner: owner, WindowStart: now, CreatedAt: now}
}

// RollWindow resets the rolling deposit counters once the window has elapsed.
// Repeated calls with the same now are no-ops after the first reset.
func (u *UserLedger) RollWindow(now time.Time) {
	if now.Sub(u.WindowStart) >= WindowLength {
		u.WindowFiat = 0
		u.WindowStable = 0
		u.WindowStart = now
	}
}

// PositionValue returns the reference-asset value of the user's shares at nav.
func (u UserLedger) PositionValue(nav uint64) (uint64, error) {
	return ValueOf(u.Shares, nav)
}

// ClaimableYield returns the gain above cost basis not yet realized, floored at zero.
func (u UserLedger) ClaimableYield(nav uint64) (uint64, error) {
	value, err := u.PositionValue(nav)
	if err != nil {
		return 0, err
	}
	gain := SaturatingSub(value, u.TotalStable)
	return SaturatingSub(gain, u.RealizedYield), nil
}

// Credit adds newly issued shares and their cost basis.
func (u *UserLedger) Credit(amount, shares uint64) error {
	basis, err := CheckedAdd(u.TotalStable, amount)
	if err != nil {
		return err
	}
	total, err := CheckedAdd(u.Shares, shares)
	if err != nil {
		return err
	}
	u.TotalStable, u.Shares = basis, total
	return nil
}
