package domain

// Account is a Monzo account. Immutable once fetched.
type Account struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"` // uk_retail, uk_retail_joint, uk_monzo_flex
	Description string    `json:"description,omitempty"`
	Created     Timestamp `json:"created"`
	Closed      bool      `json:"closed"`
	Currency    string    `json:"currency,omitempty"`
}

// Balance is a point-in-time balance snapshot for an account.
// Amounts are in minor units (pence).
type Balance struct {
	AccountID    string `json:"account_id,omitempty"`
	Balance      int64  `json:"balance"`
	TotalBalance int64  `json:"total_balance"`
	Currency     string `json:"currency"`
	SpendToday   int64  `json:"spend_today"`
}
