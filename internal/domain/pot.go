package domain

// Pot is a savings pot attached to a current account. Pots are
// soft-deleted: the API keeps returning them with deleted=true.
type Pot struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Balance    int64     `json:"balance"` // minor units
	Currency   string    `json:"currency"`
	Style      string    `json:"style,omitempty"`
	GoalAmount int64     `json:"goal_amount,omitempty"`
	Created    Timestamp `json:"created"`
	Updated    Timestamp `json:"updated"`
	Deleted    bool      `json:"deleted"`
	Locked     bool      `json:"locked"`
	AccountID  string    `json:"current_account_id"`
}
