package domain

import (
	"encoding/json"
	"fmt"
)

// Address is a merchant address from an expanded merchant object.
type Address struct {
	ShortFormatted string  `json:"short_formatted,omitempty"`
	Formatted      string  `json:"formatted,omitempty"`
	City           string  `json:"city,omitempty"`
	Region         string  `json:"region,omitempty"`
	Country        string  `json:"country,omitempty"`
	Postcode       string  `json:"postcode,omitempty"`
	Latitude       float64 `json:"latitude,omitempty"`
	Longitude      float64 `json:"longitude,omitempty"`
}

// Merchant is the expanded merchant entity referenced by transactions.
type Merchant struct {
	ID       string   `json:"id"`
	GroupID  string   `json:"group_id,omitempty"`
	Name     string   `json:"name,omitempty"`
	Category string   `json:"category,omitempty"`
	Emoji    string   `json:"emoji,omitempty"`
	Logo     string   `json:"logo,omitempty"`
	Online   bool     `json:"online,omitempty"`
	ATM      bool     `json:"atm,omitempty"`
	Address  *Address `json:"address,omitempty"`
}

// MerchantRef is the merchant field of a transaction, which the API returns
// either as a bare id string or, with expand[]=merchant, as a full object.
type MerchantRef struct {
	ID       string
	Merchant *Merchant // non-nil when expanded
}

// Empty reports whether the transaction has no merchant at all.
func (m MerchantRef) Empty() bool {
	return m.ID == "" && m.Merchant == nil
}

func (m *MerchantRef) UnmarshalJSON(data []byte) error {
	switch {
	case string(data) == "null":
		*m = MerchantRef{}
		return nil
	case len(data) > 0 && data[0] == '"':
		return json.Unmarshal(data, &m.ID)
	default:
		var merchant Merchant
		if err := json.Unmarshal(data, &merchant); err != nil {
			return fmt.Errorf("merchant object: %w", err)
		}
		m.ID = merchant.ID
		m.Merchant = &merchant
		return nil
	}
}

func (m MerchantRef) MarshalJSON() ([]byte, error) {
	if m.Merchant != nil {
		return json.Marshal(m.Merchant)
	}
	if m.ID != "" {
		return json.Marshal(m.ID)
	}
	return []byte("null"), nil
}

// Counterparty is the sender/recipient of a bank transfer.
type Counterparty struct {
	AccountNumber string `json:"account_number,omitempty"`
	Name          string `json:"name,omitempty"`
	SortCode      string `json:"sort_code,omitempty"`
	UserID        string `json:"user_id,omitempty"`
}

// Transaction is a single account transaction. Identity (id, account,
// amount, created) is immutable; category, notes and metadata may be
// re-annotated by the user after creation.
type Transaction struct {
	ID        string `json:"id"`
	AccountID string `json:"account_id"`

	// Amount in minor units (pence); negative = spend.
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`

	Created Timestamp `json:"created"`
	Settled Timestamp `json:"settled"`

	Description string `json:"description,omitempty"`
	Category    string `json:"category,omitempty"`
	Notes       string `json:"notes,omitempty"`

	Merchant MerchantRef `json:"merchant"`

	// Foreign currency
	LocalAmount   int64  `json:"local_amount,omitempty"`
	LocalCurrency string `json:"local_currency,omitempty"`

	Scheme            string `json:"scheme,omitempty"` // mastercard, bacs, ...
	IsLoad            bool   `json:"is_load"`
	IncludeInSpending bool   `json:"include_in_spending"`
	DeclineReason     string `json:"decline_reason,omitempty"`

	Counterparty *Counterparty `json:"counterparty,omitempty"`

	// Raw metadata (mcc, trip_id, payday, ...)
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Declined reports whether the transaction was declined. Declined
// transactions never settle and do not affect the balance.
func (t *Transaction) Declined() bool {
	return t.DeclineReason != ""
}

// MCC returns the merchant category code from the metadata, if present.
func (t *Transaction) MCC() string {
	return t.Metadata["mcc"]
}
