package domain

// Identity is the response of the whoami endpoint, used to test a token.
type Identity struct {
	Authenticated bool   `json:"authenticated"`
	ClientID      string `json:"client_id"`
	UserID        string `json:"user_id"`
}

// Webhook is a registered callback for account events.
type Webhook struct {
	ID        string `json:"id"`
	AccountID string `json:"account_id"`
	URL       string `json:"url"`
}

// Attachment is an image registered against a transaction.
type Attachment struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id,omitempty"`
	ExternalID string    `json:"external_id"` // transaction id
	FileURL    string    `json:"file_url"`
	FileType   string    `json:"file_type"`
	Created    Timestamp `json:"created"`
}

// Receipt is itemised receipt data attached to a transaction.
type Receipt struct {
	ID            string        `json:"id,omitempty"`
	ExternalID    string        `json:"external_id"`
	TransactionID string        `json:"transaction_id"`
	Total         int64         `json:"total"`
	Currency      string        `json:"currency"`
	Items         []ReceiptItem `json:"items,omitempty"`
}

// ReceiptItem is a single line of a receipt.
type ReceiptItem struct {
	Description string `json:"description"`
	Quantity    int    `json:"quantity,omitempty"`
	Unit        string `json:"unit,omitempty"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
}
