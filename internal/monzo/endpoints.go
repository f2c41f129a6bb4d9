package monzo

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/dvloznov/monzo-tracker/internal/domain"
)

// Accounts fetches all accounts, including closed ones.
func (c *Client) Accounts(ctx context.Context) ([]domain.Account, error) {
	var out struct {
		Accounts []domain.Account `json:"accounts"`
	}
	if err := c.Get(ctx, "/accounts", nil, &out); err != nil {
		return nil, err
	}
	return out.Accounts, nil
}

// Balance fetches the current balance of an account.
func (c *Client) Balance(ctx context.Context, accountID string) (domain.Balance, error) {
	var out domain.Balance
	query := url.Values{"account_id": {accountID}}
	if err := c.Get(ctx, "/balance", query, &out); err != nil {
		return domain.Balance{}, err
	}
	out.AccountID = accountID
	return out, nil
}

// Pots fetches the pots attached to an account, deleted ones included.
func (c *Client) Pots(ctx context.Context, accountID string) ([]domain.Pot, error) {
	var out struct {
		Pots []domain.Pot `json:"pots"`
	}
	query := url.Values{"current_account_id": {accountID}}
	if err := c.Get(ctx, "/pots", query, &out); err != nil {
		return nil, err
	}
	return out.Pots, nil
}

// Transaction fetches a single transaction, optionally with the merchant
// expanded.
func (c *Client) Transaction(ctx context.Context, id string, expandMerchant bool) (domain.Transaction, error) {
	var out struct {
		Transaction domain.Transaction `json:"transaction"`
	}
	query := url.Values{}
	if expandMerchant {
		query.Add("expand[]", "merchant")
	}
	if err := c.Get(ctx, "/transactions/"+id, query, &out); err != nil {
		return domain.Transaction{}, err
	}
	return out.Transaction, nil
}

// AnnotateTransaction patches metadata onto a transaction. An empty value
// deletes the key.
func (c *Client) AnnotateTransaction(ctx context.Context, id string, metadata map[string]string) (domain.Transaction, error) {
	form := url.Values{}
	for k, v := range metadata {
		form.Set("metadata["+k+"]", v)
	}
	var out struct {
		Transaction domain.Transaction `json:"transaction"`
	}
	if err := c.Patch(ctx, "/transactions/"+id, form, &out); err != nil {
		return domain.Transaction{}, err
	}
	return out.Transaction, nil
}

// TransactionsSince drains all transactions of an account in [since,
// before), with merchants expanded.
func (c *Client) TransactionsSince(ctx context.Context, accountID string, since, before time.Time) ([]domain.Transaction, error) {
	pager := c.Transactions(accountID, PageOptions{
		Since:          since.UTC().Format(time.RFC3339),
		Before:         before,
		ExpandMerchant: true,
	})
	return pager.All(ctx)
}

// DepositIntoPot moves money from an account into a pot. dedupeID is the
// idempotency key; a fresh one is generated when empty.
func (c *Client) DepositIntoPot(ctx context.Context, potID, accountID string, amount int64, dedupeID string) (domain.Pot, error) {
	if dedupeID == "" {
		dedupeID = uuid.NewString()
	}
	form := url.Values{
		"source_account_id": {accountID},
		"amount":            {strconv.FormatInt(amount, 10)},
		"dedupe_id":         {dedupeID},
	}
	var out domain.Pot
	if err := c.Put(ctx, "/pots/"+potID+"/deposit", form, &out); err != nil {
		return domain.Pot{}, err
	}
	return out, nil
}

// WithdrawFromPot moves money from a pot back into an account.
func (c *Client) WithdrawFromPot(ctx context.Context, potID, accountID string, amount int64, dedupeID string) (domain.Pot, error) {
	if dedupeID == "" {
		dedupeID = uuid.NewString()
	}
	form := url.Values{
		"destination_account_id": {accountID},
		"amount":                 {strconv.FormatInt(amount, 10)},
		"dedupe_id":              {dedupeID},
	}
	var out domain.Pot
	if err := c.Put(ctx, "/pots/"+potID+"/withdraw", form, &out); err != nil {
		return domain.Pot{}, err
	}
	return out, nil
}

// CreateFeedItem publishes a basic feed item on the account's feed.
func (c *Client) CreateFeedItem(ctx context.Context, accountID, title, imageURL, body string) error {
	form := url.Values{
		"account_id":        {accountID},
		"type":              {"basic"},
		"params[title]":     {title},
		"params[image_url]": {imageURL},
	}
	if body != "" {
		form.Set("params[body]", body)
	}
	return c.Post(ctx, "/feed", form, nil)
}

// RegisterWebhook subscribes a URL to an account's events.
func (c *Client) RegisterWebhook(ctx context.Context, accountID, hookURL string) (domain.Webhook, error) {
	form := url.Values{"account_id": {accountID}, "url": {hookURL}}
	var out struct {
		Webhook domain.Webhook `json:"webhook"`
	}
	if err := c.Post(ctx, "/webhooks", form, &out); err != nil {
		return domain.Webhook{}, err
	}
	return out.Webhook, nil
}

// ListWebhooks lists the webhooks registered on an account.
func (c *Client) ListWebhooks(ctx context.Context, accountID string) ([]domain.Webhook, error) {
	var out struct {
		Webhooks []domain.Webhook `json:"webhooks"`
	}
	query := url.Values{"account_id": {accountID}}
	if err := c.Get(ctx, "/webhooks", query, &out); err != nil {
		return nil, err
	}
	return out.Webhooks, nil
}

// DeleteWebhook removes a webhook.
func (c *Client) DeleteWebhook(ctx context.Context, id string) error {
	return c.do(ctx, "DELETE", "/webhooks/"+id, nil, nil, nil, nil)
}

// RegisterAttachment attaches an already-hosted image to a transaction.
func (c *Client) RegisterAttachment(ctx context.Context, transactionID, fileURL, fileType string) (domain.Attachment, error) {
	form := url.Values{
		"external_id": {transactionID},
		"file_url":    {fileURL},
		"file_type":   {fileType},
	}
	var out struct {
		Attachment domain.Attachment `json:"attachment"`
	}
	if err := c.Post(ctx, "/attachment/register", form, &out); err != nil {
		return domain.Attachment{}, err
	}
	return out.Attachment, nil
}

// DeregisterAttachment removes an attachment from its transaction.
func (c *Client) DeregisterAttachment(ctx context.Context, attachmentID string) error {
	form := url.Values{"id": {attachmentID}}
	return c.Post(ctx, "/attachment/deregister", form, nil)
}

// CreateReceipt attaches itemised receipt data to a transaction.
func (c *Client) CreateReceipt(ctx context.Context, receipt domain.Receipt) error {
	return c.PutJSON(ctx, "/transaction-receipts", receipt, nil)
}

// WhoAmI tests the current token.
func (c *Client) WhoAmI(ctx context.Context) (domain.Identity, error) {
	var out domain.Identity
	if err := c.Get(ctx, "/ping/whoami", nil, &out); err != nil {
		return domain.Identity{}, err
	}
	return out, nil
}

// Logout invalidates the current access token server-side.
func (c *Client) Logout(ctx context.Context) error {
	return c.Post(ctx, "/oauth2/logout", nil, nil)
}
