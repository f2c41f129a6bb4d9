package monzo

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"github.com/dvloznov/monzo-tracker/internal/domain"
)

// MaxPageLimit is the API's cap on the limit parameter (default is 30).
const MaxPageLimit = 100

// cursorFormat keeps millisecond precision so the rewound cursor sorts
// correctly between same-second transactions.
const cursorFormat = "2006-01-02T15:04:05.000Z"

// PageOptions configures a transaction pager.
type PageOptions struct {
	// Limit per page; 0 means MaxPageLimit, values above it are clamped.
	Limit int

	// Since is the starting cursor: an RFC3339 timestamp or a transaction
	// id. Pass a pager's Cursor() here to resume after a failure without
	// re-fetching consumed pages.
	Since string

	// Before bounds the window exclusively; zero means unbounded.
	Before time.Time

	// ExpandMerchant inlines merchant objects instead of bare ids.
	ExpandMerchant bool
}

// Pager fetches transactions one page at a time, following the since
// cursor until exhaustion. Iteration is restartable: persist Cursor() and
// pass it as PageOptions.Since to continue from the last-seen position.
//
// The cursor is rewound by one second each page so that transactions
// sharing the newest timestamp are never skipped; the resulting duplicates
// are filtered by id.
type Pager struct {
	client    *Client
	accountID string
	limit     int
	cursor    string
	before    string
	expand    bool
	seen      map[string]struct{}
	done      bool
}

// Transactions returns a pager over an account's transactions.
func (c *Client) Transactions(accountID string, opts PageOptions) *Pager {
	limit := opts.Limit
	if limit <= 0 || limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	before := ""
	if !opts.Before.IsZero() {
		before = opts.Before.UTC().Format(time.RFC3339)
	}
	return &Pager{
		client:    c,
		accountID: accountID,
		limit:     limit,
		cursor:    opts.Since,
		before:    before,
		expand:    opts.ExpandMerchant,
		seen:      make(map[string]struct{}),
	}
}

// Cursor returns the current since cursor.
func (p *Pager) Cursor() string {
	return p.cursor
}

// Done reports whether the pager is exhausted.
func (p *Pager) Done() bool {
	return p.done
}

// Next fetches one page. It returns nil, nil once exhausted.
func (p *Pager) Next(ctx context.Context) ([]domain.Transaction, error) {
	if p.done {
		return nil, nil
	}

	query := url.Values{}
	query.Set("account_id", p.accountID)
	query.Set("limit", strconv.Itoa(p.limit))
	if p.cursor != "" {
		query.Set("since", p.cursor)
	}
	if p.before != "" {
		query.Set("before", p.before)
	}
	if p.expand {
		query.Add("expand[]", "merchant")
	}

	var page struct {
		Transactions []domain.Transaction `json:"transactions"`
	}
	if err := p.client.Get(ctx, "/transactions", query, &page); err != nil {
		return nil, err
	}
	if len(page.Transactions) == 0 {
		p.done = true
		return nil, nil
	}

	fresh := page.Transactions[:0]
	newest := page.Transactions[0].Created.Time
	for _, tx := range page.Transactions {
		if _, dup := p.seen[tx.ID]; dup {
			continue
		}
		p.seen[tx.ID] = struct{}{}
		fresh = append(fresh, tx)
		if tx.Created.After(newest) {
			newest = tx.Created.Time
		}
	}
	if len(fresh) == 0 {
		// Only duplicates left: the rewound cursor has caught up.
		p.done = true
		return nil, nil
	}

	p.cursor = newest.Add(-time.Second).UTC().Format(cursorFormat)
	return fresh, nil
}

// All follows pages until exhaustion and returns every transaction.
func (p *Pager) All(ctx context.Context) ([]domain.Transaction, error) {
	var all []domain.Transaction
	for {
		page, err := p.Next(ctx)
		if err != nil {
			return nil, err
		}
		if page == nil {
			return all, nil
		}
		all = append(all, page...)
	}
}
