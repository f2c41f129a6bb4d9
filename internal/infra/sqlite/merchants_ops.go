package sqlite

import (
	"context"
	"fmt"

	"github.com/dvloznov/monzo-tracker/internal/domain"
)

const upsertMerchantSQL = `
INSERT INTO merchants (id, group_id, name, category, emoji, logo_url, online, atm,
                       address, city, region, country, postcode, latitude, longitude)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    group_id  = excluded.group_id,
    name      = excluded.name,
    category  = excluded.category,
    emoji     = excluded.emoji,
    logo_url  = excluded.logo_url,
    online    = excluded.online,
    atm       = excluded.atm,
    address   = excluded.address,
    city      = excluded.city,
    region    = excluded.region,
    country   = excluded.country,
    postcode  = excluded.postcode,
    latitude  = excluded.latitude,
    longitude = excluded.longitude
`

// UpsertMerchants writes merchants, updating existing rows in place. The
// stats columns are left alone; RefreshMerchantStats recomputes them.
func (s *Store) UpsertMerchants(ctx context.Context, merchants []domain.Merchant) (int, error) {
	tx, err := s.begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("UpsertMerchants: starting transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertMerchantSQL)
	if err != nil {
		return 0, fmt.Errorf("UpsertMerchants: preparing statement: %w", err)
	}
	defer stmt.Close()

	for _, m := range merchants {
		var address, city, region, country, postcode any
		var latitude, longitude any
		if m.Address != nil {
			address = nullString(m.Address.Formatted)
			city = nullString(m.Address.City)
			region = nullString(m.Address.Region)
			country = nullString(m.Address.Country)
			postcode = nullString(m.Address.Postcode)
			latitude = m.Address.Latitude
			longitude = m.Address.Longitude
		}
		_, err := stmt.ExecContext(ctx,
			m.ID,
			nullString(m.GroupID),
			nullString(m.Name),
			nullString(m.Category),
			nullString(m.Emoji),
			nullString(m.Logo),
			b2i(m.Online),
			b2i(m.ATM),
			address, city, region, country, postcode, latitude, longitude,
		)
		if err != nil {
			return 0, fmt.Errorf("UpsertMerchants: writing %s: %w", m.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("UpsertMerchants: committing: %w", err)
	}
	return len(merchants), nil
}

// RefreshMerchantStats recomputes first_seen, last_seen, transaction_count
// and total_spent from the transactions table.
func (s *Store) RefreshMerchantStats(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE merchants SET
		    first_seen = (SELECT MIN(t.created) FROM transactions t WHERE t.merchant_id = merchants.id),
		    last_seen  = (SELECT MAX(t.created) FROM transactions t WHERE t.merchant_id = merchants.id),
		    transaction_count = (SELECT COUNT(*) FROM transactions t WHERE t.merchant_id = merchants.id),
		    total_spent = (
		        SELECT COALESCE(SUM(-t.amount), 0) FROM transactions t
		        WHERE t.merchant_id = merchants.id AND t.amount < 0 AND t.decline_reason IS NULL
		    )
	`)
	if err != nil {
		return fmt.Errorf("RefreshMerchantStats: %w", err)
	}
	return nil
}
