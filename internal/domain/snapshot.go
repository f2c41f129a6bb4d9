package domain

import (
	"sort"
	"time"
)

// SnapshotSchemaVersion is the current snapshot file format version.
// The ingestor refuses snapshots with a version it does not know.
const SnapshotSchemaVersion = 1

// Snapshot is a complete export of Monzo data, written to the local JSON
// cache and consumed by the ingestor.
type Snapshot struct {
	SchemaVersion int       `json:"schema_version"`
	ExportID      string    `json:"export_id"`
	ExportedAt    time.Time `json:"exported_at"`

	// Days of history requested; 0 = full history.
	Days int `json:"days,omitempty"`

	Accounts []Account `json:"accounts"`

	// Balances keyed by account id, as reported at export time.
	Balances map[string]Balance `json:"balances"`

	Pots []Pot `json:"pots"`

	// Transactions keyed by account id.
	Transactions map[string][]Transaction `json:"transactions"`
}

// AllTransactions returns every transaction across all accounts, ordered by
// creation time.
func (s *Snapshot) AllTransactions() []Transaction {
	var all []Transaction
	for _, txs := range s.Transactions {
		all = append(all, txs...)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].Created.Before(all[j].Created.Time)
	})
	return all
}

// Merchants extracts the unique expanded merchants referenced by the
// snapshot's transactions, keyed by merchant id.
func (s *Snapshot) Merchants() map[string]Merchant {
	merchants := make(map[string]Merchant)
	for _, txs := range s.Transactions {
		for _, tx := range txs {
			if tx.Merchant.Merchant != nil {
				merchants[tx.Merchant.ID] = *tx.Merchant.Merchant
			}
		}
	}
	return merchants
}

// TransactionCount returns the total number of transactions.
func (s *Snapshot) TransactionCount() int {
	n := 0
	for _, txs := range s.Transactions {
		n += len(txs)
	}
	return n
}
