package matcher

import (
	"sort"
	"time"

	"bank-reconciliation-service/internal/models"
)

const dateKeyLayout = "2006-01-02"

// LedgerPool is the set of ledger movements still available during one matching run.
// Movements are bucketed by calendar date so candidate search only touches the window.
type LedgerPool struct {
	// DateIndex maps date strings (YYYY-MM-DD) to ledger movements
	DateIndex map[string][]*models.LedgerMovement

	// order keeps the load position of every movement so candidates come back deterministically
	order     map[int64]int
	available map[int64]bool
}

// NewLedgerPool indexes the ledger movements. Duplicate ids are kept once.
func NewLedgerPool(ledgers []*models.LedgerMovement) *LedgerPool {
	pool := &LedgerPool{
		DateIndex: make(map[string][]*models.LedgerMovement),
		order:     make(map[int64]int, len(ledgers)),
		available: make(map[int64]bool, len(ledgers)),
	}

	for i, l := range ledgers {
		if l == nil {
			continue
		}
		if _, seen := pool.order[l.ID]; seen {
			continue
		}
		key := l.Date.Format(dateKeyLayout)
		pool.DateIndex[key] = append(pool.DateIndex[key], l)
		pool.order[l.ID] = i
		pool.available[l.ID] = true
	}
	return pool
}

// Candidates returns the available ledger movements dated within windowDays of date
func (p *LedgerPool) Candidates(date time.Time, windowDays int) []*models.LedgerMovement {
	var result []*models.LedgerMovement
	base := models.DateOnly(date)

	for offset := -windowDays; offset <= windowDays; offset++ {
		key := base.AddDate(0, 0, offset).Format(dateKeyLayout)
		for _, l := range p.DateIndex[key] {
			if p.available[l.ID] {
				result = append(result, l)
			}
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		return p.order[result[i].ID] < p.order[result[j].ID]
	})
	return result
}

// Remove takes a ledger movement out of the pool
func (p *LedgerPool) Remove(id int64) {
	delete(p.available, id)
}

// Contains reports whether the ledger movement is still available
func (p *LedgerPool) Contains(id int64) bool {
	return p.available[id]
}

// Size returns the number of available movements
func (p *LedgerPool) Size() int {
	return len(p.available)
}

// GetStats returns statistics about the pool
func (p *LedgerPool) GetStats() IndexStats {
	return IndexStats{
		TotalItems:        len(p.order),
		AvailableItems:    len(p.available),
		UniqueDateEntries: len(p.DateIndex),
	}
}

// IndexStats provides statistics about the ledger pool
type IndexStats struct {
	TotalItems        int `json:"total_items"`
	AvailableItems    int `json:"available_items"`
	UniqueDateEntries int `json:"unique_date_entries"`
}
