package database

import (
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/trogers1052/stock-index-service/internal/models"
)

type compositionMember struct {
	rank      int
	marketCap decimal.Decimal
}

// DetectCompositionChanges compares consecutive composition dates in the
// range and records which symbols entered or exited the index. Stored
// changes for the recomputed dates are replaced. The first date in the
// range has no predecessor and never produces changes.
func (db *DB) DetectCompositionChanges(startDate, endDate time.Time) ([]*models.CompositionChange, error) {
	dates, err := db.GetCompositionDates(startDate, endDate)
	if err != nil {
		return nil, err
	}
	if len(dates) < 2 {
		return nil, nil
	}

	var changes []*models.CompositionChange

	previous, err := db.getCompositionMembers(dates[0])
	if err != nil {
		return nil, err
	}
	for i := 1; i < len(dates); i++ {
		current, err := db.getCompositionMembers(dates[i])
		if err != nil {
			return nil, err
		}

		for _, symbol := range sortedSymbols(current) {
			if _, ok := previous[symbol]; ok {
				continue
			}
			m := current[symbol]
			rank := m.rank
			changes = append(changes, &models.CompositionChange{
				Date:      dates[i],
				Symbol:    symbol,
				Action:    models.ChangeActionEntered,
				NewRank:   &rank,
				MarketCap: m.marketCap,
			})
		}
		for _, symbol := range sortedSymbols(previous) {
			if _, ok := current[symbol]; ok {
				continue
			}
			m := previous[symbol]
			rank := m.rank
			changes = append(changes, &models.CompositionChange{
				Date:         dates[i],
				Symbol:       symbol,
				Action:       models.ChangeActionExited,
				PreviousRank: &rank,
				MarketCap:    m.marketCap,
			})
		}

		previous = current
	}

	if err := db.replaceCompositionChanges(dates[1:], changes); err != nil {
		return nil, err
	}

	return changes, nil
}

func (db *DB) getCompositionMembers(date time.Time) (map[string]compositionMember, error) {
	rows, err := db.conn.Query(`
		SELECT symbol, rank, market_cap
		FROM index_compositions
		WHERE date = $1
	`, date)
	if err != nil {
		return nil, fmt.Errorf("failed to query composition members: %w", err)
	}
	defer rows.Close()

	members := make(map[string]compositionMember)
	for rows.Next() {
		var symbol string
		var m compositionMember
		if err := rows.Scan(&symbol, &m.rank, &m.marketCap); err != nil {
			return nil, fmt.Errorf("failed to scan composition member: %w", err)
		}
		members[symbol] = m
	}
	return members, nil
}

func sortedSymbols(members map[string]compositionMember) []string {
	symbols := make([]string, 0, len(members))
	for symbol := range members {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}

// replaceCompositionChanges swaps the stored changes for the given dates
// in one transaction
func (db *DB) replaceCompositionChanges(dates []time.Time, changes []*models.CompositionChange) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin changes transaction: %w", err)
	}
	defer tx.Rollback()

	for _, date := range dates {
		if _, err := tx.Exec(`DELETE FROM composition_changes WHERE date = $1`, date); err != nil {
			return fmt.Errorf("failed to clear composition changes: %w", err)
		}
	}

	now := time.Now()
	for _, c := range changes {
		_, err := tx.Exec(`
			INSERT INTO composition_changes (date, symbol, action, previous_rank, new_rank, market_cap, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, c.Date, c.Symbol, c.Action, c.PreviousRank, c.NewRank, c.MarketCap, now)
		if err != nil {
			return fmt.Errorf("failed to insert composition change for %s: %w", c.Symbol, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit composition changes: %w", err)
	}
	return nil
}

// GetCompositionChanges retrieves stored changes in a date range
func (db *DB) GetCompositionChanges(startDate, endDate time.Time) ([]*models.CompositionChange, error) {
	query := `
		SELECT date, symbol, action, previous_rank, new_rank, market_cap
		FROM composition_changes
		WHERE date >= $1 AND date <= $2
		ORDER BY date ASC, symbol ASC
	`

	rows, err := db.conn.Query(query, startDate, endDate)
	if err != nil {
		return nil, fmt.Errorf("failed to query composition changes: %w", err)
	}
	defer rows.Close()

	var changes []*models.CompositionChange
	for rows.Next() {
		var c models.CompositionChange
		var previousRank, newRank sql.NullInt64
		var marketCap sql.NullString

		err := rows.Scan(&c.Date, &c.Symbol, &c.Action, &previousRank, &newRank, &marketCap)
		if err != nil {
			return nil, fmt.Errorf("failed to scan composition change: %w", err)
		}

		if previousRank.Valid {
			rank := int(previousRank.Int64)
			c.PreviousRank = &rank
		}
		if newRank.Valid {
			rank := int(newRank.Int64)
			c.NewRank = &rank
		}
		if marketCap.Valid {
			c.MarketCap, _ = decimal.NewFromString(marketCap.String)
		}

		changes = append(changes, &c)
	}

	return changes, nil
}
