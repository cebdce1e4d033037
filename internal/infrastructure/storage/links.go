package storage

import (
	"database/sql"
	"fmt"
)

const orderLinkColumns = `
	id, marketplace, marketplace_order_id, tiny_order_id,
	linked_by, confidence_score, notes, linked_at
`

// GetLink retrieves the link for (marketplace, marketplaceOrderID).
func (s *Storage) GetLink(marketplace, marketplaceOrderID string) (*OrderLink, error) {
	row := s.db.QueryRow(`
		SELECT `+orderLinkColumns+`
		FROM marketplace_order_links
		WHERE marketplace = ? AND marketplace_order_id = ?
	`, marketplace, marketplaceOrderID)

	link, err := scanOrderLink(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get link %s/%s: %w", marketplace, marketplaceOrderID, err)
	}
	return link, nil
}

// CreateLink stores a new link. The UNIQUE(marketplace, marketplace_order_id)
// constraint is the single writer-wins arbiter; concurrent creators get
// ErrLinkExists rather than a second row.
func (s *Storage) CreateLink(link *OrderLink) error {
	result, err := s.db.Exec(`
		INSERT INTO marketplace_order_links
		(marketplace, marketplace_order_id, tiny_order_id, linked_by, confidence_score, notes)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		link.Marketplace,
		link.MarketplaceOrderID,
		link.TinyOrderID,
		link.LinkedBy,
		link.ConfidenceScore,
		link.Notes,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrLinkExists
		}
		return fmt.Errorf("failed to create link %s/%s: %w", link.Marketplace, link.MarketplaceOrderID, err)
	}

	link.ID, err = result.LastInsertId()
	return err
}

// DeleteLink removes a link by id. Deleting a nonexistent id is not an error.
func (s *Storage) DeleteLink(id int64) error {
	if _, err := s.db.Exec(`DELETE FROM marketplace_order_links WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete link %d: %w", id, err)
	}
	return nil
}

// ListLinks returns links matching the filters, newest first.
func (s *Storage) ListLinks(filters LinkFilters) ([]*OrderLink, error) {
	query := `SELECT ` + orderLinkColumns + ` FROM marketplace_order_links WHERE 1=1`
	args := []interface{}{}

	if filters.Marketplace != "" {
		query += ` AND marketplace = ?`
		args = append(args, filters.Marketplace)
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = defaultQueryLimit
	}
	query += ` ORDER BY linked_at DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, filters.Offset)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list links: %w", err)
	}
	defer rows.Close()

	var links []*OrderLink
	for rows.Next() {
		link, err := scanOrderLink(rows)
		if err != nil {
			return nil, err
		}
		links = append(links, link)
	}
	return links, rows.Err()
}

func scanOrderLink(row scanner) (*OrderLink, error) {
	var link OrderLink
	err := row.Scan(
		&link.ID,
		&link.Marketplace,
		&link.MarketplaceOrderID,
		&link.TinyOrderID,
		&link.LinkedBy,
		&link.ConfidenceScore,
		&link.Notes,
		&link.LinkedAt,
	)
	if err != nil {
		return nil, err
	}
	return &link, nil
}
