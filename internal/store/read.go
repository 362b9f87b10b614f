package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/entref/internal/value"
)

const recordColumns = `type, id, client_id, attributes, belongs_to, has_many, is_deleted, errors, revision, fingerprint`

// ReadRecord returns the record stored under (type, id).
// Returns false if no such record exists.
func (s *Store) ReadRecord(ctx context.Context, typ, id string) (Record, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+`
		FROM records
		WHERE type = ? AND id = ?
	`, typ, id)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("read record: %w", err)
	}
	return rec, true, nil
}

// ReadRecordByClientID returns the record saved from the entity with the
// given client id. When several types share one client id the first by
// (type, id) wins.
func (s *Store) ReadRecordByClientID(ctx context.Context, clientID string) (Record, bool, error) {
	if clientID == "" {
		return Record{}, false, nil
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+`
		FROM records
		WHERE client_id = ?
		ORDER BY type COLLATE BINARY ASC, id COLLATE BINARY ASC
		LIMIT 1
	`, clientID)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("read record by client id: %w", err)
	}
	return rec, true, nil
}

// ListRecords returns the records of the given types, or every record when
// no type is given. Ordered by type, id COLLATE BINARY.
//
// Returns an empty slice (not nil) if nothing matches.
func (s *Store) ListRecords(ctx context.Context, types ...string) ([]Record, error) {
	query := `SELECT ` + recordColumns + ` FROM records`
	args := make([]any, len(types))
	if len(types) > 0 {
		query += ` WHERE type IN (?` + strings.Repeat(", ?", len(types)-1) + `)`
		for i, t := range types {
			args[i] = t
		}
	}
	query += ` ORDER BY type COLLATE BINARY ASC, id COLLATE BINARY ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return records, nil
}

// scanner is implemented by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (Record, error) {
	var rec Record
	var attributes, belongsTo, hasMany string
	var errorsJSON sql.NullString

	err := sc.Scan(
		&rec.Type, &rec.ID, &rec.ClientID,
		&attributes, &belongsTo, &hasMany,
		&rec.IsDeleted, &errorsJSON,
		&rec.Revision, &rec.Fingerprint,
	)
	if err != nil {
		return Record{}, err
	}

	if rec.Attributes, err = unmarshalMap("attributes", attributes); err != nil {
		return Record{}, err
	}
	if rec.Attributes == nil {
		rec.Attributes = value.Map{}
	}

	slots, err := unmarshalMap("belongs_to", belongsTo)
	if err != nil {
		return Record{}, err
	}
	if rec.BelongsTo, err = decodeBelongsTo(slots); err != nil {
		return Record{}, err
	}

	collections, err := unmarshalMap("has_many", hasMany)
	if err != nil {
		return Record{}, err
	}
	if rec.HasMany, err = decodeHasMany(collections); err != nil {
		return Record{}, err
	}

	if errorsJSON.Valid {
		if rec.Errors, err = unmarshalMap("errors", errorsJSON.String); err != nil {
			return Record{}, err
		}
	}
	return rec, nil
}
