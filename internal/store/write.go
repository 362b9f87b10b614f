package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/entref/internal/value"
)

// WriteRecord upserts rec by (type, id) and returns it as stored, with
// Revision and Fingerprint set.
//
// A write whose content fingerprint matches the stored one leaves the row
// untouched and returns the stored revision. Otherwise the row is replaced
// and its revision incremented.
func (s *Store) WriteRecord(ctx context.Context, rec Record) (Record, error) {
	if rec.Type == "" || rec.ID == "" {
		return Record{}, fmt.Errorf("write record: type and id are required (type=%q, id=%q)", rec.Type, rec.ID)
	}

	fingerprint, err := value.RecordFingerprint(rec.content())
	if err != nil {
		return Record{}, fmt.Errorf("write record: %w", err)
	}

	cols, err := encodeColumns(rec)
	if err != nil {
		return Record{}, fmt.Errorf("write record: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Record{}, fmt.Errorf("write record: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	var storedFingerprint string
	var revision int64
	err = tx.QueryRowContext(ctx, `
		SELECT fingerprint, revision FROM records WHERE type = ? AND id = ?
	`, rec.Type, rec.ID).Scan(&storedFingerprint, &revision)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		revision = 1
		_, err = tx.ExecContext(ctx, `
			INSERT INTO records
			(type, id, client_id, attributes, belongs_to, has_many, is_deleted, errors, revision, fingerprint)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			rec.Type, rec.ID, rec.ClientID,
			cols.attributes, cols.belongsTo, cols.hasMany, rec.IsDeleted, cols.errors,
			revision, fingerprint,
		)
		if err != nil {
			return Record{}, fmt.Errorf("write record: insert: %w", err)
		}
	case err != nil:
		return Record{}, fmt.Errorf("write record: query existing: %w", err)
	case storedFingerprint == fingerprint:
		// Unchanged content; nothing to write.
	default:
		revision++
		_, err = tx.ExecContext(ctx, `
			UPDATE records
			SET client_id = ?, attributes = ?, belongs_to = ?, has_many = ?,
			    is_deleted = ?, errors = ?, revision = ?, fingerprint = ?
			WHERE type = ? AND id = ?
		`,
			rec.ClientID, cols.attributes, cols.belongsTo, cols.hasMany,
			rec.IsDeleted, cols.errors, revision, fingerprint,
			rec.Type, rec.ID,
		)
		if err != nil {
			return Record{}, fmt.Errorf("write record: update: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return Record{}, fmt.Errorf("write record: commit: %w", err)
	}

	rec.Revision = revision
	rec.Fingerprint = fingerprint
	return rec, nil
}

// DeleteRecord removes the record stored under (type, id).
// Returns false if no such record exists.
func (s *Store) DeleteRecord(ctx context.Context, typ, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE type = ? AND id = ?`, typ, id)
	if err != nil {
		return false, fmt.Errorf("delete record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete record: rows affected: %w", err)
	}
	return n > 0, nil
}

type columns struct {
	attributes string
	belongsTo  string
	hasMany    string
	errors     sql.NullString
}

func encodeColumns(rec Record) (columns, error) {
	var cols columns
	var err error

	if cols.attributes, err = marshalMap("attributes", rec.Attributes); err != nil {
		return columns{}, err
	}
	if cols.belongsTo, err = marshalMap("belongs_to", encodeBelongsTo(rec.BelongsTo)); err != nil {
		return columns{}, err
	}
	if cols.hasMany, err = marshalMap("has_many", encodeHasMany(rec.HasMany)); err != nil {
		return columns{}, err
	}
	if rec.Errors != nil {
		data, err := marshalMap("errors", rec.Errors)
		if err != nil {
			return columns{}, err
		}
		cols.errors = sql.NullString{String: data, Valid: true}
	}
	return cols, nil
}
