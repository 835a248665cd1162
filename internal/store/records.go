package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hollis-dev/basalt/internal/schema"
)

// ErrUniqueTaken reports a unique-value claim that lost the race.
// The record store maps it to a UniqueConstraintError with field
// context attached.
var ErrUniqueTaken = errors.New("unique value already claimed")

// ErrRecordNotFound reports a missing record row.
var ErrRecordNotFound = errors.New("record not found")

const timeLayout = time.RFC3339Nano

// InsertRecord writes a new record row.
func (t *Tx) InsertRecord(ctx context.Context, rec *schema.Record) error {
	data, err := json.Marshal(rec.Data)
	if err != nil {
		return fmt.Errorf("marshal record data: %w", err)
	}

	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO records (id, collection_id, data, created, updated)
		VALUES (?, ?, ?, ?, ?)
	`,
		rec.ID,
		rec.CollectionID,
		string(data),
		rec.Created.UTC().Format(timeLayout),
		rec.Updated.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert record %s: %w", rec.ID, err)
	}
	return nil
}

// UpdateRecord rewrites a record's data and updated timestamp.
func (t *Tx) UpdateRecord(ctx context.Context, rec *schema.Record) error {
	data, err := json.Marshal(rec.Data)
	if err != nil {
		return fmt.Errorf("marshal record data: %w", err)
	}

	res, err := t.tx.ExecContext(ctx, `
		UPDATE records SET data = ?, updated = ? WHERE id = ?
	`, string(data), rec.Updated.UTC().Format(timeLayout), rec.ID)
	if err != nil {
		return fmt.Errorf("update record %s: %w", rec.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update record %s: %w", rec.ID, ErrRecordNotFound)
	}
	return nil
}

// DeleteRecord removes a record row. Unique claims cascade via the
// foreign key on record_uniques.
func (t *Tx) DeleteRecord(ctx context.Context, id string) error {
	_, err := t.tx.ExecContext(ctx, `DELETE FROM records WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete record %s: %w", id, err)
	}
	return nil
}

// GetRecord reads one record inside the transaction.
func (t *Tx) GetRecord(ctx context.Context, id string) (*schema.Record, error) {
	row := t.tx.QueryRowContext(ctx, `
		SELECT id, collection_id, data, created, updated
		FROM records WHERE id = ?
	`, id)
	return scanRecord(row)
}

// ListRecords reads every record of a collection inside the
// transaction, ordered by creation time then id for determinism.
func (t *Tx) ListRecords(ctx context.Context, collectionID string) ([]*schema.Record, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT id, collection_id, data, created, updated
		FROM records
		WHERE collection_id = ?
		ORDER BY created ASC, id COLLATE BINARY ASC
	`, collectionID)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()
	return collectRecords(rows)
}

// ClaimUnique inserts a unique-value claim for a record. Returns
// ErrUniqueTaken if another record already holds the value.
func (t *Tx) ClaimUnique(ctx context.Context, collectionID, fieldName, valueKey, recordID string) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO record_uniques (collection_id, field_name, value_key, record_id)
		VALUES (?, ?, ?, ?)
	`, collectionID, fieldName, valueKey, recordID)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrUniqueTaken
		}
		return fmt.Errorf("claim unique %s.%s: %w", collectionID, fieldName, err)
	}
	return nil
}

// ReleaseUniques drops every unique claim held by a record. Called
// before re-claiming on update so a record can keep its own values.
func (t *Tx) ReleaseUniques(ctx context.Context, recordID string) error {
	_, err := t.tx.ExecContext(ctx, `
		DELETE FROM record_uniques WHERE record_id = ?
	`, recordID)
	if err != nil {
		return fmt.Errorf("release uniques for %s: %w", recordID, err)
	}
	return nil
}

// GetRecord reads one record outside any transaction.
func (s *Store) GetRecord(ctx context.Context, id string) (*schema.Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, collection_id, data, created, updated
		FROM records WHERE id = ?
	`, id)
	return scanRecord(row)
}

// ListRecords reads every record of a collection, deterministically
// ordered. List filtering, sorting and pagination happen above in the
// record store; reads are not blocked by migrations.
func (s *Store) ListRecords(ctx context.Context, collectionID string) ([]*schema.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, collection_id, data, created, updated
		FROM records
		WHERE collection_id = ?
		ORDER BY created ASC, id COLLATE BINARY ASC
	`, collectionID)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()
	return collectRecords(rows)
}

// CountRecords returns the number of records in a collection.
func (s *Store) CountRecords(ctx context.Context, collectionID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM records WHERE collection_id = ?
	`, collectionID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n, nil
}

// FieldHasData counts records of a collection holding a non-null
// value for the named field. Implements schema.DataChecker; consulted
// before destructive field removal.
func (s *Store) FieldHasData(ctx context.Context, collectionID, fieldName string) (int, error) {
	recs, err := s.ListRecords(ctx, collectionID)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, r := range recs {
		if v, ok := r.Data[fieldName]; ok && v != nil {
			n++
		}
	}
	return n, nil
}

// RenameFieldData moves every record value stored under oldName to
// newName, in one transaction per collection. Unique claims follow
// the field so a renamed unique field keeps enforcing. Implements
// schema.DataMigrator.
func (s *Store) RenameFieldData(ctx context.Context, collectionID, oldName, newName string) error {
	return s.WithTx(ctx, func(tx *Tx) error {
		rows, err := tx.ListRecords(ctx, collectionID)
		if err != nil {
			return err
		}
		for _, rec := range rows {
			v, ok := rec.Data[oldName]
			if !ok {
				continue
			}
			delete(rec.Data, oldName)
			rec.Data[newName] = v
			if err := tx.UpdateRecord(ctx, rec); err != nil {
				return err
			}
		}
		_, err = tx.tx.ExecContext(ctx, `
			UPDATE record_uniques SET field_name = ?
			WHERE collection_id = ? AND field_name = ?
		`, newName, collectionID, oldName)
		if err != nil {
			return fmt.Errorf("rename unique claims %s.%s: %w", collectionID, oldName, err)
		}
		return nil
	})
}

// RemoveFieldData drops the named key from every record of a
// collection together with its unique claims. Implements
// schema.DataMigrator.
func (s *Store) RemoveFieldData(ctx context.Context, collectionID, fieldName string) error {
	return s.WithTx(ctx, func(tx *Tx) error {
		rows, err := tx.ListRecords(ctx, collectionID)
		if err != nil {
			return err
		}
		for _, rec := range rows {
			if _, ok := rec.Data[fieldName]; !ok {
				continue
			}
			delete(rec.Data, fieldName)
			if err := tx.UpdateRecord(ctx, rec); err != nil {
				return err
			}
		}
		_, err = tx.tx.ExecContext(ctx, `
			DELETE FROM record_uniques
			WHERE collection_id = ? AND field_name = ?
		`, collectionID, fieldName)
		if err != nil {
			return fmt.Errorf("drop unique claims %s.%s: %w", collectionID, fieldName, err)
		}
		return nil
	})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*schema.Record, error) {
	var rec schema.Record
	var data, created, updated string
	err := row.Scan(&rec.ID, &rec.CollectionID, &data, &created, &updated)
	if err == sql.ErrNoRows {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan record: %w", err)
	}

	if err := json.Unmarshal([]byte(data), &rec.Data); err != nil {
		return nil, fmt.Errorf("unmarshal record %s data: %w", rec.ID, err)
	}
	if rec.Created, err = time.Parse(timeLayout, created); err != nil {
		return nil, fmt.Errorf("parse record %s created: %w", rec.ID, err)
	}
	if rec.Updated, err = time.Parse(timeLayout, updated); err != nil {
		return nil, fmt.Errorf("parse record %s updated: %w", rec.ID, err)
	}
	return &rec, nil
}

func collectRecords(rows *sql.Rows) ([]*schema.Record, error) {
	var out []*schema.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return out, nil
}
