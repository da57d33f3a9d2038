package repos

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"room-sync/internal/models"
)

// RoomRepo is the write-through durability layer for room state. The
// in-memory rooms never depend on it for correctness; it exists so a
// restarted server can hand rejoining devices their last known state.
type RoomRepo struct {
	db *sql.DB
}

func NewRoomRepo(db *sql.DB) *RoomRepo {
	return &RoomRepo{db: db}
}

func (r *RoomRepo) DB() *sql.DB {
	return r.db
}

func (r *RoomRepo) WithTx(fn func(tx *sql.Tx) error) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// LoadRoomState returns the live records persisted for a room code.
func (r *RoomRepo) LoadRoomState(code string) (models.Collections, error) {
	var out models.Collections
	rows, err := r.db.Query(`
		SELECT entity_type, payload
		FROM room_records
		WHERE room_code = ? AND deleted = 0
	`, code)
	if err != nil {
		return out, err
	}
	defer rows.Close()

	for rows.Next() {
		var et models.EntityType
		var payload []byte
		if err := rows.Scan(&et, &payload); err != nil {
			return out, err
		}
		switch et {
		case models.EntityCustomers:
			var c models.Customer
			if err := json.Unmarshal(payload, &c); err != nil {
				return out, fmt.Errorf("decode customer payload: %w", err)
			}
			out.Customers = append(out.Customers, c)
		case models.EntitySales:
			var s models.Sale
			if err := json.Unmarshal(payload, &s); err != nil {
				return out, fmt.Errorf("decode sale payload: %w", err)
			}
			out.Sales = append(out.Sales, s)
		case models.EntityExpenses:
			var e models.Expense
			if err := json.Unmarshal(payload, &e); err != nil {
				return out, fmt.Errorf("decode expense payload: %w", err)
			}
			out.Expenses = append(out.Expenses, e)
		}
	}
	return out, rows.Err()
}

// SaveRoomState replaces the live rows for a room with the given snapshot.
// Tombstoned rows are left alone so MarkDeleted survives a save.
func (r *RoomRepo) SaveRoomState(code string, data models.Collections) error {
	return r.WithTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM room_records WHERE room_code = ? AND deleted = 0`, code); err != nil {
			return err
		}
		for _, c := range data.Customers {
			if err := upsertRecordTx(tx, code, models.EntityCustomers, c.ID, c, c.LastUpdated); err != nil {
				return err
			}
		}
		for _, s := range data.Sales {
			if err := upsertRecordTx(tx, code, models.EntitySales, s.ID, s, s.LastUpdated); err != nil {
				return err
			}
		}
		for _, e := range data.Expenses {
			if err := upsertRecordTx(tx, code, models.EntityExpenses, e.ID, e, e.LastUpdated); err != nil {
				return err
			}
		}
		return nil
	})
}

// MarkDeleted records a durable tombstone for one record.
func (r *RoomRepo) MarkDeleted(code string, et models.EntityType, id string, when int64) error {
	_, err := r.db.Exec(`
		INSERT INTO room_records (room_code, entity_type, record_id, payload, last_updated, deleted, deleted_at)
		VALUES (?, ?, ?, '{}', ?, 1, ?)
		ON CONFLICT(room_code, entity_type, record_id) DO UPDATE SET
			deleted = 1,
			deleted_at = MAX(COALESCE(room_records.deleted_at, 0), excluded.deleted_at)
	`, code, et, id, when, when)
	return err
}

func upsertRecordTx(tx *sql.Tx, code string, et models.EntityType, id string, rec any, lastUpdated int64) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = tx.Exec(`
		INSERT INTO room_records (room_code, entity_type, record_id, payload, last_updated, deleted, deleted_at)
		VALUES (?, ?, ?, ?, ?, 0, NULL)
		ON CONFLICT(room_code, entity_type, record_id) DO UPDATE SET
			payload = excluded.payload,
			last_updated = excluded.last_updated,
			deleted = 0,
			deleted_at = NULL
	`, code, et, id, payload, lastUpdated)
	return err
}
