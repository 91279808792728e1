package storage

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type fakeRow struct {
	vals []any
}

func (r fakeRow) Scan(dest ...any) error {
	if len(dest) != len(r.vals) {
		return fmt.Errorf("scan arity %d, row has %d", len(dest), len(r.vals))
	}
	for i, d := range dest {
		switch v := d.(type) {
		case *string:
			*v = r.vals[i].(string)
		case *int:
			*v = r.vals[i].(int)
		case *[]byte:
			if r.vals[i] == nil {
				*v = nil
			} else {
				*v = r.vals[i].([]byte)
			}
		default:
			return fmt.Errorf("unexpected scan target %T", d)
		}
	}
	return nil
}

func TestScanIdempotencyKeepsPayloadBytes(t *testing.T) {
	payload := []byte(`{"booking_id":"b-1","status":"requested"}`)
	rec, err := scanIdempotency(fakeRow{vals: []any{"alice", "key-1", "b-1", 201, payload}})
	if err != nil {
		t.Fatalf("scanIdempotency: %v", err)
	}
	if !bytes.Equal(rec.ResponsePayload, payload) {
		t.Fatalf("payload = %q, want %q", rec.ResponsePayload, payload)
	}
	if rec.BookingID != "b-1" || rec.StatusCode != 201 {
		t.Fatalf("record = %+v", rec)
	}
	if !rec.Finalized() {
		t.Fatal("record with stored status must be finalized")
	}
}

func TestScanIdempotencyUnfinalizedClaim(t *testing.T) {
	rec, err := scanIdempotency(fakeRow{vals: []any{"alice", "key-1", "", 0, nil}})
	if err != nil {
		t.Fatalf("scanIdempotency: %v", err)
	}
	if rec.ResponsePayload != nil {
		t.Fatalf("payload = %q, want nil", rec.ResponsePayload)
	}
	if rec.Finalized() {
		t.Fatal("claim row must not replay before finalize")
	}
}

func TestIsUniqueViolation(t *testing.T) {
	raceErr := &pgconn.PgError{Code: "23505", ConstraintName: "idx_bookings_slot_active"}
	if !IsUniqueViolation(raceErr) {
		t.Fatal("23505 must report a unique violation")
	}
	if !IsUniqueViolation(fmt.Errorf("insert booking: %w", raceErr)) {
		t.Fatal("wrapped 23505 must report a unique violation")
	}
	if IsUniqueViolation(&pgconn.PgError{Code: "23503"}) {
		t.Fatal("foreign-key violation is not a unique violation")
	}
	if IsUniqueViolation(errors.New("boom")) {
		t.Fatal("plain error is not a unique violation")
	}
}

func TestIsNotFound(t *testing.T) {
	if !IsNotFound(pgx.ErrNoRows) {
		t.Fatal("ErrNoRows must report not found")
	}
	if !IsNotFound(fmt.Errorf("load slot: %w", pgx.ErrNoRows)) {
		t.Fatal("wrapped ErrNoRows must report not found")
	}
	if IsNotFound(errors.New("boom")) {
		t.Fatal("plain error is not not-found")
	}
}
