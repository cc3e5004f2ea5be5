package postgres

import (
	"errors"
	"testing"
	"time"

	"github.com/travelmesh/bms/internal/domain"
)

func TestIdempotencyRepository_PostgresCreateAndReplay(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewIdempotencyRepository(store)

	expires := time.Now().UTC().Add(time.Hour)
	created, err := repo.CreateProcessing("key-1", "hash-1", expires)
	if err != nil {
		t.Fatalf("create processing: %v", err)
	}
	if created.Status != domain.IdempotencyStatusProcessing {
		t.Fatalf("unexpected status: %s", created.Status)
	}

	existing, err := repo.CreateProcessing("key-1", "hash-1", expires)
	if !errors.Is(err, domain.ErrIdempotencyKeyAlreadyExists) {
		t.Fatalf("expected ErrIdempotencyKeyAlreadyExists, got %v", err)
	}
	if existing.Key != "key-1" || existing.RequestHash != "hash-1" {
		t.Fatalf("unexpected existing record: %+v", existing)
	}

	if err := repo.MarkDone("key-1", []byte(`{"booking_id":"b-1"}`), 201); err != nil {
		t.Fatalf("mark done: %v", err)
	}
	got, err := repo.Get("key-1")
	if err != nil {
		t.Fatalf("get key: %v", err)
	}
	if got.Status != domain.IdempotencyStatusDone || got.HTTPStatus != 201 || string(got.ResponseBody) != `{"booking_id":"b-1"}` {
		t.Fatalf("unexpected stored response: %+v", got)
	}
}

func TestIdempotencyRepository_PostgresValidationAndMisses(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewIdempotencyRepository(store)

	if _, err := repo.CreateProcessing("", "hash", time.Now().Add(time.Hour)); !errors.Is(err, domain.ErrIdempotencyKeyRequired) {
		t.Fatalf("expected ErrIdempotencyKeyRequired, got %v", err)
	}
	if _, err := repo.CreateProcessing("key", "", time.Now().Add(time.Hour)); !errors.Is(err, domain.ErrIdempotencyRequestHashRequired) {
		t.Fatalf("expected ErrIdempotencyRequestHashRequired, got %v", err)
	}
	if _, err := repo.Get("missing"); !errors.Is(err, domain.ErrIdempotencyKeyNotFound) {
		t.Fatalf("expected ErrIdempotencyKeyNotFound, got %v", err)
	}
	if err := repo.MarkFailed("missing", nil, 500); !errors.Is(err, domain.ErrIdempotencyKeyNotFound) {
		t.Fatalf("expected ErrIdempotencyKeyNotFound on mark, got %v", err)
	}
}

func TestIdempotencyRepository_PostgresDeleteExpired(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewIdempotencyRepository(store)

	now := time.Now().UTC()
	if _, err := repo.CreateProcessing("expired-1", "hash", now.Add(-time.Hour)); err != nil {
		t.Fatalf("create expired-1: %v", err)
	}
	if _, err := repo.CreateProcessing("expired-2", "hash", now.Add(-time.Minute)); err != nil {
		t.Fatalf("create expired-2: %v", err)
	}
	if _, err := repo.CreateProcessing("alive", "hash", now.Add(time.Hour)); err != nil {
		t.Fatalf("create alive: %v", err)
	}

	deleted, err := repo.DeleteExpired(now, 10)
	if err != nil {
		t.Fatalf("delete expired: %v", err)
	}
	if deleted != 2 {
		t.Fatalf("expected 2 deleted keys, got %d", deleted)
	}
	if _, err := repo.Get("alive"); err != nil {
		t.Fatalf("alive key must survive cleanup: %v", err)
	}
}
