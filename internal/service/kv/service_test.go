package kv

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hoxsec/Godot-GameBackendAPI/internal/domain"
	"github.com/hoxsec/Godot-GameBackendAPI/internal/repository"
)

type stubKVRepo struct {
	entries map[string]domain.KVEntry
}

func newStubKVRepo() *stubKVRepo {
	return &stubKVRepo{entries: make(map[string]domain.KVEntry)}
}

func (s *stubKVRepo) GetKV(_ context.Context, userID, key string) (*domain.KVEntry, error) {
	e, ok := s.entries[userID+"/"+key]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &e, nil
}

func (s *stubKVRepo) UpsertKV(_ context.Context, entry *domain.KVEntry) error {
	id := entry.UserID + "/" + entry.Key
	entry.Version = s.entries[id].Version + 1
	s.entries[id] = *entry
	return nil
}

func (s *stubKVRepo) UpdateKVIfVersion(_ context.Context, entry *domain.KVEntry, expected int64) error {
	id := entry.UserID + "/" + entry.Key
	current, ok := s.entries[id]
	if !ok || current.Version != expected {
		return repository.ErrConflict
	}
	entry.Version = expected + 1
	s.entries[id] = *entry
	return nil
}

func (s *stubKVRepo) DeleteKV(_ context.Context, userID, key string, expected *int64) error {
	id := userID + "/" + key
	current, ok := s.entries[id]
	if !ok {
		return repository.ErrNotFound
	}
	if expected != nil && current.Version != *expected {
		return repository.ErrConflict
	}
	delete(s.entries, id)
	return nil
}

func version(v int64) *int64 { return &v }

func TestPutBumpsVersion(t *testing.T) {
	svc := New(newStubKVRepo(), nil)
	ctx := context.Background()

	first, err := svc.Put(ctx, "user_1", "save", json.RawMessage(`{"level":1}`), nil)
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if first.Version != 1 {
		t.Fatalf("expected version 1, got %d", first.Version)
	}
	second, err := svc.Put(ctx, "user_1", "save", json.RawMessage(`{"level":2}`), version(1))
	if err != nil {
		t.Fatalf("put with version: %v", err)
	}
	if second.Version != 2 {
		t.Fatalf("expected version 2, got %d", second.Version)
	}

	got, err := svc.Get(ctx, "user_1", "save")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got.Value) != `{"level":2}` || got.Version != 2 {
		t.Fatalf("unexpected entry %+v", got)
	}
}

func TestPutVersionMismatch(t *testing.T) {
	svc := New(newStubKVRepo(), nil)
	ctx := context.Background()

	if _, err := svc.Put(ctx, "user_1", "save", json.RawMessage(`1`), version(1)); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected mismatch for missing key, got %v", err)
	}
	if _, err := svc.Put(ctx, "user_1", "save", json.RawMessage(`1`), nil); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := svc.Put(ctx, "user_1", "save", json.RawMessage(`2`), version(7)); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected mismatch for stale version, got %v", err)
	}
	if _, err := svc.Put(ctx, "user_1", "save", nil, nil); !errors.Is(err, ErrValueRequired) {
		t.Fatalf("expected ErrValueRequired, got %v", err)
	}
	if _, err := svc.Put(ctx, "user_1", " ", json.RawMessage(`1`), nil); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
}

func TestDelete(t *testing.T) {
	svc := New(newStubKVRepo(), nil)
	ctx := context.Background()

	if err := svc.Delete(ctx, "user_1", "save", nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := svc.Put(ctx, "user_1", "save", json.RawMessage(`1`), nil); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := svc.Delete(ctx, "user_1", "save", version(3)); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected ErrVersionMismatch, got %v", err)
	}
	if err := svc.Delete(ctx, "user_1", "save", version(1)); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := svc.Get(ctx, "user_1", "save"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected key to be gone, got %v", err)
	}
}
