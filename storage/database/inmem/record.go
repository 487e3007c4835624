package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/ngazi/core/progression"
)

type recordRepository struct {
	db *recordTable
}

var _ progression.Repository = (*recordRepository)(nil)

func NewRecordRepository(db *DB) *recordRepository {
	return &recordRepository{db: db.records}
}

func (repo *recordRepository) query() []progression.Record {
	records := make([]progression.Record, 0, len(repo.db.table))
	for _, rec := range repo.db.table {
		records = append(records, *rec)
	}
	return records
}

func (repo *recordRepository) GetRecord(_ context.Context, ownerID string, scope null.String) (progression.Record, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, rec := range repo.db.table {
		if rec.IsActive && rec.OwnerID == ownerID && rec.Scope.String == scope.String && rec.Scope.Valid == scope.Valid {
			return *rec, nil
		}
	}
	return progression.Record{}, progression.ErrRecordNotFound
}

func (repo *recordRepository) GetRecordByID(_ context.Context, id string) (progression.Record, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if rec, ok := repo.db.table[id]; ok {
		return *rec, nil
	}
	return progression.Record{}, progression.ErrRecordNotFound
}

func (repo *recordRepository) CreateRecord(_ context.Context, rec progression.Record) (progression.Record, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	// one active record per (owner, scope)
	for _, existing := range repo.db.table {
		if existing.IsActive && existing.OwnerID == rec.OwnerID &&
			existing.Scope.String == rec.Scope.String && existing.Scope.Valid == rec.Scope.Valid {
			return progression.Record{}, progression.ErrConflict
		}
	}

	rec.Version = 1
	repo.db.table[rec.ID] = &rec
	return rec, nil
}

func (repo *recordRepository) UpdateRecord(_ context.Context, rec progression.Record) (progression.Record, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	existing, ok := repo.db.table[rec.ID]
	if !ok || existing.Version != rec.Version {
		return progression.Record{}, progression.ErrConflict
	}

	rec.Version++
	repo.db.table[rec.ID] = &rec
	return rec, nil
}

func (repo *recordRepository) ListOwnerRecords(_ context.Context, ownerID string) ([]progression.Record, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	records := make([]progression.Record, 0)
	for _, rec := range repo.query() {
		if rec.OwnerID == ownerID {
			records = append(records, rec)
		}
	}
	sort.Slice(records, func(i, j int) bool { return records[i].CreatedAt.Before(records[j].CreatedAt) })
	return records, nil
}

func (repo *recordRepository) ListTopRecords(_ context.Context, scope null.String, limit int) ([]progression.Record, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	records := make([]progression.Record, 0)
	for _, rec := range repo.query() {
		if rec.IsActive && rec.Scope.String == scope.String && rec.Scope.Valid == scope.Valid {
			records = append(records, rec)
		}
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].Level != records[j].Level {
			return records[i].Level > records[j].Level
		}
		if records[i].Experience != records[j].Experience {
			return records[i].Experience > records[j].Experience
		}
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
	if len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func (repo *recordRepository) ListActiveScopes(_ context.Context) ([]string, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	seen := make(map[string]bool)
	scopes := make([]string, 0)
	for _, rec := range repo.query() {
		if rec.IsActive && rec.Scope.Valid && !seen[rec.Scope.String] {
			seen[rec.Scope.String] = true
			scopes = append(scopes, rec.Scope.String)
		}
	}
	sort.Strings(scopes)
	return scopes, nil
}

func (repo *recordRepository) DeactivateRecord(_ context.Context, id string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	rec, ok := repo.db.table[id]
	if !ok {
		return progression.ErrRecordNotFound
	}
	rec.IsActive = false
	rec.Version++
	rec.UpdatedAt = time.Now().UTC()
	return nil
}
