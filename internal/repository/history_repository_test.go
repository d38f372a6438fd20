package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"dmcs/internal/domain"
)

func setupHistoryRepo(t *testing.T) *HistoryRepository {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "history.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	repo := NewHistoryRepository(db)
	if err := repo.AutoMigrate(context.Background()); err != nil {
		t.Fatalf("AutoMigrate failed: %v", err)
	}
	return repo
}

func record(t *testing.T, repo *HistoryRepository, file string, entry domain.Entrypoint, status domain.RunStatus) *domain.RunRecord {
	t.Helper()
	rec := &domain.RunRecord{
		RunID:       "run-1",
		Project:     "app",
		Environment: "dev",
		File:        file,
		Entrypoint:  entry,
		Status:      status,
		Duration:    25 * time.Millisecond,
	}
	if status == domain.RunStatusFailed {
		rec.Error = "boom"
	}
	if err := repo.Record(context.Background(), rec); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	// created_at の順序を確定させる
	time.Sleep(5 * time.Millisecond)
	return rec
}

func TestHistoryRepository_RecordAndFind(t *testing.T) {
	repo := setupHistoryRepo(t)
	ctx := context.Background()

	first := record(t, repo, "1000_init.mjs", domain.Up, domain.RunStatusSucceeded)
	record(t, repo, "2000_add_x.mjs", domain.Up, domain.RunStatusFailed)
	if first.ID == "" || first.CreatedAt.IsZero() {
		t.Errorf("Record must fill ID and CreatedAt: %+v", first)
	}

	// 別の環境の記録は含まれない
	other := &domain.RunRecord{RunID: "run-2", Project: "app", Environment: "prod", File: "1000_init.mjs", Entrypoint: domain.Up, Status: domain.RunStatusSucceeded}
	if err := repo.Record(ctx, other); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	records, err := repo.FindByEnvironment(ctx, "app", "dev", 0)
	if err != nil {
		t.Fatalf("FindByEnvironment failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("want 2 records, got %d", len(records))
	}
	if records[0].File != "2000_add_x.mjs" || records[0].Status != domain.RunStatusFailed || records[0].Error != "boom" {
		t.Errorf("want newest failed run first, got %+v", records[0])
	}
	if records[1].Duration != 25*time.Millisecond {
		t.Errorf("want duration 25ms, got %v", records[1].Duration)
	}

	limited, err := repo.FindByEnvironment(ctx, "app", "dev", 1)
	if err != nil {
		t.Fatalf("FindByEnvironment failed: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("want 1 record, got %d", len(limited))
	}
}

func TestHistoryRepository_LastApplied(t *testing.T) {
	repo := setupHistoryRepo(t)
	ctx := context.Background()

	record(t, repo, "1000_init.mjs", domain.Up, domain.RunStatusSucceeded)
	record(t, repo, "1000_init.mjs", domain.Down, domain.RunStatusSucceeded)
	latest := record(t, repo, "1000_init.mjs", domain.Up, domain.RunStatusSucceeded)
	record(t, repo, "2000_add_x.mjs", domain.Up, domain.RunStatusFailed)

	applied, err := repo.LastApplied(ctx, "app", "dev")
	if err != nil {
		t.Fatalf("LastApplied failed: %v", err)
	}
	if len(applied) != 1 {
		t.Fatalf("failed runs must not count, got %v", applied)
	}
	if at := applied["1000_init.mjs"]; at.Sub(latest.CreatedAt).Abs() > time.Millisecond {
		t.Errorf("want latest successful up %v, got %v", latest.CreatedAt, at)
	}
}
