//go:build integration

package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/freeeve/secgame/api/internal/model"
	"github.com/freeeve/secgame/api/internal/testutil"
)

var testDB *sql.DB

func setup(t *testing.T) *AnalysisRepo {
	t.Helper()
	if testDB == nil {
		testDB = testutil.SetupDB(t)
	}
	testutil.CleanupDB(t, testDB)
	return NewAnalysisRepo(testDB)
}

func createTestAnalysis(t *testing.T, repo *AnalysisRepo, analyst string) *model.Analysis {
	t.Helper()
	a := &model.Analysis{
		ID:        uuid.NewString(),
		AnalystID: analyst,
		Name:      "payments",
		Status:    model.StatusPending,
		Project:   json.RawMessage(`{"name":"payments"}`),
	}
	if err := repo.Create(context.Background(), a); err != nil {
		t.Fatalf("create analysis: %v", err)
	}
	return a
}

func TestAnalysisCreateAndFind(t *testing.T) {
	repo := setup(t)
	a := createTestAnalysis(t, repo, "alice")
	if a.CreatedAt.IsZero() {
		t.Fatal("expected created_at to be set")
	}

	got, err := repo.FindByID(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got == nil || got.Status != model.StatusPending || got.Result != nil {
		t.Fatalf("unexpected analysis: %+v", got)
	}
	if string(got.Project) != `{"name": "payments"}` {
		t.Fatalf("project = %s", got.Project)
	}
}

func TestAnalysisFindMissing(t *testing.T) {
	repo := setup(t)
	got, err := repo.FindByID(context.Background(), uuid.NewString())
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil, got %+v", got)
	}
}

func TestAnalysisUpdateResult(t *testing.T) {
	repo := setup(t)
	a := createTestAnalysis(t, repo, "alice")

	now := time.Now().UTC().Truncate(time.Millisecond)
	a.Status = model.StatusCompleted
	a.StartedAt = &now
	a.FinishedAt = &now
	a.Result = &model.Result{
		Mode:        "classic",
		Rule:        "wald",
		Trials:      10,
		Recommended: model.Recommendation{Arm: 2, Value: 4.5, Measures: []model.Measure{{ID: "M1038", Name: "Execution Prevention"}}},
	}
	if err := repo.Update(context.Background(), a); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := repo.FindByID(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.Status != model.StatusCompleted || got.Result == nil {
		t.Fatalf("unexpected analysis: %+v", got)
	}
	if got.Result.Recommended.Arm != 2 || got.Result.Recommended.Measures[0].ID != "M1038" {
		t.Fatalf("result = %+v", got.Result)
	}
	if got.FinishedAt == nil || !got.FinishedAt.Equal(now) {
		t.Fatalf("finished_at = %v, want %v", got.FinishedAt, now)
	}
}

func TestAnalysisUpdateMissing(t *testing.T) {
	repo := setup(t)
	err := repo.Update(context.Background(), &model.Analysis{ID: uuid.NewString(), Status: model.StatusFailed})
	if err == nil {
		t.Fatal("expected error updating a missing analysis")
	}
}

func TestAnalysisListByAnalyst(t *testing.T) {
	repo := setup(t)
	createTestAnalysis(t, repo, "alice")
	createTestAnalysis(t, repo, "alice")
	createTestAnalysis(t, repo, "bob")

	list, err := repo.ListByAnalyst(context.Background(), "alice", 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 analyses, got %d", len(list))
	}
	if list[0].CreatedAt.Before(list[1].CreatedAt) {
		t.Fatal("expected newest first")
	}

	list, err = repo.ListByAnalyst(context.Background(), "alice", 1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("limit 1 returned %d", len(list))
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	setup(t)
	ctx := context.Background()
	if err := Migrate(ctx, testDB); err != nil {
		t.Fatalf("first migrate: %v", err)
	}
	if err := Migrate(ctx, testDB); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	var n int
	if err := testDB.QueryRowContext(ctx, `SELECT count(*) FROM schema_migrations WHERE version = '001_initial'`).Scan(&n); err != nil {
		t.Fatalf("count versions: %v", err)
	}
	if n != 1 {
		t.Errorf("expected one recorded version, got %d", n)
	}
}
