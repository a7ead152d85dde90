package db

import (
	"context"
	"database/sql"
	"os"
	"testing"

	"qualify/internal/model"
	"qualify/migrations"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/oklog/ulid/v2"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupTestDB(t *testing.T) *Pool {
	databaseURL := os.Getenv("TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	sqlDB, err := sql.Open("pgx", databaseURL)
	require.NoError(t, err)
	defer sqlDB.Close()

	goose.SetBaseFS(migrations.FS)
	require.NoError(t, goose.SetDialect("postgres"))
	require.NoError(t, goose.Up(sqlDB, "."))

	pool, err := NewPool(context.Background(), databaseURL, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func createTestAccount(t *testing.T, pool *Pool) model.Account {
	a := model.Account{
		ID:          ulid.Make().String(),
		Email:       "owner@example.com",
		CompanyName: "Example",
		APIKey:      "pk_" + ulid.Make().String(),
		Plan:        "starter",
		Industry:    "saas",
	}
	require.NoError(t, pool.CreateAccount(context.Background(), a))
	return a
}

func TestQueries_AccountByAPIKey(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	a := createTestAccount(t, pool)

	got, err := pool.GetAccountByAPIKey(ctx, a.APIKey)
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)
	assert.Equal(t, "starter", got.Plan)

	_, err = pool.GetAccountByAPIKey(ctx, "pk_missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestQueries_ResponseLifecycle(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	a := createTestAccount(t, pool)

	created, err := pool.CreateResponse(ctx, Response{
		ID:        ulid.Make().String(),
		AccountID: a.ID,
		VisitorID: "v_1",
		Answers: []model.Answer{
			{QuestionID: "intent", Question: "Why?", Answer: "pricing", TimeToAnswer: 1200},
		},
		Score:     0.8,
		Qualified: true,
		Status:    string(model.LeadQualified),
		Metadata:  map[string]interface{}{"totalTime": float64(1200)},
	})
	require.NoError(t, err)
	require.Len(t, created.Answers, 1)
	assert.Equal(t, "pricing", created.Answers[0].Answer)

	list, err := pool.ListResponses(ctx, ListResponsesParams{AccountID: a.ID, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	updated, err := pool.UpdateResponseStatus(ctx, a.ID, created.ID, string(model.LeadPending))
	require.NoError(t, err)
	assert.Equal(t, "pending", updated.Status)

	_, err = pool.GetResponse(ctx, "other-account", created.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestQueries_InsertAnalyticsIsIdempotent(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	a := createTestAccount(t, pool)

	ev := model.AnalyticsEvent{
		ID:        ulid.Make().String(),
		AccountID: a.ID,
		EventType: model.EventImpression,
		VisitorID: "v_1",
		Variant:   "widget",
	}
	require.NoError(t, pool.InsertAnalytics(ctx, ev))
	require.NoError(t, pool.InsertAnalytics(ctx, ev))

	var n int
	require.NoError(t, pool.Pool.QueryRow(ctx, "SELECT COUNT(*) FROM analytics WHERE id = $1", ev.ID).Scan(&n))
	assert.Equal(t, 1, n)
}
