package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"qualify/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a row does not exist
var ErrNotFound = errors.New("not found")

// Queries wraps database queries
type Queries struct {
	*pgxpool.Pool
}

// NewQueries creates a new Queries instance
func NewQueries(pool *pgxpool.Pool) *Queries {
	return &Queries{Pool: pool}
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// Account queries
func (q *Queries) GetAccountByAPIKey(ctx context.Context, apiKey string) (model.Account, error) {
	var a model.Account
	var createdAt time.Time
	err := q.Pool.QueryRow(ctx,
		"SELECT id, email, company_name, api_key, plan, industry, created_at FROM accounts WHERE api_key = $1",
		apiKey,
	).Scan(&a.ID, &a.Email, &a.CompanyName, &a.APIKey, &a.Plan, &a.Industry, &createdAt)
	if err != nil {
		return model.Account{}, notFound(err)
	}
	a.CreatedAt = createdAt.UTC().Format(time.RFC3339)
	return a, nil
}

func (q *Queries) CreateAccount(ctx context.Context, a model.Account) error {
	_, err := q.Pool.Exec(ctx,
		"INSERT INTO accounts (id, email, company_name, api_key, plan, industry) VALUES ($1, $2, $3, $4, $5, $6)",
		a.ID, a.Email, a.CompanyName, a.APIKey, a.Plan, a.Industry,
	)
	return err
}

// Response represents a responses row, one per submitted conversation
type Response struct {
	ID              string
	AccountID       string
	VisitorID       string
	SessionID       string
	PageURL         string
	PageTitle       string
	Answers         []model.Answer
	Score           float64
	Qualified       bool
	Status          string
	EngagementScore float64
	Metadata        map[string]interface{}
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

const responseColumns = `id, account_id, visitor_id, session_id, page_url, page_title,
	answers, score, qualified, status, engagement_score, metadata, created_at, updated_at`

func scanResponse(row pgx.Row) (Response, error) {
	var r Response
	err := row.Scan(
		&r.ID, &r.AccountID, &r.VisitorID, &r.SessionID, &r.PageURL, &r.PageTitle,
		&r.Answers, &r.Score, &r.Qualified, &r.Status, &r.EngagementScore, &r.Metadata,
		&r.CreatedAt, &r.UpdatedAt,
	)
	return r, err
}

// Response queries
func (q *Queries) CreateResponse(ctx context.Context, r Response) (Response, error) {
	if r.Answers == nil {
		r.Answers = []model.Answer{}
	}
	if r.Metadata == nil {
		r.Metadata = map[string]interface{}{}
	}
	return scanResponse(q.Pool.QueryRow(ctx,
		`INSERT INTO responses (
			id, account_id, visitor_id, session_id, page_url, page_title,
			answers, score, qualified, status, engagement_score, metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING `+responseColumns,
		r.ID, r.AccountID, r.VisitorID, r.SessionID, r.PageURL, r.PageTitle,
		r.Answers, r.Score, r.Qualified, r.Status, r.EngagementScore, r.Metadata,
	))
}

func (q *Queries) GetResponse(ctx context.Context, accountID, id string) (Response, error) {
	r, err := scanResponse(q.Pool.QueryRow(ctx,
		"SELECT "+responseColumns+" FROM responses WHERE id = $1 AND account_id = $2",
		id, accountID,
	))
	return r, notFound(err)
}

// ListResponsesParams filters an account's responses, newest first
type ListResponsesParams struct {
	AccountID string
	Status    string
	Limit     int
	Offset    int
}

func (q *Queries) ListResponses(ctx context.Context, p ListResponsesParams) ([]Response, error) {
	query := "SELECT " + responseColumns + " FROM responses WHERE account_id = $1"
	args := []interface{}{p.AccountID}
	if p.Status != "" {
		query += " AND status = $2"
		args = append(args, p.Status)
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT %d OFFSET %d", p.Limit, p.Offset)

	rows, err := q.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Response
	for rows.Next() {
		r, err := scanResponse(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (q *Queries) UpdateResponseStatus(ctx context.Context, accountID, id, status string) (Response, error) {
	r, err := scanResponse(q.Pool.QueryRow(ctx,
		`UPDATE responses SET status = $3, updated_at = NOW()
		WHERE id = $1 AND account_id = $2
		RETURNING `+responseColumns,
		id, accountID, status,
	))
	return r, notFound(err)
}

// Analytics queries
func (q *Queries) InsertAnalytics(ctx context.Context, ev model.AnalyticsEvent) error {
	metadata := ev.Metadata
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	_, err := q.Pool.Exec(ctx,
		`INSERT INTO analytics (id, account_id, event_type, visitor_id, session_id, page_url, variant, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING`,
		ev.ID, ev.AccountID, string(ev.EventType), ev.VisitorID, ev.SessionID, ev.PageURL, ev.Variant, metadata,
	)
	return err
}
