package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/reviewsight/reviewsight/internal/model"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS reviews (
	id             TEXT PRIMARY KEY,
	website        TEXT NOT NULL,
	product        TEXT NOT NULL,
	rating         SMALLINT NOT NULL CHECK (rating BETWEEN 1 AND 5),
	feedback       TEXT NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL,
	client         JSONB NOT NULL DEFAULT '{}'::jsonb,
	insight        JSONB,
	classification TEXT
);
CREATE INDEX IF NOT EXISTS reviews_created_at_idx ON reviews (created_at DESC);
CREATE INDEX IF NOT EXISTS reviews_website_product_idx ON reviews (website, product, created_at DESC);
CREATE INDEX IF NOT EXISTS reviews_classification_idx ON reviews (classification, created_at DESC);
`

var reviewColumns = []string{
	"id", "website", "product", "rating", "feedback", "created_at", "client", "insight",
}

// Postgres is the durable ReviewStore. Each read is a single statement, or a
// read-only transaction for Summarize, so it observes one consistent snapshot.
type Postgres struct {
	db    *pgxpool.Pool
	clock clock
	psql  sq.StatementBuilderType
}

var (
	_ ReviewStore = (*Postgres)(nil)
	_ Summarizer  = (*Postgres)(nil)
)

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// NewPostgres connects to dsn and applies the schema.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	p := &Postgres{
		db:   db,
		psql: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
	if err := p.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return p, nil
}

// Migrate creates the reviews table and its indexes if missing.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (p *Postgres) CreateReview(ctx context.Context, in model.NewReview) (model.Review, error) {
	r := model.Review{
		ID:        uuid.New().String(),
		Website:   in.Website,
		Product:   in.Product,
		Rating:    in.Rating,
		Feedback:  in.Feedback,
		Client:    in.Client,
		CreatedAt: p.clock.Next(),
	}

	client, err := json.Marshal(r.Client)
	if err != nil {
		return model.Review{}, fmt.Errorf("marshal client info: %w", err)
	}

	query, args, err := p.psql.Insert("reviews").
		Columns("id", "website", "product", "rating", "feedback", "created_at", "client").
		Values(r.ID, r.Website, r.Product, r.Rating, r.Feedback, r.CreatedAt, client).
		ToSql()
	if err != nil {
		return model.Review{}, err
	}
	if _, err := p.db.Exec(ctx, query, args...); err != nil {
		return model.Review{}, fmt.Errorf("insert review: %w", err)
	}
	return r, nil
}

func (p *Postgres) AttachInsight(ctx context.Context, reviewID string, insight model.Insight) error {
	data, err := json.Marshal(insight)
	if err != nil {
		return fmt.Errorf("marshal insight: %w", err)
	}

	query, args, err := p.psql.Update("reviews").
		Set("insight", data).
		Set("classification", string(insight.Classification)).
		Where(sq.Eq{"id": reviewID}).
		ToSql()
	if err != nil {
		return err
	}
	tag, err := p.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("attach insight %s: %w", reviewID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) GetReview(ctx context.Context, reviewID string) (model.Review, error) {
	query, args, err := p.psql.Select(reviewColumns...).
		From("reviews").
		Where(sq.Eq{"id": reviewID}).
		ToSql()
	if err != nil {
		return model.Review{}, err
	}

	r, err := scanReview(p.db.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Review{}, ErrNotFound
	}
	if err != nil {
		return model.Review{}, fmt.Errorf("get review %s: %w", reviewID, err)
	}
	return r, nil
}

func (p *Postgres) ListReviews(ctx context.Context, key model.FilterKey, limit int) ([]model.Review, error) {
	return p.listReviews(ctx, p.db, key, limit)
}

func (p *Postgres) listReviews(ctx context.Context, q querier, key model.FilterKey, limit int) ([]model.Review, error) {
	b := p.psql.Select(reviewColumns...).
		From("reviews").
		Where(filterWhere(key)).
		OrderBy("created_at DESC", "id DESC")
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	defer rows.Close()

	var out []model.Review
	for rows.Next() {
		r, err := scanReview(rows)
		if err != nil {
			return nil, fmt.Errorf("scan review: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *Postgres) LatestTimestamp(ctx context.Context, key model.FilterKey) (time.Time, bool, error) {
	query, args, err := p.psql.Select("max(created_at)").
		From("reviews").
		Where(filterWhere(key)).
		ToSql()
	if err != nil {
		return time.Time{}, false, err
	}

	var latest *time.Time
	if err := p.db.QueryRow(ctx, query, args...).Scan(&latest); err != nil {
		return time.Time{}, false, fmt.Errorf("latest timestamp: %w", err)
	}
	if latest == nil {
		return time.Time{}, false, nil
	}
	return latest.UTC(), true, nil
}

// Summarize aggregates in SQL inside one read-only repeatable-read
// transaction, so every figure comes from the same snapshot.
func (p *Postgres) Summarize(ctx context.Context, key model.FilterKey, recentLimit int) (model.Summary, error) {
	s := model.Summary{
		ClassificationCounts: make(map[model.Classification]int),
		WebsiteBreakdown:     []model.Breakdown{},
		ProductBreakdown:     []model.Breakdown{},
		LatestReviews:        []model.Review{},
	}

	tx, err := p.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return model.Summary{}, fmt.Errorf("begin summary: %w", err)
	}
	defer tx.Rollback(ctx)

	where := filterWhere(key)
	query, args, err := p.psql.Select("count(*)", "coalesce(sum(rating), 0)", "max(created_at)").
		From("reviews").
		Where(where).
		ToSql()
	if err != nil {
		return model.Summary{}, err
	}

	var (
		ratingSum int64
		latest    *time.Time
	)
	if err := tx.QueryRow(ctx, query, args...).Scan(&s.TotalReviews, &ratingSum, &latest); err != nil {
		return model.Summary{}, fmt.Errorf("summary totals: %w", err)
	}
	if s.TotalReviews == 0 {
		return s, nil
	}
	s.AvgRating = model.RoundRating(float64(ratingSum) / float64(s.TotalReviews))
	if latest != nil {
		s.SourceMaxTimestamp = latest.UTC()
	}

	classes, err := p.groupBy(ctx, tx, "classification", where)
	if err != nil {
		return model.Summary{}, err
	}
	for _, g := range classes {
		if g.name == "" {
			s.Unclassified += g.count
			continue
		}
		s.ClassificationCounts[model.Classification(g.name)] = g.count
	}

	if s.WebsiteBreakdown, err = p.breakdown(ctx, tx, "website", where); err != nil {
		return model.Summary{}, err
	}
	if s.ProductBreakdown, err = p.breakdown(ctx, tx, "product", where); err != nil {
		return model.Summary{}, err
	}

	recent, err := p.listReviews(ctx, tx, key, recentLimit)
	if err != nil {
		return model.Summary{}, err
	}
	s.LatestReviews = append(s.LatestReviews, recent...)

	return s, nil
}

type groupRow struct {
	name  string
	count int
	sum   int64
}

func (p *Postgres) groupBy(ctx context.Context, q querier, column string, where sq.Eq) ([]groupRow, error) {
	expr := fmt.Sprintf("coalesce(%s, '')", column)
	query, args, err := p.psql.Select(expr, "count(*)", "sum(rating)").
		From("reviews").
		Where(where).
		GroupBy(expr).
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("group by %s: %w", column, err)
	}
	defer rows.Close()

	var out []groupRow
	for rows.Next() {
		var g groupRow
		if err := rows.Scan(&g.name, &g.count, &g.sum); err != nil {
			return nil, fmt.Errorf("scan %s group: %w", column, err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (p *Postgres) breakdown(ctx context.Context, q querier, column string, where sq.Eq) ([]model.Breakdown, error) {
	groups, err := p.groupBy(ctx, q, column, where)
	if err != nil {
		return nil, err
	}
	out := make([]model.Breakdown, 0, len(groups))
	for _, g := range groups {
		out = append(out, model.Breakdown{
			Name:      g.name,
			Count:     g.count,
			AvgRating: model.RoundRating(float64(g.sum) / float64(g.count)),
		})
	}
	model.SortBreakdowns(out)
	return out, nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.Ping(ctx)
}

func (p *Postgres) Close() error {
	p.db.Close()
	return nil
}

func filterWhere(key model.FilterKey) sq.Eq {
	eq := sq.Eq{}
	if key.Website != "" {
		eq["website"] = key.Website
	}
	if key.Product != "" {
		eq["product"] = key.Product
	}
	if key.Classification != "" {
		eq["classification"] = string(key.Classification)
	}
	return eq
}

func scanReview(row pgx.Row) (model.Review, error) {
	var (
		r       model.Review
		client  []byte
		insight []byte
	)
	if err := row.Scan(&r.ID, &r.Website, &r.Product, &r.Rating, &r.Feedback, &r.CreatedAt, &client, &insight); err != nil {
		return model.Review{}, err
	}
	r.CreatedAt = r.CreatedAt.UTC()

	if len(client) > 0 {
		if err := json.Unmarshal(client, &r.Client); err != nil {
			return model.Review{}, fmt.Errorf("decode client info: %w", err)
		}
	}
	if len(insight) > 0 {
		var in model.Insight
		if err := json.Unmarshal(insight, &in); err != nil {
			return model.Review{}, fmt.Errorf("decode insight: %w", err)
		}
		r.Insight = &in
	}
	return r, nil
}
