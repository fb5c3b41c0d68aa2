package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/sqlc-dev/pqtype"

	"github.com/DukeRupert/fixmatch/internal/domain"
)

// pgUniqueViolation is the SQLSTATE for a unique constraint failure.
const pgUniqueViolation = "23505"

// PostgresStore persists the dispatch state in Postgres.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a store over db.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// =============================================================================
// Requests
// =============================================================================

const requestColumns = `id, requester_id, category, title, description, urgency, address,
	lat, lng, image_count, video_count, immediate, scheduled_at, status, provider_id,
	classification, quote, candidates, notified, match_attempts, escalated,
	cancellation_reason, charged_amount, settlement, rating_id,
	created_at, updated_at, completed_at, cancelled_at, version`

// requestRow mirrors a service_requests row.
type requestRow struct {
	ID                 uuid.UUID
	RequesterID        uuid.UUID
	Category           string
	Title              string
	Description        string
	Urgency            string
	Address            string
	Lat                sql.NullFloat64
	Lng                sql.NullFloat64
	ImageCount         int
	VideoCount         int
	Immediate          bool
	ScheduledAt        sql.NullTime
	Status             string
	ProviderID         uuid.NullUUID
	Classification     pqtype.NullRawMessage
	Quote              pqtype.NullRawMessage
	Candidates         pqtype.NullRawMessage
	Notified           []string
	MatchAttempts      int
	Escalated          bool
	CancellationReason string
	ChargedAmount      sql.NullInt64
	Settlement         string
	RatingID           uuid.NullUUID
	CreatedAt          time.Time
	UpdatedAt          time.Time
	CompletedAt        sql.NullTime
	CancelledAt        sql.NullTime
	Version            int
}

func scanRequest(row interface{ Scan(...any) error }) (*domain.ServiceRequest, error) {
	var r requestRow
	err := row.Scan(
		&r.ID, &r.RequesterID, &r.Category, &r.Title, &r.Description, &r.Urgency, &r.Address,
		&r.Lat, &r.Lng, &r.ImageCount, &r.VideoCount, &r.Immediate, &r.ScheduledAt, &r.Status, &r.ProviderID,
		&r.Classification, &r.Quote, &r.Candidates, pq.Array(&r.Notified), &r.MatchAttempts, &r.Escalated,
		&r.CancellationReason, &r.ChargedAmount, &r.Settlement, &r.RatingID,
		&r.CreatedAt, &r.UpdatedAt, &r.CompletedAt, &r.CancelledAt, &r.Version,
	)
	if err != nil {
		return nil, err
	}
	return r.toDomain()
}

func (r requestRow) toDomain() (*domain.ServiceRequest, error) {
	req := &domain.ServiceRequest{
		ID:          r.ID,
		RequesterID: r.RequesterID,
		Category:    domain.Category(r.Category),
		Title:       r.Title,
		Description: r.Description,
		Urgency:     domain.Level(r.Urgency),
		Location: domain.Location{
			Address:     r.Address,
			Coordinates: coordsFromNull(r.Lat, r.Lng),
		},
		ImageCount: r.ImageCount,
		VideoCount: r.VideoCount,
		Schedule: domain.Schedule{
			Immediate:   r.Immediate,
			ScheduledAt: timeFromNull(r.ScheduledAt),
		},
		Status:             domain.RequestStatus(r.Status),
		MatchAttempts:      r.MatchAttempts,
		Escalated:          r.Escalated,
		CancellationReason: r.CancellationReason,
		Settlement:         domain.SettlementStatus(r.Settlement),
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
		CompletedAt:        timeFromNull(r.CompletedAt),
		CancelledAt:        timeFromNull(r.CancelledAt),
		Version:            r.Version,
	}
	if r.ProviderID.Valid {
		id := r.ProviderID.UUID
		req.ProviderID = &id
	}
	if r.RatingID.Valid {
		id := r.RatingID.UUID
		req.RatingID = &id
	}
	if r.ChargedAmount.Valid {
		v := r.ChargedAmount.Int64
		req.ChargedAmount = &v
	}
	for _, s := range r.Notified {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("parse notified id: %w", err)
		}
		req.Notified = append(req.Notified, id)
	}
	if err := unmarshalNull(r.Classification, &req.Classification); err != nil {
		return nil, fmt.Errorf("decode classification: %w", err)
	}
	if err := unmarshalNull(r.Quote, &req.Quote); err != nil {
		return nil, fmt.Errorf("decode quote: %w", err)
	}
	if err := unmarshalNull(r.Candidates, &req.Candidates); err != nil {
		return nil, fmt.Errorf("decode candidates: %w", err)
	}
	return req, nil
}

// requestArgs returns the column values in requestColumns order.
func requestArgs(req *domain.ServiceRequest) ([]any, error) {
	classification, err := marshalNull(req.Classification)
	if err != nil {
		return nil, err
	}
	quote, err := marshalNull(req.Quote)
	if err != nil {
		return nil, err
	}
	candidates, err := marshalNull(req.Candidates)
	if err != nil {
		return nil, err
	}
	notified := make([]string, len(req.Notified))
	for i, id := range req.Notified {
		notified[i] = id.String()
	}

	lat, lng := nullCoords(req.Location.Coordinates)
	return []any{
		req.ID, req.RequesterID, string(req.Category), req.Title, req.Description, string(req.Urgency), req.Location.Address,
		lat, lng, req.ImageCount, req.VideoCount, req.Schedule.Immediate, nullTime(req.Schedule.ScheduledAt), string(req.Status), nullUUID(req.ProviderID),
		classification, quote, candidates, pq.Array(notified), req.MatchAttempts, req.Escalated,
		req.CancellationReason, nullInt64(req.ChargedAmount), string(req.Settlement), nullUUID(req.RatingID),
		req.CreatedAt, req.UpdatedAt, nullTime(req.CompletedAt), nullTime(req.CancelledAt), req.Version,
	}, nil
}

const insertRequest = `
INSERT INTO service_requests (` + requestColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
        $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30)`

func (s *PostgresStore) CreateRequest(ctx context.Context, req *domain.ServiceRequest) error {
	req.Version = 1
	args, err := requestArgs(req)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, insertRequest, args...); err != nil {
		return fmt.Errorf("insert request: %w", err)
	}
	return nil
}

const getRequest = `SELECT ` + requestColumns + ` FROM service_requests WHERE id = $1`

func (s *PostgresStore) GetRequest(ctx context.Context, id uuid.UUID) (*domain.ServiceRequest, error) {
	const op = "repository.get_request"

	req, err := scanRequest(s.db.QueryRowContext(ctx, getRequest, id))
	if err != nil {
		return nil, notFound(err, op, "request", id.String())
	}
	return req, nil
}

// $30 is the version the caller read. The status guard in $31 is NULL
// when the caller expects nothing.
const updateRequest = `
UPDATE service_requests SET
    requester_id = $2, category = $3, title = $4, description = $5, urgency = $6, address = $7,
    lat = $8, lng = $9, image_count = $10, video_count = $11, immediate = $12, scheduled_at = $13,
    status = $14, provider_id = $15, classification = $16, quote = $17, candidates = $18,
    notified = $19, match_attempts = $20, escalated = $21, cancellation_reason = $22,
    charged_amount = $23, settlement = $24, rating_id = $25,
    created_at = $26, updated_at = $27, completed_at = $28, cancelled_at = $29,
    version = version + 1
WHERE id = $1 AND version = $30 AND ($31::text[] IS NULL OR status = ANY($31::text[]))`

func (s *PostgresStore) SaveRequest(ctx context.Context, req *domain.ServiceRequest, expect ...domain.RequestStatus) error {
	args, err := requestArgs(req)
	if err != nil {
		return err
	}

	var guard []string
	for _, st := range expect {
		guard = append(guard, string(st))
	}
	args = append(args, pq.Array(guard))

	result, err := s.db.ExecContext(ctx, updateRequest, args...)
	if err != nil {
		return fmt.Errorf("update request: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update request: %w", err)
	}
	if n == 0 {
		return s.saveConflict(ctx, req, guard)
	}
	req.Version++
	return nil
}

// saveConflict explains a SaveRequest that touched no rows: either the
// status moved, or it did not and the version did.
func (s *PostgresStore) saveConflict(ctx context.Context, req *domain.ServiceRequest, guard []string) error {
	const op = "repository.save_request"

	var (
		current string
		version int
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT status, version FROM service_requests WHERE id = $1`, req.ID,
	).Scan(&current, &version)
	if err != nil {
		return notFound(err, op, "request", req.ID.String())
	}
	if len(guard) > 0 && !slices.Contains(guard, current) {
		return &domain.StateTransitionError{
			RequestID: req.ID.String(),
			Current:   domain.RequestStatus(current),
			Target:    req.Status,
		}
	}
	return &domain.VersionConflictError{
		RequestID: req.ID.String(),
		Expected:  req.Version,
		Current:   version,
	}
}

const assignProvider = `
UPDATE service_requests
SET status = 'confirmed',
    provider_id = $2,
    quote = jsonb_set(COALESCE(quote, '{}'::jsonb), '{frozen}', 'true'::jsonb),
    updated_at = $3,
    version = version + 1
WHERE id = $1 AND status = 'matched'
RETURNING ` + requestColumns

// AssignProvider is a single conditional UPDATE, so only one of several
// concurrent callers sees a returned row.
func (s *PostgresStore) AssignProvider(ctx context.Context, id, providerID uuid.UUID, at time.Time) (*domain.ServiceRequest, error) {
	req, err := scanRequest(s.db.QueryRowContext(ctx, assignProvider, id, providerID, at))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, s.transitionConflict(ctx, "repository.assign_provider", id, domain.RequestStatusConfirmed)
	}
	if err != nil {
		return nil, fmt.Errorf("assign provider: %w", err)
	}
	return req, nil
}

// transitionConflict explains a guarded write that touched no rows.
func (s *PostgresStore) transitionConflict(ctx context.Context, op string, id uuid.UUID, target domain.RequestStatus) error {
	var current string
	err := s.db.QueryRowContext(ctx, `SELECT status FROM service_requests WHERE id = $1`, id).Scan(&current)
	if err != nil {
		return notFound(err, op, "request", id.String())
	}
	return &domain.StateTransitionError{
		RequestID: id.String(),
		Current:   domain.RequestStatus(current),
		Target:    target,
	}
}

const listPendingOffers = `
SELECT ` + requestColumns + `
FROM service_requests
WHERE status = 'matched' AND $1::uuid = ANY(notified)
ORDER BY created_at`

func (s *PostgresStore) ListPendingOffers(ctx context.Context, providerID uuid.UUID) ([]domain.ServiceRequest, error) {
	rows, err := s.db.QueryContext(ctx, listPendingOffers, providerID)
	if err != nil {
		return nil, fmt.Errorf("list pending offers: %w", err)
	}
	defer rows.Close()

	var out []domain.ServiceRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *req)
	}
	return out, rows.Err()
}

// =============================================================================
// Tracking
// =============================================================================

func (s *PostgresStore) AppendTracking(ctx context.Context, ev domain.TrackingEvent) error {
	lat, lng := nullCoords(ev.Location)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tracking_events (id, request_id, provider_id, status, lat, lng, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		ev.ID, ev.RequestID, nullUUID(ev.ProviderID), string(ev.Status), lat, lng, ev.Notes, ev.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert tracking event: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListTracking(ctx context.Context, requestID uuid.UUID) ([]domain.TrackingEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, request_id, provider_id, status, lat, lng, notes, created_at
		FROM tracking_events
		WHERE request_id = $1
		ORDER BY created_at`, requestID)
	if err != nil {
		return nil, fmt.Errorf("list tracking: %w", err)
	}
	defer rows.Close()

	var out []domain.TrackingEvent
	for rows.Next() {
		var (
			ev       domain.TrackingEvent
			provider uuid.NullUUID
			status   string
			lat, lng sql.NullFloat64
		)
		if err := rows.Scan(&ev.ID, &ev.RequestID, &provider, &status, &lat, &lng, &ev.Notes, &ev.CreatedAt); err != nil {
			return nil, err
		}
		if provider.Valid {
			id := provider.UUID
			ev.ProviderID = &id
		}
		ev.Status = domain.RequestStatus(status)
		ev.Location = coordsFromNull(lat, lng)
		out = append(out, ev)
	}
	return out, rows.Err()
}

// =============================================================================
// Providers
// =============================================================================

const providerColumns = `id, name, skills, rating, rating_count, completed_jobs,
	online, active, verified, lat, lng, updated_at`

func scanProvider(row interface{ Scan(...any) error }) (*domain.Provider, error) {
	var (
		p        domain.Provider
		rating   decimal.Decimal
		lat, lng sql.NullFloat64
	)
	err := row.Scan(
		&p.ID, &p.Name, pq.Array(&p.Skills), &rating, &p.RatingCount, &p.CompletedJobs,
		&p.Online, &p.Active, &p.Verified, &lat, &lng, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Rating = rating.InexactFloat64()
	p.Location = coordsFromNull(lat, lng)
	return &p, nil
}

// PutProvider inserts or replaces a provider profile.
func (s *PostgresStore) PutProvider(ctx context.Context, p domain.Provider) error {
	lat, lng := nullCoords(p.Location)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO providers (`+providerColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
		    name = EXCLUDED.name, skills = EXCLUDED.skills, rating = EXCLUDED.rating,
		    rating_count = EXCLUDED.rating_count, completed_jobs = EXCLUDED.completed_jobs,
		    online = EXCLUDED.online, active = EXCLUDED.active, verified = EXCLUDED.verified,
		    lat = EXCLUDED.lat, lng = EXCLUDED.lng, updated_at = EXCLUDED.updated_at`,
		p.ID, p.Name, pq.Array(p.Skills), decimal.NewFromFloat(p.Rating).Round(2), p.RatingCount, p.CompletedJobs,
		p.Online, p.Active, p.Verified, lat, lng, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert provider: %w", err)
	}
	return nil
}

// ListCandidates selects eligible providers and applies the radius on the
// way out.
func (s *PostgresStore) ListCandidates(ctx context.Context, q domain.CandidateQuery) ([]domain.CandidateProvider, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+providerColumns+`
		FROM providers
		WHERE online AND active AND verified
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	defer rows.Close()

	var out []domain.CandidateProvider
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, err
		}
		if withinRadius(q, p.Location) {
			out = append(out, p.Candidate())
		}
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetProvider(ctx context.Context, id uuid.UUID) (*domain.Provider, error) {
	const op = "repository.get_provider"

	p, err := scanProvider(s.db.QueryRowContext(ctx,
		`SELECT `+providerColumns+` FROM providers WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, op, "provider", id.String())
	}
	return p, nil
}

func (s *PostgresStore) SetProviderOnline(ctx context.Context, id uuid.UUID, online bool, at time.Time) error {
	return s.execProvider(ctx, "repository.set_provider_online", id,
		`UPDATE providers SET online = $2, updated_at = $3 WHERE id = $1`, id, online, at)
}

func (s *PostgresStore) UpdateProviderLocation(ctx context.Context, id uuid.UUID, loc domain.Coordinates, at time.Time) error {
	return s.execProvider(ctx, "repository.update_provider_location", id,
		`UPDATE providers SET lat = $2, lng = $3, updated_at = $4 WHERE id = $1`, id, loc.Lat, loc.Lng, at)
}

func (s *PostgresStore) IncrementCompletedJobs(ctx context.Context, id uuid.UUID) error {
	return s.execProvider(ctx, "repository.increment_completed_jobs", id,
		`UPDATE providers SET completed_jobs = completed_jobs + 1 WHERE id = $1`, id)
}

func (s *PostgresStore) execProvider(ctx context.Context, op string, id uuid.UUID, query string, args ...any) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return domain.NotFound(op, "provider", id.String())
	}
	return nil
}

// =============================================================================
// Price reviews
// =============================================================================

func (s *PostgresStore) CreatePriceReview(ctx context.Context, r domain.PriceReview) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO price_reviews (id, request_id, provider_id, quoted, charged, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		r.ID, r.RequestID, r.ProviderID, r.Quoted, r.Charged, string(r.Status), r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert price review: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListPriceReviews(ctx context.Context, status domain.PriceReviewStatus) ([]domain.PriceReview, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, request_id, provider_id, quoted, charged, status, created_at
		FROM price_reviews
		WHERE $1 = '' OR status = $1
		ORDER BY created_at`, string(status))
	if err != nil {
		return nil, fmt.Errorf("list price reviews: %w", err)
	}
	defer rows.Close()

	var out []domain.PriceReview
	for rows.Next() {
		var (
			r  domain.PriceReview
			st string
		)
		if err := rows.Scan(&r.ID, &r.RequestID, &r.ProviderID, &r.Quoted, &r.Charged, &st, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.Status = domain.PriceReviewStatus(st)
		out = append(out, r)
	}
	return out, rows.Err()
}

// =============================================================================
// Messages
// =============================================================================

func (s *PostgresStore) CreateMessage(ctx context.Context, m domain.Message) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, request_id, sender_id, sender_role, message_type, content, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		m.ID, m.RequestID, m.SenderID, string(m.SenderRole), string(m.MessageType), m.Content, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListMessages(ctx context.Context, requestID uuid.UUID) ([]domain.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, request_id, sender_id, sender_role, message_type, content, created_at
		FROM messages
		WHERE request_id = $1
		ORDER BY created_at`, requestID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []domain.Message
	for rows.Next() {
		var (
			m          domain.Message
			role, kind string
		)
		if err := rows.Scan(&m.ID, &m.RequestID, &m.SenderID, &role, &kind, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.SenderRole = domain.Role(role)
		m.MessageType = domain.MessageType(kind)
		out = append(out, m)
	}
	return out, rows.Err()
}

// =============================================================================
// Ratings
// =============================================================================

// CreateRating inserts the rating, links it to the request and folds it
// into the provider's average in one transaction.
func (s *PostgresStore) CreateRating(ctx context.Context, r domain.Rating) error {
	const op = "repository.create_rating"

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO ratings (id, request_id, requester_id, provider_id, punctuality, professionalism,
		                     quality, communication, value, overall, comment, would_recommend, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		r.ID, r.RequestID, r.RequesterID, r.ProviderID, r.Punctuality, r.Professionalism,
		r.Quality, r.Communication, r.Value, decimal.NewFromFloat(r.Overall).Round(2), r.Comment, r.WouldRecommend, r.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return domain.Conflict(op, "request has already been rated")
		}
		return fmt.Errorf("insert rating: %w", err)
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE service_requests SET rating_id = $2, version = version + 1 WHERE id = $1 AND rating_id IS NULL`,
		r.RequestID, r.ID)
	if err != nil {
		return fmt.Errorf("link rating: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return domain.Conflict(op, "request has already been rated")
	}

	var (
		current decimal.Decimal
		count   int
	)
	err = tx.QueryRowContext(ctx,
		`SELECT rating, rating_count FROM providers WHERE id = $1 FOR UPDATE`, r.ProviderID,
	).Scan(&current, &count)
	if err != nil {
		return notFound(err, op, "provider", r.ProviderID.String())
	}

	avg := domain.RollingAverage(current.InexactFloat64(), count, r.Overall)
	_, err = tx.ExecContext(ctx,
		`UPDATE providers SET rating = $2, rating_count = rating_count + 1 WHERE id = $1`,
		r.ProviderID, decimal.NewFromFloat(avg).Round(2))
	if err != nil {
		return fmt.Errorf("update provider rating: %w", err)
	}

	return tx.Commit()
}

// =============================================================================
// Photos
// =============================================================================

func (s *PostgresStore) CreatePhoto(ctx context.Context, p domain.Photo) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO photos (id, request_id, storage_key, thumbnail_key, content_type, size_bytes, width, height, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		p.ID, p.RequestID, p.StorageKey, p.ThumbnailKey, p.ContentType, p.SizeBytes, p.Width, p.Height, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert photo: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListPhotos(ctx context.Context, requestID uuid.UUID) ([]domain.Photo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, request_id, storage_key, thumbnail_key, content_type, size_bytes, width, height, created_at
		FROM photos
		WHERE request_id = $1
		ORDER BY created_at`, requestID)
	if err != nil {
		return nil, fmt.Errorf("list photos: %w", err)
	}
	defer rows.Close()

	var out []domain.Photo
	for rows.Next() {
		var p domain.Photo
		if err := rows.Scan(&p.ID, &p.RequestID, &p.StorageKey, &p.ThumbnailKey, &p.ContentType,
			&p.SizeBytes, &p.Width, &p.Height, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// =============================================================================
// Conversions
// =============================================================================

func marshalNull(v any) (pqtype.NullRawMessage, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return pqtype.NullRawMessage{}, err
	}
	return pqtype.NullRawMessage{RawMessage: b, Valid: true}, nil
}

func unmarshalNull(m pqtype.NullRawMessage, v any) error {
	if !m.Valid || len(m.RawMessage) == 0 {
		return nil
	}
	return json.Unmarshal(m.RawMessage, v)
}

func coordsFromNull(lat, lng sql.NullFloat64) *domain.Coordinates {
	if !lat.Valid || !lng.Valid {
		return nil
	}
	return &domain.Coordinates{Lat: lat.Float64, Lng: lng.Float64}
}

func nullCoords(c *domain.Coordinates) (sql.NullFloat64, sql.NullFloat64) {
	if c == nil {
		return sql.NullFloat64{}, sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: c.Lat, Valid: true}, sql.NullFloat64{Float64: c.Lng, Valid: true}
}

func timeFromNull(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}
