// Package store provides storage backends for the nurture scheduling engine.
//
// This file implements the PostgreSQL-backed store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/google/uuid"
	"github.com/keelhq/nurture/internal/models"
	_ "github.com/lib/pq"
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)

// PostgresStore is a PostgreSQL-backed Store.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store with the given options and
// runs migrations.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}
	if _, err := db.Exec(postgresMigrations); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("PostgresStore ready")
	return &PostgresStore{db: db}, nil
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) CreateLead(l *models.Lead) error {
	if l.ID == "" {
		l.ID = "lead_" + uuid.NewString()
	}
	if l.Status == "" {
		l.Status = models.LeadStatusNew
	}
	now := time.Now()
	if l.CreatedAt.IsZero() {
		l.CreatedAt = now
	}
	l.UpdatedAt = now
	_, err := s.db.Exec(
		`INSERT INTO leads (id, user_id, name, channel, external_id, email, phone, status, follow_up_count, last_message_at, ai_paused, metadata, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		l.ID, l.UserID, l.Name, l.Channel, nilIfEmpty(l.ExternalID), nilIfEmpty(l.Email), nilIfEmpty(l.Phone),
		l.Status, l.FollowUpCount, l.LastMessageAt, l.AIPaused, marshalMetadata(l.Metadata), l.CreatedAt, l.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create lead failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetLead(id string) (*models.Lead, error) {
	row := s.db.QueryRow(`SELECT `+leadColumns+` FROM leads WHERE id = $1`, id)
	l, err := scanLead(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get lead failed: %w", err)
	}
	return &l, nil
}

func (s *PostgresStore) ListLeadsByUser(userID string) ([]models.Lead, error) {
	rows, err := s.db.Query(`SELECT `+leadColumns+` FROM leads WHERE user_id = $1 ORDER BY created_at ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list leads failed: %w", err)
	}
	defer rows.Close()

	var leads []models.Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, fmt.Errorf("scan lead failed: %w", err)
		}
		leads = append(leads, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list leads iteration failed: %w", err)
	}
	return leads, nil
}

func (s *PostgresStore) UpdateLeadStatus(id string, status models.LeadStatus) error {
	_, err := s.db.Exec(`UPDATE leads SET status = $1, updated_at = $2 WHERE id = $3`, status, time.Now(), id)
	if err != nil {
		return fmt.Errorf("update lead status failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) RecordLeadSend(id string, at time.Time) error {
	_, err := s.db.Exec(
		`UPDATE leads SET follow_up_count = follow_up_count + 1, last_message_at = $1, updated_at = $2 WHERE id = $3`,
		at, time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("record lead send failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) SetLeadAIPaused(id string, paused bool) error {
	_, err := s.db.Exec(`UPDATE leads SET ai_paused = $1, updated_at = $2 WHERE id = $3`, paused, time.Now(), id)
	if err != nil {
		return fmt.Errorf("set lead ai_paused failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateMessage(m *models.Message) error {
	if err := m.Validate(); err != nil {
		return err
	}
	if m.ID == "" {
		m.ID = "msg_" + uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	_, err := s.db.Exec(
		`INSERT INTO messages (id, lead_id, user_id, channel, direction, body, audio_url, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		m.ID, m.LeadID, m.UserID, m.Channel, m.Direction, m.Body, nilIfEmpty(m.AudioURL), marshalMetadata(m.Metadata), m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create message failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetMessagesByLead(leadID string, limit int) ([]models.Message, error) {
	query := `SELECT id, lead_id, user_id, channel, direction, body, audio_url, metadata, created_at
			  FROM messages WHERE lead_id = $1 ORDER BY created_at DESC`
	args := []interface{}{leadID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("get messages failed: %w", err)
	}
	defer rows.Close()

	var msgs []models.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get messages iteration failed: %w", err)
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (s *PostgresStore) CreateNotification(n *models.Notification) error {
	if n.ID == "" {
		n.ID = "notif_" + uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	_, err := s.db.Exec(
		`INSERT INTO notifications (id, user_id, title, message, type, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		n.ID, n.UserID, n.Title, n.Message, n.Type, marshalMetadata(n.Metadata), n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create notification failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAdminUserIDs() ([]string, error) {
	rows, err := s.db.Query(`SELECT id FROM users WHERE role = 'admin'`)
	if err != nil {
		return nil, fmt.Errorf("list admin users failed: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan admin user failed: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list admin users iteration failed: %w", err)
	}
	return ids, nil
}

func (s *PostgresStore) GetBrandProfile(userID string) (*models.BrandProfile, error) {
	row := s.db.QueryRow(
		`SELECT user_id, business_name, voice_rules, brand_snippets FROM brand_profiles WHERE user_id = $1`,
		userID,
	)
	var p models.BrandProfile
	var snippets sql.NullString
	err := row.Scan(&p.UserID, &p.BusinessName, &p.VoiceRules, &snippets)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get brand profile failed: %w", err)
	}
	p.BrandSnippets = unmarshalSnippets(snippets)
	return &p, nil
}
