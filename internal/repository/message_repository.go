package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/pbl-teams-api/internal/models"
)

// MessageRepository manages persistence for broadcast messages and their
// team-snapshot fan-out.
type MessageRepository struct {
	db *sqlx.DB
}

// NewMessageRepository constructs a MessageRepository.
func NewMessageRepository(db *sqlx.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// Create persists a message together with its recipient team snapshot.
func (r *MessageRepository) Create(ctx context.Context, msg *models.Message) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create message: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	const insertMessage = `INSERT INTO messages (id, sender_id, title, content, created_at)
		VALUES ($1, $2, $3, $4, $5)`
	if _, err := tx.ExecContext(ctx, insertMessage, msg.ID, msg.SenderID, msg.Title, msg.Content, msg.CreatedAt); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	const insertRecipient = "INSERT INTO message_teams (message_id, team_id) VALUES ($1, $2)"
	for _, teamID := range msg.TeamIDs {
		if _, err := tx.ExecContext(ctx, insertRecipient, msg.ID, teamID); err != nil {
			return fmt.Errorf("insert message recipient: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create message: %w", err)
	}
	return nil
}

type messageSummaryRow struct {
	ID          string    `db:"id"`
	SenderEmail string    `db:"sender_email"`
	Title       string    `db:"title"`
	Content     string    `db:"content"`
	TeamsCount  int       `db:"teams_count"`
	CreatedAt   time.Time `db:"created_at"`
}

// ListAll returns every message with its sender email and recipient count,
// newest first.
func (r *MessageRepository) ListAll(ctx context.Context) ([]models.MessageSummary, error) {
	const query = `SELECT m.id, u.email AS sender_email, m.title, m.content, m.created_at,
		(SELECT COUNT(*) FROM message_teams mt WHERE mt.message_id = m.id) AS teams_count
		FROM messages m
		JOIN users u ON u.id = m.sender_id
		ORDER BY m.created_at DESC`

	var rows []messageSummaryRow
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return summariesFromRows(rows), nil
}

// ListForTeams returns messages addressed to any of the given teams,
// newest first.
func (r *MessageRepository) ListForTeams(ctx context.Context, teamIDs []string) ([]models.MessageSummary, error) {
	if len(teamIDs) == 0 {
		return []models.MessageSummary{}, nil
	}

	query, args, err := sqlx.In(`SELECT DISTINCT m.id, u.email AS sender_email, m.title, m.content, m.created_at,
		(SELECT COUNT(*) FROM message_teams c WHERE c.message_id = m.id) AS teams_count
		FROM messages m
		JOIN users u ON u.id = m.sender_id
		JOIN message_teams mt ON mt.message_id = m.id
		WHERE mt.team_id IN (?)
		ORDER BY m.created_at DESC`, teamIDs)
	if err != nil {
		return nil, fmt.Errorf("build messages query: %w", err)
	}
	query = r.db.Rebind(query)

	var rows []messageSummaryRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list messages for teams: %w", err)
	}
	return summariesFromRows(rows), nil
}

func summariesFromRows(rows []messageSummaryRow) []models.MessageSummary {
	summaries := make([]models.MessageSummary, 0, len(rows))
	for _, row := range rows {
		summaries = append(summaries, models.MessageSummary{
			ID:          row.ID,
			SenderEmail: row.SenderEmail,
			Title:       row.Title,
			Content:     row.Content,
			TeamsCount:  row.TeamsCount,
			CreatedAt:   row.CreatedAt,
		})
	}
	return summaries
}
