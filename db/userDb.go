package db

import (
	"database/sql"
	"fmt"
	"strings"

	"languagetutor/models"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

// UserRepository is the sole writer of persisted profile state. All
// operations are scoped to one user identity.
type UserRepository interface {
	// LoadProfile returns the profile for id, creating a blank one with
	// unknown language/level when id is empty or not found.
	LoadProfile(id string) (*models.UserProfile, error)
	UpdateTutoringInfo(id, language, level string) error
	AppendTurn(id string, turn models.Turn) error
	// AppendTopics records one topics entry. No-op when topics is empty.
	AppendTopics(id string, topics []string) error
	// PopLastTurn removes the most recent turn and, in lockstep, the most
	// recently appended topics entry. No-op on an empty history.
	PopLastTurn(id string) error
	// LastAssistantConversationTurn returns the most recent assistant turn
	// from the conversation agent, or nil when there is none.
	LastAssistantConversationTurn(id string) (*models.Turn, error)
	// RecentTurns returns the last window turns for the given agent,
	// oldest first.
	RecentTurns(id string, agent models.AgentRole, window int) ([]models.Turn, error)
}

type PostgresUserRepository struct {
	db *sql.DB
}

func NewPostgresUserRepository(databaseURL string) (*PostgresUserRepository, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresUserRepository{db: db}, nil
}

func (r *PostgresUserRepository) LoadProfile(id string) (*models.UserProfile, error) {
	if id == "" {
		return r.createProfile()
	}

	query := `
		SELECT id, language, level
		FROM tutor.users
		WHERE id = $1`

	profile := &models.UserProfile{}
	row := r.db.QueryRow(query, id)

	err := row.Scan(&profile.ID, &profile.Language, &profile.Level)
	if err != nil {
		if err == sql.ErrNoRows {
			return r.createProfile()
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if profile.History, err = r.loadHistory(profile.ID); err != nil {
		return nil, err
	}
	if profile.TopicsCovered, err = r.loadTopics(profile.ID); err != nil {
		return nil, err
	}

	return profile, nil
}

func (r *PostgresUserRepository) createProfile() (*models.UserProfile, error) {
	query := `
		INSERT INTO tutor.users (id, language, level)
		VALUES ($1, $2, $2)
		RETURNING id, language, level`

	profile := &models.UserProfile{}
	row := r.db.QueryRow(query, uuid.NewString(), models.UnknownValue)

	err := row.Scan(&profile.ID, &profile.Language, &profile.Level)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return profile, nil
}

func (r *PostgresUserRepository) loadHistory(id string) ([]models.Turn, error) {
	query := `
		SELECT role, agent, content
		FROM tutor.turns
		WHERE user_id = $1
		ORDER BY id`

	rows, err := r.db.Query(query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	turns := make([]models.Turn, 0)
	for rows.Next() {
		var turn models.Turn
		if err := rows.Scan(&turn.Role, &turn.Agent, &turn.Content); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		turns = append(turns, turn)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over turns: %w", err)
	}

	return turns, nil
}

func (r *PostgresUserRepository) loadTopics(id string) ([]string, error) {
	query := `
		SELECT terms
		FROM tutor.topics
		WHERE user_id = $1
		ORDER BY id`

	rows, err := r.db.Query(query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query topics: %w", err)
	}
	defer rows.Close()

	topics := make([]string, 0)
	for rows.Next() {
		var terms string
		if err := rows.Scan(&terms); err != nil {
			return nil, fmt.Errorf("failed to scan topics entry: %w", err)
		}
		topics = append(topics, terms)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over topics: %w", err)
	}

	return topics, nil
}

func (r *PostgresUserRepository) UpdateTutoringInfo(id, language, level string) error {
	query := `
		UPDATE tutor.users
		SET language = $1, level = $2, updated_at = NOW()
		WHERE id = $3`

	result, err := r.db.Exec(query, language, level, id)
	if err != nil {
		return fmt.Errorf("failed to update tutoring info: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("user with id %s not found", id)
	}

	return nil
}

func (r *PostgresUserRepository) AppendTurn(id string, turn models.Turn) error {
	query := `
		INSERT INTO tutor.turns (user_id, role, agent, content)
		VALUES ($1, $2, $3, $4)`

	if _, err := r.db.Exec(query, id, turn.Role, turn.Agent, turn.Content); err != nil {
		return fmt.Errorf("failed to append turn: %w", err)
	}

	return nil
}

func (r *PostgresUserRepository) AppendTopics(id string, topics []string) error {
	terms := joinTopics(topics)
	if terms == "" {
		return nil
	}

	query := `
		INSERT INTO tutor.topics (user_id, terms)
		VALUES ($1, $2)`

	if _, err := r.db.Exec(query, id, terms); err != nil {
		return fmt.Errorf("failed to append topics: %w", err)
	}

	return nil
}

func (r *PostgresUserRepository) PopLastTurn(id string) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	deleteTurn := `
		DELETE FROM tutor.turns
		WHERE id = (SELECT MAX(id) FROM tutor.turns WHERE user_id = $1)`

	if _, err := tx.Exec(deleteTurn, id); err != nil {
		return fmt.Errorf("failed to pop last turn: %w", err)
	}

	deleteTopics := `
		DELETE FROM tutor.topics
		WHERE id = (SELECT MAX(id) FROM tutor.topics WHERE user_id = $1)`

	if _, err := tx.Exec(deleteTopics, id); err != nil {
		return fmt.Errorf("failed to pop last topics entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit rollback: %w", err)
	}

	return nil
}

func (r *PostgresUserRepository) LastAssistantConversationTurn(id string) (*models.Turn, error) {
	query := `
		SELECT role, agent, content
		FROM tutor.turns
		WHERE user_id = $1 AND role = $2 AND agent = $3
		ORDER BY id DESC
		LIMIT 1`

	turn := &models.Turn{}
	row := r.db.QueryRow(query, id, models.RoleAssistant, models.AgentConversation)

	err := row.Scan(&turn.Role, &turn.Agent, &turn.Content)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get last assistant turn: %w", err)
	}

	return turn, nil
}

func (r *PostgresUserRepository) RecentTurns(id string, agent models.AgentRole, window int) ([]models.Turn, error) {
	query := `
		SELECT role, agent, content FROM (
			SELECT id, role, agent, content
			FROM tutor.turns
			WHERE user_id = $1 AND agent = $2
			ORDER BY id DESC
			LIMIT $3
		) recent
		ORDER BY id`

	rows, err := r.db.Query(query, id, agent, window)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent turns: %w", err)
	}
	defer rows.Close()

	turns := make([]models.Turn, 0)
	for rows.Next() {
		var turn models.Turn
		if err := rows.Scan(&turn.Role, &turn.Agent, &turn.Content); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		turns = append(turns, turn)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over turns: %w", err)
	}

	return turns, nil
}

func (r *PostgresUserRepository) Close() error {
	return r.db.Close()
}

func joinTopics(topics []string) string {
	terms := make([]string, 0, len(topics))
	for _, topic := range topics {
		if trimmed := strings.TrimSpace(topic); trimmed != "" {
			terms = append(terms, trimmed)
		}
	}
	return strings.Join(terms, ", ")
}
