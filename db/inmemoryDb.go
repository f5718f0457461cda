package db

import (
	"fmt"
	"sync"

	"languagetutor/models"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// InMemoryUserRepository keeps all profile state in process memory. Used by
// the tests and when no DB_URL is configured.
type InMemoryUserRepository struct {
	mu    sync.Mutex
	users map[string]*models.UserProfile
}

func NewInMemoryUserRepository() *InMemoryUserRepository {
	return &InMemoryUserRepository{users: make(map[string]*models.UserProfile)}
}

func (r *InMemoryUserRepository) LoadProfile(id string) (*models.UserProfile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok {
		user = &models.UserProfile{
			ID:       uuid.NewString(),
			Language: models.UnknownValue,
			Level:    models.UnknownValue,
		}
		r.users[user.ID] = user
	}

	return copyProfile(user), nil
}

func (r *InMemoryUserRepository) UpdateTutoringInfo(id, language, level string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, err := r.get(id)
	if err != nil {
		return err
	}

	user.Language = language
	user.Level = level
	return nil
}

func (r *InMemoryUserRepository) AppendTurn(id string, turn models.Turn) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, err := r.get(id)
	if err != nil {
		return err
	}

	user.History = append(user.History, turn)
	return nil
}

func (r *InMemoryUserRepository) AppendTopics(id string, topics []string) error {
	terms := joinTopics(topics)
	if terms == "" {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	user, err := r.get(id)
	if err != nil {
		return err
	}

	user.TopicsCovered = append(user.TopicsCovered, terms)
	return nil
}

func (r *InMemoryUserRepository) PopLastTurn(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, err := r.get(id)
	if err != nil {
		return err
	}

	if len(user.History) > 0 {
		user.History = user.History[:len(user.History)-1]
	}
	if len(user.TopicsCovered) > 0 {
		user.TopicsCovered = user.TopicsCovered[:len(user.TopicsCovered)-1]
	}
	return nil
}

func (r *InMemoryUserRepository) LastAssistantConversationTurn(id string) (*models.Turn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, err := r.get(id)
	if err != nil {
		return nil, err
	}

	for i := len(user.History) - 1; i >= 0; i-- {
		turn := user.History[i]
		if turn.Role == models.RoleAssistant && turn.Agent == models.AgentConversation {
			return &turn, nil
		}
	}
	return nil, nil
}

func (r *InMemoryUserRepository) RecentTurns(id string, agent models.AgentRole, window int) ([]models.Turn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, err := r.get(id)
	if err != nil {
		return nil, err
	}

	filtered := lo.Filter(user.History, func(turn models.Turn, _ int) bool {
		return turn.Agent == agent
	})

	if len(filtered) > window {
		filtered = filtered[len(filtered)-window:]
	}
	return filtered, nil
}

func (r *InMemoryUserRepository) get(id string) (*models.UserProfile, error) {
	user, ok := r.users[id]
	if !ok {
		return nil, fmt.Errorf("user with id %s not found", id)
	}
	return user, nil
}

func copyProfile(user *models.UserProfile) *models.UserProfile {
	clone := *user
	clone.History = append([]models.Turn(nil), user.History...)
	clone.TopicsCovered = append([]string(nil), user.TopicsCovered...)
	return &clone
}
