package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"languagetutor/db"
	"languagetutor/models"
	"languagetutor/services/exercise"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/samber/lo"
)

// ErrOnboardingIncomplete is returned for operations that require an
// established language and level.
var ErrOnboardingIncomplete = errors.New("language and level must be set before exercises can be generated")

// ConversationAgent generates tutor replies and runs onboarding.
type ConversationAgent interface {
	OnboardUser(ctx context.Context, user *models.UserProfile, input string) (*models.Turn, error)
	ProcessUserInput(ctx context.Context, user *models.UserProfile, input, guidance string) (*models.Turn, error)
}

// FeedbackAgent validates user and tutor adherence to the lesson.
type FeedbackAgent interface {
	IsUserFollowingLesson(ctx context.Context, user *models.UserProfile, input string) (*models.Turn, error)
	IsAIOnTopicAndLevel(ctx context.Context, user *models.UserProfile, reply models.Turn) (string, error)
}

// ExerciseAgent generates structured exercise sets.
type ExerciseAgent interface {
	GenerateExercises(ctx context.Context, user *models.UserProfile) (*exercise.Set, error)
}

// TutorService is the top-level orchestrator: onboarding gate, user
// adherence short-circuit, then the generate/validate loop with rollback of
// rejected replies.
type TutorService struct {
	repo         db.UserRepository
	conversation ConversationAgent
	feedback     FeedbackAgent
	exercises    ExerciseAgent
	maxRetries   int
	locks        sync.Map
}

func NewTutorService(repo db.UserRepository, conversation ConversationAgent, feedback FeedbackAgent, exercises ExerciseAgent, maxRetries int) *TutorService {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &TutorService{
		repo:         repo,
		conversation: conversation,
		feedback:     feedback,
		exercises:    exercises,
		maxRetries:   maxRetries,
	}
}

// HandleTurn processes one user turn end to end and returns the resolved
// user id together with the reply turn. The turn is nil when onboarding has
// just completed; the next call opens the tutoring conversation.
func (s *TutorService) HandleTurn(ctx context.Context, userID, input string) (string, *models.Turn, error) {
	if userID != "" {
		defer s.lock(userID)()
	}

	user, err := s.repo.LoadProfile(userID)
	if err != nil {
		return "", nil, fmt.Errorf("failed to load profile: %w", err)
	}
	if userID == "" {
		defer s.lock(user.ID)()
	}

	if user.NeedsTutoringInfo() {
		log.Printf("[INFO] Configuration needs to happen before the tutoring session starts for user %s", user.ID)
		turn, err := s.conversation.OnboardUser(ctx, user, input)
		return user.ID, turn, err
	}

	redirect, err := s.feedback.IsUserFollowingLesson(ctx, user, input)
	if err != nil {
		return user.ID, nil, err
	}
	if redirect != nil {
		log.Printf("[INFO] User %s is not following the lesson, returning feedback", user.ID)
		return user.ID, redirect, nil
	}

	guidance := ""
	guidanceHistory := make([]string, 0, s.maxRetries)
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		// The user turn is persisted on the first attempt only.
		if attempt > 1 {
			input = ""
		}

		reply, err := s.conversation.ProcessUserInput(ctx, user, input, guidance)
		if err != nil {
			return user.ID, nil, err
		}

		guidance, err = s.feedback.IsAIOnTopicAndLevel(ctx, user, *reply)
		if err != nil {
			return user.ID, nil, err
		}
		if guidance == "" {
			return user.ID, reply, nil
		}

		log.Printf("[INFO] Reply for user %s rejected on attempt %d, rolling it back", user.ID, attempt)
		guidanceHistory = append(guidanceHistory, guidance)
		if err := s.repo.PopLastTurn(user.ID); err != nil {
			return user.ID, nil, fmt.Errorf("failed to roll back rejected reply: %w", err)
		}
	}

	log.Printf("[ERROR] No acceptable reply for user %s after %d attempts", user.ID, s.maxRetries)
	return user.ID, nil, &models.ValidationExhaustedError{Attempts: s.maxRetries, Guidance: guidanceHistory}
}

// GenerateExercises delegates to the exercise agent once the profile has
// passed the onboarding gate.
func (s *TutorService) GenerateExercises(ctx context.Context, userID string) (string, *exercise.Set, error) {
	if userID != "" {
		defer s.lock(userID)()
	}

	user, err := s.repo.LoadProfile(userID)
	if err != nil {
		return "", nil, fmt.Errorf("failed to load profile: %w", err)
	}
	if userID == "" {
		defer s.lock(user.ID)()
	}

	if user.NeedsTutoringInfo() {
		return user.ID, nil, ErrOnboardingIncomplete
	}

	set, err := s.exercises.GenerateExercises(ctx, user)
	return user.ID, set, err
}

// SearchHistory returns the profile's turns, fuzzy-filtered by query when
// one is given.
func (s *TutorService) SearchHistory(userID, query string) ([]models.Turn, error) {
	user, err := s.repo.LoadProfile(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}

	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return user.History, nil
	}

	matching := lo.Filter(user.History, func(turn models.Turn, _ int) bool {
		return turnMatchesSearch(turn, terms)
	})
	log.Printf("[INFO] Found %d turns matching %q for user %s", len(matching), query, user.ID)
	return matching, nil
}

func turnMatchesSearch(turn models.Turn, terms []string) bool {
	words := strings.Fields(strings.ToLower(turn.Content))

	cleanWords := make([]string, 0, len(words))
	for _, word := range words {
		cleanWord := strings.Trim(word, ".,!?;:()[]{}\"'")
		if len(cleanWord) > 0 {
			cleanWords = append(cleanWords, cleanWord)
		}
	}

	for _, term := range terms {
		if fuzzy.MatchFold(term, turn.Content) {
			return true
		}
		if len(fuzzy.Find(term, cleanWords)) > 0 {
			return true
		}
	}
	return false
}

// lock serializes turns per user identity. The store performs no optimistic
// concurrency control, so append/pop ordering relies on this.
func (s *TutorService) lock(id string) func() {
	value, _ := s.locks.LoadOrStore(id, &sync.Mutex{})
	mu := value.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
