package exercise

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"languagetutor/db"
	"languagetutor/models"

	"github.com/tmc/langchaingo/llms"
)

// MAX_SCHEMA_RETRIES bounds the self-correction loop for malformed
// exercise completions.
const (
	MAX_SCHEMA_RETRIES = 3
	EXERCISE_COUNT     = 3
)

type Exercise struct {
	Type          string   `json:"type" jsonschema:"required,enum=multiple_choice,enum=fill_in_the_blank,enum=matching,description=The exercise kind."`
	Question      string   `json:"question" jsonschema:"required,description=The exercise question or instruction."`
	Options       []string `json:"options,omitempty" jsonschema:"description=Answer options for multiple_choice and matching exercises."`
	CorrectAnswer string   `json:"correct_answer" jsonschema:"required,description=The expected answer."`
	Explanation   string   `json:"explanation" jsonschema:"required,description=Why the answer is correct in the target language's grammar or usage."`
}

type Set struct {
	Exercises []Exercise `json:"exercises" jsonschema:"required,description=The generated exercises."`
}

type Service struct {
	repo    db.UserRepository
	llm     llms.Model
	timeout time.Duration
}

func NewService(repo db.UserRepository, model llms.Model, timeout time.Duration) *Service {
	return &Service{repo: repo, llm: model, timeout: timeout}
}

// GenerateExercises asks the model for a fixed-size exercise set matching
// the profile's language, level and covered topics. Malformed completions
// are re-prompted with the parse error up to MAX_SCHEMA_RETRIES times; the
// accepted set is persisted as an exercise turn.
func (s *Service) GenerateExercises(ctx context.Context, user *models.UserProfile) (*Set, error) {
	log.Printf("[INFO] Generating exercises for user %s (%s, %s)", user.ID, user.Language, user.Level)

	prompt := buildExercisePrompt(user)

	var lastErr error
	for attempt := 1; attempt <= MAX_SCHEMA_RETRIES; attempt++ {
		response, err := s.invoke(ctx, prompt)
		if err != nil {
			return nil, err
		}

		set := &Set{}
		err = models.ParseStructuredReply(response, set)
		if err == nil {
			err = validateSet(set)
		}
		if err != nil {
			log.Printf("[ERROR] Invalid exercise set on attempt %d: %v", attempt, err)
			lastErr = err
			prompt = buildExercisePrompt(user) + fmt.Sprintf(EXERCISE_RETRY_SUFFIX, err, response)
			continue
		}

		content, err := json.Marshal(set)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal exercise set: %w", err)
		}
		turn := models.NewAssistantTurn(models.AgentExercise, string(content))
		if err := s.repo.AppendTurn(user.ID, turn); err != nil {
			return nil, fmt.Errorf("failed to persist exercise turn: %w", err)
		}

		log.Printf("[INFO] Generated %d exercises for user %s on attempt %d", len(set.Exercises), user.ID, attempt)
		return set, nil
	}

	return nil, lastErr
}

func validateSet(set *Set) error {
	if len(set.Exercises) == 0 {
		return &models.MalformedReplyError{Err: fmt.Errorf("exercise set is empty")}
	}

	for i, exercise := range set.Exercises {
		switch exercise.Type {
		case "multiple_choice", "fill_in_the_blank", "matching":
		default:
			return &models.MalformedReplyError{Err: fmt.Errorf("exercise %d has unknown type %q", i, exercise.Type)}
		}
		if strings.TrimSpace(exercise.Question) == "" {
			return &models.MalformedReplyError{Err: fmt.Errorf("exercise %d is missing a question", i)}
		}
		if strings.TrimSpace(exercise.CorrectAnswer) == "" {
			return &models.MalformedReplyError{Err: fmt.Errorf("exercise %d is missing a correct answer", i)}
		}
	}
	return nil
}

func (s *Service) invoke(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	response, err := s.llm.GenerateContent(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, prompt),
	}, llms.WithTemperature(0.7))
	if err != nil {
		return "", &models.TransportError{Op: "exercise completion", Err: err}
	}
	if len(response.Choices) == 0 {
		return "", &models.TransportError{Op: "exercise completion", Err: fmt.Errorf("no choices in response")}
	}
	return strings.TrimSpace(response.Choices[0].Content), nil
}
