package conversation

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"languagetutor/db"
	"languagetutor/models"

	"github.com/samber/lo"
	"github.com/tmc/langchaingo/llms"
)

// HISTORY_RETAINER is how many conversation turns are replayed as transcript
// context on each generation.
const HISTORY_RETAINER = 20

type Service struct {
	repo    db.UserRepository
	llm     llms.Model
	timeout time.Duration
}

func NewService(repo db.UserRepository, model llms.Model, timeout time.Duration) *Service {
	return &Service{repo: repo, llm: model, timeout: timeout}
}

// OnboardUser runs one step of the onboarding dialogue. An empty input asks
// the user for language and level; otherwise the input is analyzed for both
// slots. A nil turn with nil error signals that onboarding is complete.
func (s *Service) OnboardUser(ctx context.Context, user *models.UserProfile, input string) (*models.Turn, error) {
	if input == "" {
		log.Printf("[INFO] Initial setup, asking user %s for language and level", user.ID)

		prompt := fmt.Sprintf(ONBOARDING_ASK_PROMPT, valueOrUnknown(user.Language), valueOrUnknown(user.Level))
		response, err := s.invoke(ctx, []llms.MessageContent{
			llms.TextParts(llms.ChatMessageTypeSystem, prompt),
		})
		if err != nil {
			return nil, err
		}

		turn := models.NewAssistantTurn(models.AgentSetup, response)
		if err := s.repo.AppendTurn(user.ID, turn); err != nil {
			return nil, fmt.Errorf("failed to persist setup question: %w", err)
		}
		return &turn, nil
	}

	if err := s.repo.AppendTurn(user.ID, models.NewUserTurn(models.AgentSetup, input)); err != nil {
		return nil, fmt.Errorf("failed to persist setup answer: %w", err)
	}

	prompt := fmt.Sprintf(ONBOARDING_EXTRACT_PROMPT,
		input, valueOrUnknown(user.Language), valueOrUnknown(user.Level), onboardingReplySchema)
	response, err := s.invoke(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, prompt),
	})
	if err != nil {
		return nil, err
	}

	var reply OnboardingReply
	if err := models.ParseStructuredReply(response, &reply); err != nil {
		log.Printf("[ERROR] Failed to parse onboarding reply: %v", err)
		// Remove the just-persisted user turn so history never records an
		// answer that was never acted on.
		if popErr := s.repo.PopLastTurn(user.ID); popErr != nil {
			log.Printf("[ERROR] Failed to roll back setup answer: %v", popErr)
		}
		return nil, err
	}

	if err := s.repo.UpdateTutoringInfo(user.ID, reply.Language, reply.Level); err != nil {
		return nil, fmt.Errorf("failed to persist tutoring info: %w", err)
	}
	log.Printf("[INFO] User %s answered with language %q and level %q", user.ID, reply.Language, reply.Level)

	followUp := ""
	if reply.AdditionalResponse != nil {
		followUp = strings.TrimSpace(*reply.AdditionalResponse)
	}
	if followUp == "" || strings.EqualFold(followUp, "null") {
		return nil, nil
	}

	log.Printf("[INFO] User %s did not fully answer, replying with follow-up question", user.ID)
	turn := models.NewAssistantTurn(models.AgentSetup, followUp)
	if err := s.repo.AppendTurn(user.ID, turn); err != nil {
		return nil, fmt.Errorf("failed to persist follow-up question: %w", err)
	}
	return &turn, nil
}

// ProcessUserInput generates the tutor's next reply. An empty input means
// the user turn was already persisted on an earlier attempt (or the tutor
// opens the conversation). Guidance, when non-empty, is a corrective
// directive from the feedback agent.
func (s *Service) ProcessUserInput(ctx context.Context, user *models.UserProfile, input, guidance string) (*models.Turn, error) {
	recent, err := s.repo.RecentTurns(user.ID, models.AgentConversation, HISTORY_RETAINER)
	if err != nil {
		return nil, fmt.Errorf("failed to load recent turns: %w", err)
	}

	hasInput := input != ""
	if hasInput {
		if err := s.repo.AppendTurn(user.ID, models.NewUserTurn(models.AgentConversation, input)); err != nil {
			return nil, fmt.Errorf("failed to persist user turn: %w", err)
		}
	}

	// The topic side call does not depend on the reply, so it runs alongside
	// the generation call.
	topicsCh := make(chan []string, 1)
	go func() {
		topicsCh <- s.extractTopics(ctx, user.Language, input)
	}()

	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, buildTutorPrompt(user, input, guidance, recent)),
	}
	for _, turn := range recent {
		messages = append(messages, llms.TextParts(chatMessageType(turn.Role), turn.Content))
	}
	if hasInput {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, input))
	}

	log.Printf("[INFO] Conversing with user %s", user.ID)
	response, err := s.invoke(ctx, messages)
	if err != nil {
		return nil, err
	}

	reply := models.NewAssistantTurn(models.AgentConversation, response)
	if err := s.repo.AppendTurn(user.ID, reply); err != nil {
		return nil, fmt.Errorf("failed to persist reply turn: %w", err)
	}

	if err := s.repo.AppendTopics(user.ID, <-topicsCh); err != nil {
		log.Printf("[ERROR] Failed to record topics, continuing without them: %v", err)
	}

	return &reply, nil
}

func (s *Service) extractTopics(ctx context.Context, language, input string) []string {
	if input == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	prompt := fmt.Sprintf(TOPIC_EXTRACTION_PROMPT, language, input)
	completion, err := llms.GenerateFromSinglePrompt(ctx, s.llm, prompt, llms.WithTemperature(0))
	if err != nil {
		log.Printf("[ERROR] Topic extraction failed, continuing without topics: %v", err)
		return nil
	}

	topics := lo.FilterMap(strings.Split(completion, ","), func(term string, _ int) (string, bool) {
		trimmed := strings.TrimSpace(term)
		return trimmed, trimmed != ""
	})
	log.Printf("[INFO] Topics extracted from the user's last message: %v", topics)
	return topics
}

func (s *Service) invoke(ctx context.Context, messages []llms.MessageContent) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	response, err := s.llm.GenerateContent(ctx, messages, llms.WithTemperature(0.7))
	if err != nil {
		return "", &models.TransportError{Op: "conversation completion", Err: err}
	}
	if len(response.Choices) == 0 {
		return "", &models.TransportError{Op: "conversation completion", Err: fmt.Errorf("no choices in response")}
	}
	return strings.TrimSpace(response.Choices[0].Content), nil
}

func chatMessageType(role models.Role) llms.ChatMessageType {
	switch role {
	case models.RoleSystem:
		return llms.ChatMessageTypeSystem
	case models.RoleAssistant:
		return llms.ChatMessageTypeAI
	default:
		return llms.ChatMessageTypeHuman
	}
}

func valueOrUnknown(value string) string {
	if value == "" {
		return models.UnknownValue
	}
	return value
}
