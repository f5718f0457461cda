package feedback

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"languagetutor/db"
	"languagetutor/models"

	"github.com/tmc/langchaingo/llms"
)

const (
	USER_ADHERENCE_PROMPT = `# Given the conversation below:
%s: %s

%s: %s

## Is the user responding to the %s message?

### Acceptable answers:
If the user is following the conversation, answer with only 'yes'.
If the user is asking for help, answer with only 'yes'.
If the user is not following the conversation, respond politely to the user to follow the conversation.

Example of Yes:
assistant: Can you say Hello in French?
user: Bonjour
feedback agent: 'yes'

Example of No:
assistant: Can you say Hello in French?
user: Let's party!
feedback agent: Please follow the conversation and reply according to what is asked.`

	AI_ADHERENCE_PROMPT = `# Given the text below:
%s: %s

## Is the text in line with the following requirements:
- Needs to be tutoring %s to the user.
- Needs to be aimed at %s level.

### Acceptable answers:
If the text fulfills the requirements, answer with only 'yes'.
If the text does not fulfill the requirements, respond with system prompt instructions that guide the AI to give a good response.`
)

type Service struct {
	repo    db.UserRepository
	llm     llms.Model
	timeout time.Duration
}

func NewService(repo db.UserRepository, model llms.Model, timeout time.Duration) *Service {
	return &Service{repo: repo, llm: model, timeout: timeout}
}

// IsUserFollowingLesson checks whether the input responds to the tutor's
// last conversation turn. It returns nil when the input passes (or there is
// nothing to check against), otherwise a persisted feedback turn carrying a
// polite redirect, which becomes the response for this request.
func (s *Service) IsUserFollowingLesson(ctx context.Context, user *models.UserProfile, input string) (*models.Turn, error) {
	lastReply, err := s.repo.LastAssistantConversationTurn(user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load last conversation turn: %w", err)
	}
	if lastReply == nil || input == "" {
		return nil, nil
	}

	prompt := fmt.Sprintf(USER_ADHERENCE_PROMPT,
		lastReply.Role, lastReply.Content, models.RoleUser, input, lastReply.Role)
	response, err := s.invoke(ctx, prompt)
	if err != nil {
		return nil, err
	}
	log.Printf("[INFO] Verified whether user %s is staying on topic, response: %s", user.ID, response)

	if isAccepted(response) {
		return nil, nil
	}

	turn := models.NewAssistantTurn(models.AgentFeedback, response)
	if err := s.repo.AppendTurn(user.ID, turn); err != nil {
		return nil, fmt.Errorf("failed to persist feedback turn: %w", err)
	}
	return &turn, nil
}

// IsAIOnTopicAndLevel judges a candidate tutor reply against the profile's
// language and level. An empty string means the reply is accepted; otherwise
// the returned text is the corrective guidance for the next attempt.
func (s *Service) IsAIOnTopicAndLevel(ctx context.Context, user *models.UserProfile, reply models.Turn) (string, error) {
	prompt := fmt.Sprintf(AI_ADHERENCE_PROMPT, reply.Role, reply.Content, user.Language, user.Level)
	response, err := s.invoke(ctx, prompt)
	if err != nil {
		return "", err
	}
	log.Printf("[INFO] Verified whether the tutor reply for user %s is on topic and level, response: %s", user.ID, response)

	if isAccepted(response) {
		return "", nil
	}
	return response, nil
}

func (s *Service) invoke(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	response, err := s.llm.GenerateContent(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, prompt),
	})
	if err != nil {
		return "", &models.TransportError{Op: "feedback completion", Err: err}
	}
	if len(response.Choices) == 0 {
		return "", &models.TransportError{Op: "feedback completion", Err: fmt.Errorf("no choices in response")}
	}
	return strings.TrimSpace(response.Choices[0].Content), nil
}

func isAccepted(response string) bool {
	return strings.Contains(strings.ToLower(response), "yes")
}
