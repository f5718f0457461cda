package conversation

import (
	"encoding/json"
	"fmt"
	"strings"

	"languagetutor/models"

	"github.com/invopop/jsonschema"
)

const (
	ONBOARDING_ASK_PROMPT = `Ask the user what language they wish to learn and what their skill level in that language is.
Levels are beginner, intermediate or advanced only.

What is known so far is
Language to learn: %s
Skill level: %s`

	ONBOARDING_EXTRACT_PROMPT = `# Analyze the user input below.

User Input: %s

## What is known so far
Language: %s
Skill level: %s

## The only acceptable response is a single JSON object conforming to this schema:
%s

Respond with the JSON object only, no explanation.`

	TUTOR_SYSTEM_PROMPT = `You are a friendly language tutor.
- Your goal is to help the user learn %[1]s through natural conversation.
- Ask follow-up questions.
- Provide corrections.
- Adapt based on the user's skill level (%[2]s).
- When the user makes a mistake, gently correct them and explain why. Encourage them to respond in %[1]s as much as possible.
- Keep your responses short to maintain a natural conversation.
- At beginner level, speak to the user primarily in English.
- At higher levels, immerse the user more in %[1]s.`

	TOPIC_EXTRACTION_PROMPT = `# List the main words covered in %s in the following text:
%s

# The only acceptable response is a comma separated list of words with no other explanation.`
)

// OnboardingReply is the strict contract for the slot-extraction completion.
// The schema rendered from this struct is embedded in the prompt.
type OnboardingReply struct {
	Language           string  `json:"language" jsonschema:"required,description=The language the user wants to learn. 'unknown' when not stated."`
	Level              string  `json:"level" jsonschema:"required,description=The skill level the user stated: beginner intermediate or advanced. 'unknown' when not stated."`
	AdditionalResponse *string `json:"additional_response" jsonschema:"description=When language or level is still missing: the response asking the user for the missing information. Otherwise null."`
}

var onboardingReplySchema = mustSchema(&OnboardingReply{})

func mustSchema(v any) string {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	schema, err := json.MarshalIndent(reflector.Reflect(v), "", "  ")
	if err != nil {
		panic(fmt.Sprintf("failed to render schema: %v", err))
	}
	return string(schema)
}

func buildTutorPrompt(user *models.UserProfile, input, guidance string, recent []models.Turn) string {
	var prompt strings.Builder

	fmt.Fprintf(&prompt, TUTOR_SYSTEM_PROMPT, user.Language, user.Level)
	if guidance != "" {
		fmt.Fprintf(&prompt, "\n- Additional guidance: %s", guidance)
	}

	prompt.WriteString("\n\n### Already covered topics:\n")
	prompt.WriteString(strings.Join(user.TopicsCovered, ", "))

	prompt.WriteString("\n\n### Recent messages:\n")
	for _, turn := range recent {
		fmt.Fprintf(&prompt, "%s: %s\n\n", turn.Role, turn.Content)
	}

	prompt.WriteString("\n### Current conversation (if the user input is blank, start the conversation):\nUser: ")
	prompt.WriteString(input)

	return prompt.String()
}
