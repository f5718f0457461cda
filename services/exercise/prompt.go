package exercise

import (
	"encoding/json"
	"fmt"
	"strings"

	"languagetutor/models"

	"github.com/invopop/jsonschema"
)

const (
	EXERCISE_PROMPT = `You are an expert language exercise creator for %s.
Design %d engaging exercises suitable for %s learners.
Base the exercises on the topics the user has already covered: %s

## The only acceptable response is a single JSON object conforming to this schema:
%s

Respond with the JSON object only, no explanation.`

	EXERCISE_RETRY_SUFFIX = `

Your previous response was not a valid exercise set: %v
Previous response:
%s

Return a corrected JSON object only.`
)

var exerciseSetSchema = mustSchema(&Set{})

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

func buildExercisePrompt(user *models.UserProfile) string {
	topics := strings.Join(user.TopicsCovered, ", ")
	if topics == "" {
		topics = "general beginner vocabulary"
	}
	return fmt.Sprintf(EXERCISE_PROMPT, user.Language, EXERCISE_COUNT, user.Level, topics, exerciseSetSchema)
}
