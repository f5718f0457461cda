package models

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type AgentRole string

const (
	AgentConversation AgentRole = "conversation"
	AgentFeedback     AgentRole = "feedback"
	AgentSetup        AgentRole = "setup"
	AgentExercise     AgentRole = "exercise"
)

// Turn is one conversational record. Turns are immutable once created and
// their order within a profile's history is chronological.
type Turn struct {
	Role    Role      `json:"role"`
	Agent   AgentRole `json:"agent"`
	Content string    `json:"content"`
}

func NewSystemTurn(content string) Turn {
	return Turn{Role: RoleSystem, Agent: AgentSetup, Content: content}
}

func NewUserTurn(agent AgentRole, content string) Turn {
	return Turn{Role: RoleUser, Agent: agent, Content: content}
}

func NewAssistantTurn(agent AgentRole, content string) Turn {
	return Turn{Role: RoleAssistant, Agent: agent, Content: content}
}
