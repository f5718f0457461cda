package models

import (
	"errors"
	"testing"
)

func TestParseStructuredReply(t *testing.T) {
	type onboarding struct {
		Language           string  `json:"language"`
		Level              string  `json:"level"`
		AdditionalResponse *string `json:"additional_response"`
	}

	tests := []struct {
		name         string
		reply        string
		wantErr      bool
		wantLanguage string
		wantLevel    string
	}{
		{
			name:         "plain JSON object",
			reply:        `{"language":"French","level":"beginner","additional_response":null}`,
			wantLanguage: "French",
			wantLevel:    "beginner",
		},
		{
			name: "fenced code block",
			reply: "```json\n" +
				`{"language":"Spanish","level":"intermediate","additional_response":null}` +
				"\n```",
			wantLanguage: "Spanish",
			wantLevel:    "intermediate",
		},
		{
			name:         "object wrapped in prose",
			reply:        `Sure! Here is the extraction: {"language":"German","level":"advanced","additional_response":null} Let me know if you need more.`,
			wantLanguage: "German",
			wantLevel:    "advanced",
		},
		{
			name:         "fenced block with surrounding explanation",
			reply:        "The answer is:\n```\n{\"language\":\"Italian\",\"level\":\"beginner\",\"additional_response\":null}\n```",
			wantLanguage: "Italian",
			wantLevel:    "beginner",
		},
		{
			name:    "no JSON at all",
			reply:   "I'm sorry, I can't help with that.",
			wantErr: true,
		},
		{
			name:    "broken JSON",
			reply:   `{"language":"French","level":`,
			wantErr: true,
		},
		{
			name:    "empty reply",
			reply:   "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var parsed onboarding
			err := ParseStructuredReply(tt.reply, &parsed)

			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseStructuredReply(%q) expected an error, got none", tt.reply)
				}
				var malformed *MalformedReplyError
				if !errors.As(err, &malformed) {
					t.Errorf("ParseStructuredReply(%q) error = %v, want MalformedReplyError", tt.reply, err)
				}
				return
			}

			if err != nil {
				t.Fatalf("ParseStructuredReply(%q) unexpected error: %v", tt.reply, err)
			}
			if parsed.Language != tt.wantLanguage || parsed.Level != tt.wantLevel {
				t.Errorf("ParseStructuredReply(%q) = {%s, %s}, want {%s, %s}",
					tt.reply, parsed.Language, parsed.Level, tt.wantLanguage, tt.wantLevel)
			}
		})
	}
}

func TestTurnConstructors(t *testing.T) {
	system := NewSystemTurn("configure")
	if system.Role != RoleSystem || system.Agent != AgentSetup {
		t.Errorf("NewSystemTurn role/agent = %s/%s, want system/setup", system.Role, system.Agent)
	}

	user := NewUserTurn(AgentConversation, "Bonjour")
	if user.Role != RoleUser || user.Agent != AgentConversation || user.Content != "Bonjour" {
		t.Errorf("NewUserTurn = %+v, want user/conversation/Bonjour", user)
	}

	assistant := NewAssistantTurn(AgentFeedback, "Please follow the conversation")
	if assistant.Role != RoleAssistant || assistant.Agent != AgentFeedback {
		t.Errorf("NewAssistantTurn role/agent = %s/%s, want assistant/feedback", assistant.Role, assistant.Agent)
	}
}

func TestNeedsTutoringInfo(t *testing.T) {
	tests := []struct {
		name     string
		language string
		level    string
		expected bool
	}{
		{"both unknown", "unknown", "unknown", true},
		{"both empty", "", "", true},
		{"unknown uppercase", "Unknown", "beginner", true},
		{"language only", "French", "unknown", true},
		{"level only", "unknown", "beginner", true},
		{"both set", "French", "beginner", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user := &UserProfile{Language: tt.language, Level: tt.level}
			if got := user.NeedsTutoringInfo(); got != tt.expected {
				t.Errorf("NeedsTutoringInfo() = %v, expected %v for %q/%q", got, tt.expected, tt.language, tt.level)
			}
		})
	}
}
