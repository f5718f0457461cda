package models

import "strings"

const UnknownValue = "unknown"

// UserProfile is the persisted state for one end user. History grows
// append-only except for explicit rollback of the most recent turn when a
// generated reply is rejected. TopicsCovered holds one entry per
// conversation reply, each a comma separated term list.
type UserProfile struct {
	ID            string   `json:"id"`
	Language      string   `json:"language"`
	Level         string   `json:"level"`
	History       []Turn   `json:"history"`
	TopicsCovered []string `json:"topics_covered"`
}

// NeedsTutoringInfo reports whether the onboarding gate is still open,
// i.e. language or level has not been established yet.
func (u *UserProfile) NeedsTutoringInfo() bool {
	return u.Language == "" || strings.EqualFold(u.Language, UnknownValue) ||
		u.Level == "" || strings.EqualFold(u.Level, UnknownValue)
}
