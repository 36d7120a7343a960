package models

import "time"

// Candidate holds the read-only candidate fields the engine needs to place
// a call. Candidate management itself lives outside this service.
type Candidate struct {
	ID          string    `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	PhoneNumber string    `json:"phoneNumber" db:"phone_number"`
	Email       *string   `json:"email,omitempty" db:"email"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
}

// Role holds the read-only role fields the engine needs: which voice agent
// conducts the screening and any calling-window constraints.
type Role struct {
	ID            string    `json:"id" db:"id"`
	Title         string    `json:"title" db:"title"`
	VoiceAgentID  *string   `json:"voiceAgentId,omitempty" db:"voice_agent_id"`
	FirstMessage  *string   `json:"firstMessage,omitempty" db:"first_message"`
	CallWindowUTC *string   `json:"callWindowUtc,omitempty" db:"call_window_utc"`
	CreatedAt     time.Time `json:"createdAt" db:"created_at"`
}
