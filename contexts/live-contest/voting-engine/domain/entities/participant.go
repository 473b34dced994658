package entities

import "time"

type Participant struct {
	ParticipantID string
	Name          string
	Description   string
	CurrentRound  int
	CreatedAt     time.Time
}
