package errors

import "errors"

var (
	ErrRoundNotOpen        = errors.New("round is not open for voting")
	ErrDuplicateVote       = errors.New("vote already submitted")
	ErrInvalidScore        = errors.New("invalid score")
	ErrUnauthorizedRole    = errors.New("role is not allowed to cast this vote")
	ErrInvalidTransition   = errors.New("invalid round transition")
	ErrForbidden           = errors.New("forbidden")
	ErrHasVotes            = errors.New("voter has recorded votes")
	ErrVoterNotFound       = errors.New("voter not found")
	ErrVoterNotVerified    = errors.New("voter is not verified")
	ErrVoterInactive       = errors.New("voter is deactivated")
	ErrParticipantNotFound = errors.New("participant not found")
	ErrRoundNotFound       = errors.New("round not found")
	ErrSnapshotNotFound    = errors.New("round snapshot not found")
	ErrInvalidInput        = errors.New("invalid input")
	ErrConflict            = errors.New("conflict")
)
