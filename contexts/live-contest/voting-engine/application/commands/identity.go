package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	application "voteverse/contexts/live-contest/voting-engine/application"
	"voteverse/contexts/live-contest/voting-engine/domain/entities"
	domainerrors "voteverse/contexts/live-contest/voting-engine/domain/errors"
	"voteverse/contexts/live-contest/voting-engine/ports"
)

type RegisterIdentityCommand struct {
	Email string
	Role  string
	Name  string
}

// Identity accepts identities already verified by the upstream identity
// collaborator. It never re-checks email domains or one-time codes.
type Identity struct {
	Voters   ports.VoterRepository
	Activity ports.ActivityLog
	Clock    ports.Clock
	IDGen    ports.IDGenerator
	Logger   *slog.Logger
}

// RegisterIdentity returns the voter for email, creating it when unknown.
// created reports whether a new voter was stored. A known email presented
// with a different role is a conflict: roles change only through the admin
// surface.
func (uc Identity) RegisterIdentity(ctx context.Context, cmd RegisterIdentityCommand) (entities.Voter, bool, error) {
	logger := application.ResolveLogger(uc.Logger)
	email := strings.ToLower(strings.TrimSpace(cmd.Email))
	if email == "" || !strings.Contains(email, "@") {
		return entities.Voter{}, false, fmt.Errorf("%w: a valid email is required", domainerrors.ErrInvalidInput)
	}
	role, ok := entities.ParseRole(cmd.Role)
	if !ok {
		return entities.Voter{}, false, fmt.Errorf("%w: unknown role %q", domainerrors.ErrInvalidInput, cmd.Role)
	}

	if existing, found, err := uc.Voters.GetVoterByEmail(ctx, email); err != nil {
		return entities.Voter{}, false, err
	} else if found {
		voter, err := uc.confirm(ctx, existing, role)
		return voter, false, err
	}

	voterID, err := uc.IDGen.NewID(ctx)
	if err != nil {
		return entities.Voter{}, false, err
	}
	now := uc.Clock.Now().UTC()
	name := strings.TrimSpace(cmd.Name)
	if name == "" {
		name = email[:strings.Index(email, "@")]
	}
	voter := entities.Voter{
		VoterID:   voterID,
		Email:     email,
		Name:      name,
		Role:      role,
		Verified:  true,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := uc.Voters.CreateVoter(ctx, voter); err != nil {
		if !errors.Is(err, domainerrors.ErrConflict) {
			return entities.Voter{}, false, err
		}
		// Lost a registration race for the same email.
		existing, found, lookupErr := uc.Voters.GetVoterByEmail(ctx, email)
		if lookupErr != nil || !found {
			return entities.Voter{}, false, err
		}
		voter, err := uc.confirm(ctx, existing, role)
		return voter, false, err
	}

	logger.Info("voter identity registered",
		"event", "voting_identity_registered",
		"module", application.ModuleName,
		"layer", "application",
		"voter_id", voter.VoterID,
		"role", string(voter.Role),
	)
	return voter, true, nil
}

// RecordLogin stamps the voter's last login and logs it.
func (uc Identity) RecordLogin(ctx context.Context, voterID string) (entities.Voter, error) {
	logger := application.ResolveLogger(uc.Logger)
	voter, err := uc.Voters.GetVoter(ctx, strings.TrimSpace(voterID))
	if err != nil {
		return entities.Voter{}, err
	}
	if !voter.Active {
		return entities.Voter{}, fmt.Errorf("%w: %s", domainerrors.ErrVoterInactive, voter.VoterID)
	}
	now := uc.Clock.Now().UTC()
	voter.LastLoginAt = &now
	voter.UpdatedAt = now
	if err := uc.Voters.UpdateVoter(ctx, voter); err != nil {
		return entities.Voter{}, err
	}
	logger.Info("voter logged in",
		"event", "voting_voter_login",
		"module", application.ModuleName,
		"layer", "application",
		"voter_id", voter.VoterID,
		"role", string(voter.Role),
	)
	application.ActivityRecorder{
		Log:    uc.Activity,
		IDGen:  uc.IDGen,
		Clock:  uc.Clock,
		Logger: logger,
	}.Record(ctx, entities.ActivityLogin, entities.SeverityInfo, voter.Email,
		fmt.Sprintf("%s logged in", voter.Role))
	return voter, nil
}

func (uc Identity) confirm(ctx context.Context, voter entities.Voter, role entities.Role) (entities.Voter, error) {
	if voter.Role != role {
		return entities.Voter{}, fmt.Errorf("%w: %s is registered as %s", domainerrors.ErrConflict, voter.Email, voter.Role)
	}
	if voter.Verified {
		return voter, nil
	}
	voter.Verified = true
	voter.UpdatedAt = uc.Clock.Now().UTC()
	if err := uc.Voters.UpdateVoter(ctx, voter); err != nil {
		return entities.Voter{}, err
	}
	return voter, nil
}
