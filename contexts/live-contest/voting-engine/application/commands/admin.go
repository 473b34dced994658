package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	application "voteverse/contexts/live-contest/voting-engine/application"
	"voteverse/contexts/live-contest/voting-engine/application/rounds"
	"voteverse/contexts/live-contest/voting-engine/domain/entities"
	domainerrors "voteverse/contexts/live-contest/voting-engine/domain/errors"
	"voteverse/contexts/live-contest/voting-engine/ports"
)

// RoundTrack is the slice of rounds.Controller the admin surface drives.
type RoundTrack interface {
	LockVoting(ctx context.Context) (entities.Round, error)
	UnlockVoting(ctx context.Context) (entities.Round, error)
	ForceAdvance(ctx context.Context, override bool) (rounds.Advance, error)
	StartTimer(ctx context.Context, duration time.Duration) (entities.Round, error)
	OpenNext(ctx context.Context, duration time.Duration) (entities.Round, error)
	Close(ctx context.Context) (entities.Round, error)
	Exclusive(ctx context.Context, fn func() error) error
}

type EditVoterCommand struct {
	VoterID string
	Name    *string
	Role    *string
}

type RegisterParticipantCommand struct {
	ParticipantID string
	Name          string
	Description   string
}

// Admin wraps privileged operations. Every call requires an active,
// verified admin actor and leaves an admin_action entry in the activity log.
type Admin struct {
	Scoring      RoundTrack
	Audience     RoundTrack
	Voters       ports.VoterRepository
	Participants ports.ParticipantRepository
	Activity     ports.ActivityLog
	Clock        ports.Clock
	IDGen        ports.IDGenerator
	Logger       *slog.Logger
}

func (uc Admin) LockVoting(ctx context.Context, actorID string) (entities.Round, error) {
	actor, err := uc.authorize(ctx, actorID, "lock_voting")
	if err != nil {
		return entities.Round{}, err
	}
	round, err := uc.Scoring.LockVoting(ctx)
	if err != nil {
		return entities.Round{}, err
	}
	uc.audit(ctx, actor, entities.ActivityAdminAction, fmt.Sprintf("locked voting for round %d", round.Index))
	return round, nil
}

func (uc Admin) UnlockVoting(ctx context.Context, actorID string) (entities.Round, error) {
	actor, err := uc.authorize(ctx, actorID, "unlock_voting")
	if err != nil {
		return entities.Round{}, err
	}
	round, err := uc.Scoring.UnlockVoting(ctx)
	if err != nil {
		return entities.Round{}, err
	}
	uc.audit(ctx, actor, entities.ActivityAdminAction, fmt.Sprintf("unlocked voting for round %d", round.Index))
	return round, nil
}

// ForceAdvance always carries the administrator override, so an Open round
// with time left is closed as well.
func (uc Admin) ForceAdvance(ctx context.Context, actorID string) (rounds.Advance, error) {
	actor, err := uc.authorize(ctx, actorID, "force_advance")
	if err != nil {
		return rounds.Advance{}, err
	}
	result, err := uc.Scoring.ForceAdvance(ctx, true)
	if err != nil {
		return result, err
	}
	details := fmt.Sprintf("closed round %d", result.Closed.Index)
	if result.HasNext {
		details = fmt.Sprintf("closed round %d and opened round %d", result.Closed.Index, result.Opened.Index)
	}
	uc.audit(ctx, actor, entities.ActivityAdminAction, details)
	return result, nil
}

func (uc Admin) StartTimer(ctx context.Context, actorID string, duration time.Duration) (entities.Round, error) {
	actor, err := uc.authorize(ctx, actorID, "start_timer")
	if err != nil {
		return entities.Round{}, err
	}
	round, err := uc.Scoring.StartTimer(ctx, duration)
	if err != nil {
		return entities.Round{}, err
	}
	uc.audit(ctx, actor, entities.ActivityAdminAction,
		fmt.Sprintf("started %s timer for round %d", duration.Round(time.Second), round.Index))
	return round, nil
}

// TriggerAudienceVoting opens a new audience round, closing one still in
// progress first.
func (uc Admin) TriggerAudienceVoting(ctx context.Context, actorID string, duration time.Duration) (entities.Round, error) {
	actor, err := uc.authorize(ctx, actorID, "trigger_audience_voting")
	if err != nil {
		return entities.Round{}, err
	}
	round, err := uc.Audience.OpenNext(ctx, duration)
	if err != nil {
		return entities.Round{}, err
	}
	uc.audit(ctx, actor, entities.ActivityAudienceVoteTriggered,
		fmt.Sprintf("opened audience round %d for %s", round.Index, round.Duration.Round(time.Second)))
	return round, nil
}

func (uc Admin) CloseAudienceVoting(ctx context.Context, actorID string) (entities.Round, error) {
	actor, err := uc.authorize(ctx, actorID, "close_audience_voting")
	if err != nil {
		return entities.Round{}, err
	}
	round, err := uc.Audience.Close(ctx)
	if err != nil {
		return entities.Round{}, err
	}
	uc.audit(ctx, actor, entities.ActivityAdminAction, fmt.Sprintf("closed audience round %d", round.Index))
	return round, nil
}

// EditVoter renames a voter or changes its role. A role change is refused
// once the voter has ledger entries so recorded votes keep their meaning.
func (uc Admin) EditVoter(ctx context.Context, actorID string, cmd EditVoterCommand) (entities.Voter, error) {
	actor, err := uc.authorize(ctx, actorID, "edit_voter")
	if err != nil {
		return entities.Voter{}, err
	}
	voter, err := uc.Voters.GetVoter(ctx, strings.TrimSpace(cmd.VoterID))
	if err != nil {
		return entities.Voter{}, err
	}

	changes := make([]string, 0, 2)
	roleChanged := false
	if cmd.Name != nil {
		name := strings.TrimSpace(*cmd.Name)
		if name == "" {
			return entities.Voter{}, fmt.Errorf("%w: name must not be empty", domainerrors.ErrInvalidInput)
		}
		if name != voter.Name {
			voter.Name = name
			changes = append(changes, "name")
		}
	}
	if cmd.Role != nil {
		role, ok := entities.ParseRole(*cmd.Role)
		if !ok {
			return entities.Voter{}, fmt.Errorf("%w: unknown role %q", domainerrors.ErrInvalidInput, *cmd.Role)
		}
		if role != voter.Role {
			voter.Role = role
			roleChanged = true
			changes = append(changes, "role")
		}
	}
	if len(changes) == 0 {
		return voter, nil
	}
	voter.UpdatedAt = uc.Clock.Now().UTC()
	if roleChanged {
		err = uc.quiesced(ctx, func() error {
			return uc.Voters.UpdateVoterIfNoVotes(ctx, voter)
		})
	} else {
		err = uc.Voters.UpdateVoter(ctx, voter)
	}
	if err != nil {
		return entities.Voter{}, err
	}
	uc.audit(ctx, actor, entities.ActivityAdminAction,
		fmt.Sprintf("edited %s of voter %s", strings.Join(changes, " and "), voter.Email))
	return voter, nil
}

// RemoveVoter deletes a voter with no ledger entries. Voters with votes can
// only be deactivated.
func (uc Admin) RemoveVoter(ctx context.Context, actorID string, voterID string) error {
	actor, err := uc.authorize(ctx, actorID, "remove_voter")
	if err != nil {
		return err
	}
	voter, err := uc.Voters.GetVoter(ctx, strings.TrimSpace(voterID))
	if err != nil {
		return err
	}
	if voter.VoterID == actor.VoterID {
		return fmt.Errorf("%w: admins cannot remove themselves", domainerrors.ErrInvalidInput)
	}
	err = uc.quiesced(ctx, func() error {
		return uc.Voters.DeleteVoterIfNoVotes(ctx, voter.VoterID)
	})
	if err != nil {
		return err
	}
	uc.audit(ctx, actor, entities.ActivityAdminAction, fmt.Sprintf("removed voter %s", voter.Email))
	return nil
}

// DeactivateVoter archives a voter. Its votes stay in the ledger; once it
// returns no further vote by the voter is admitted.
func (uc Admin) DeactivateVoter(ctx context.Context, actorID string, voterID string) (entities.Voter, error) {
	actor, err := uc.authorize(ctx, actorID, "deactivate_voter")
	if err != nil {
		return entities.Voter{}, err
	}
	voter, err := uc.Voters.GetVoter(ctx, strings.TrimSpace(voterID))
	if err != nil {
		return entities.Voter{}, err
	}
	if voter.VoterID == actor.VoterID {
		return entities.Voter{}, fmt.Errorf("%w: admins cannot deactivate themselves", domainerrors.ErrInvalidInput)
	}
	if !voter.Active {
		return voter, nil
	}
	voter.Active = false
	voter.UpdatedAt = uc.Clock.Now().UTC()
	err = uc.quiesced(ctx, func() error {
		return uc.Voters.UpdateVoter(ctx, voter)
	})
	if err != nil {
		return entities.Voter{}, err
	}
	uc.audit(ctx, actor, entities.ActivityAdminAction, fmt.Sprintf("deactivated voter %s", voter.Email))
	return voter, nil
}

func (uc Admin) RegisterParticipant(ctx context.Context, actorID string, cmd RegisterParticipantCommand) (entities.Participant, error) {
	actor, err := uc.authorize(ctx, actorID, "register_participant")
	if err != nil {
		return entities.Participant{}, err
	}
	name := strings.TrimSpace(cmd.Name)
	if name == "" {
		return entities.Participant{}, fmt.Errorf("%w: participant name is required", domainerrors.ErrInvalidInput)
	}
	participantID := strings.TrimSpace(cmd.ParticipantID)
	if participantID == "" {
		participantID, err = uc.IDGen.NewID(ctx)
		if err != nil {
			return entities.Participant{}, err
		}
	} else if _, err := uc.Participants.GetParticipant(ctx, participantID); err == nil {
		return entities.Participant{}, fmt.Errorf("%w: participant %s already exists", domainerrors.ErrConflict, participantID)
	} else if !errors.Is(err, domainerrors.ErrParticipantNotFound) {
		return entities.Participant{}, err
	}

	participant := entities.Participant{
		ParticipantID: participantID,
		Name:          name,
		Description:   strings.TrimSpace(cmd.Description),
		CurrentRound:  1,
		CreatedAt:     uc.Clock.Now().UTC(),
	}
	if err := uc.Participants.SaveParticipant(ctx, participant); err != nil {
		return entities.Participant{}, err
	}
	uc.audit(ctx, actor, entities.ActivityAdminAction, fmt.Sprintf("registered participant %s", participant.Name))
	return participant, nil
}

// quiesced runs fn while neither track admits votes, so no submission can
// land between the store's ledger check and the voter write.
func (uc Admin) quiesced(ctx context.Context, fn func() error) error {
	return uc.Scoring.Exclusive(ctx, func() error {
		return uc.Audience.Exclusive(ctx, fn)
	})
}

func (uc Admin) authorize(ctx context.Context, actorID string, action string) (entities.Voter, error) {
	logger := application.ResolveLogger(uc.Logger)
	actor, err := uc.Voters.GetVoter(ctx, strings.TrimSpace(actorID))
	if err == nil && actor.Active && actor.Verified && actor.Role.Can(entities.CapAdminister) {
		return actor, nil
	}
	if err != nil && !errors.Is(err, domainerrors.ErrVoterNotFound) {
		return entities.Voter{}, err
	}
	logger.Warn("admin action forbidden",
		"event", "voting_admin_forbidden",
		"module", application.ModuleName,
		"layer", "application",
		"actor_id", strings.TrimSpace(actorID),
		"action", action,
	)
	return entities.Voter{}, fmt.Errorf("%w: %s requires an active verified admin", domainerrors.ErrForbidden, action)
}

func (uc Admin) audit(ctx context.Context, actor entities.Voter, activityType entities.ActivityType, details string) {
	logger := application.ResolveLogger(uc.Logger)
	logger.Info("admin action applied",
		"event", "voting_admin_action",
		"module", application.ModuleName,
		"layer", "application",
		"actor_id", actor.VoterID,
		"details", details,
	)
	application.ActivityRecorder{
		Log:    uc.Activity,
		IDGen:  uc.IDGen,
		Clock:  uc.Clock,
		Logger: logger,
	}.Record(ctx, activityType, entities.SeverityInfo, actor.Email, details)
}
