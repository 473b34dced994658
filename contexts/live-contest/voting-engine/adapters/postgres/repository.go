package postgresadapter

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"voteverse/contexts/live-contest/voting-engine/domain/entities"
	domainerrors "voteverse/contexts/live-contest/voting-engine/domain/errors"
	"voteverse/contexts/live-contest/voting-engine/ports"
)

const (
	outboxStatusPending   = "pending"
	outboxStatusPublished = "published"
)

type Repository struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewRepository(db *gorm.DB, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// voterForeignKeys tie every vote row to its voter. Inserting a vote takes a
// key-share lock on the voter row, which the guarded voter writes wait on.
var voterForeignKeys = []struct {
	model any
	table string
	name  string
}{
	{model: &judgeVoteModel{}, table: "contest_judge_votes", name: "fk_contest_judge_votes_voter"},
	{model: &audienceVoteModel{}, table: "contest_audience_votes", name: "fk_contest_audience_votes_voter"},
}

// Migrate creates the engine tables. The vote tables carry the unique
// indexes that make appends atomic conditional inserts.
func (r *Repository) Migrate(ctx context.Context) error {
	db := r.db.WithContext(ctx)
	if err := db.AutoMigrate(
		&voterModel{},
		&participantModel{},
		&roundModel{},
		&judgeVoteModel{},
		&audienceVoteModel{},
		&activityModel{},
		&outboxModel{},
	); err != nil {
		return r.logError("voting_repo_migrate_failed", err)
	}
	for _, fk := range voterForeignKeys {
		if db.Migrator().HasConstraint(fk.model, fk.name) {
			continue
		}
		statement := fmt.Sprintf(
			"ALTER TABLE %s ADD CONSTRAINT %s FOREIGN KEY (voter_id) REFERENCES contest_voters (id)",
			fk.table, fk.name,
		)
		if err := db.Exec(statement).Error; err != nil {
			return r.logError("voting_repo_migrate_failed", err, "constraint", fk.name)
		}
	}
	return nil
}

func (r *Repository) AppendJudgeVote(ctx context.Context, vote entities.JudgeVote) error {
	row := judgeVoteModelFromEntity(vote)
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: voter %s already scored %s in round %d",
				domainerrors.ErrDuplicateVote, row.VoterID, row.ParticipantID, row.RoundIndex)
		}
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: %s", domainerrors.ErrVoterNotFound, row.VoterID)
		}
		return r.logError("voting_repo_append_judge_vote_failed", err,
			"vote_id", row.ID,
			"round_index", row.RoundIndex,
			"participant_id", row.ParticipantID,
			"voter_id", row.VoterID,
		)
	}
	return nil
}

func (r *Repository) AppendAudienceVote(ctx context.Context, vote entities.AudienceVote) error {
	row := audienceVoteModelFromEntity(vote)
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: voter %s already voted in audience round %d",
				domainerrors.ErrDuplicateVote, row.VoterID, row.RoundIndex)
		}
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: %s", domainerrors.ErrVoterNotFound, row.VoterID)
		}
		return r.logError("voting_repo_append_audience_vote_failed", err,
			"vote_id", row.ID,
			"round_index", row.RoundIndex,
			"voter_id", row.VoterID,
		)
	}
	return nil
}

// Snapshot reads both vote tables inside one read-only repeatable-read
// transaction so the two lists describe the same instant.
func (r *Repository) Snapshot(ctx context.Context) (entities.LedgerSnapshot, error) {
	return r.snapshot(ctx, "voting_repo_snapshot_failed", func(tx *gorm.DB) *gorm.DB { return tx })
}

func (r *Repository) VotesForRound(ctx context.Context, roundIndex int) (entities.LedgerSnapshot, error) {
	return r.snapshot(ctx, "voting_repo_votes_for_round_failed", func(tx *gorm.DB) *gorm.DB {
		return tx.Where("round_index = ?", roundIndex)
	}, "round_index", roundIndex)
}

func (r *Repository) VotesByParticipant(ctx context.Context, participantID string) (entities.LedgerSnapshot, error) {
	participantID = strings.TrimSpace(participantID)
	return r.snapshot(ctx, "voting_repo_votes_by_participant_failed", func(tx *gorm.DB) *gorm.DB {
		return tx.Where("participant_id = ?", participantID)
	}, "participant_id", participantID)
}

func (r *Repository) snapshot(
	ctx context.Context,
	event string,
	scope func(tx *gorm.DB) *gorm.DB,
	attrs ...any,
) (entities.LedgerSnapshot, error) {
	var judgeRows []judgeVoteModel
	var audienceRows []audienceVoteModel
	var takenAt time.Time
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Raw("SELECT now()").Scan(&takenAt).Error; err != nil {
			return err
		}
		if err := scope(tx.Model(&judgeVoteModel{})).Order("submitted_at ASC, id ASC").Find(&judgeRows).Error; err != nil {
			return err
		}
		return scope(tx.Model(&audienceVoteModel{})).Order("submitted_at ASC, id ASC").Find(&audienceRows).Error
	}, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return entities.LedgerSnapshot{}, r.logError(event, err, attrs...)
	}

	snapshot := entities.LedgerSnapshot{
		JudgeVotes:    make([]entities.JudgeVote, 0, len(judgeRows)),
		AudienceVotes: make([]entities.AudienceVote, 0, len(audienceRows)),
		TakenAt:       takenAt.UTC(),
	}
	for _, row := range judgeRows {
		snapshot.JudgeVotes = append(snapshot.JudgeVotes, row.toEntity())
	}
	for _, row := range audienceRows {
		snapshot.AudienceVotes = append(snapshot.AudienceVotes, row.toEntity())
	}
	return snapshot, nil
}

func (r *Repository) SaveRound(ctx context.Context, round entities.Round) error {
	row := roundModelFromEntity(round)
	create := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "kind"}, {Name: "round_index"}},
		DoUpdates: clause.Assignments(map[string]any{
			"state":            row.State,
			"started_at":       row.StartedAt,
			"duration_seconds": row.DurationSeconds,
			"locked_at":        row.LockedAt,
			"closed_at":        row.ClosedAt,
		}),
	}).Create(&row)
	if create.Error != nil {
		return r.logError("voting_repo_save_round_failed", create.Error,
			"round_kind", row.Kind,
			"round_index", row.RoundIndex,
		)
	}
	return nil
}

func (r *Repository) ListRounds(ctx context.Context, kind entities.RoundKind) ([]entities.Round, error) {
	var rows []roundModel
	if err := r.db.WithContext(ctx).
		Where("kind = ?", string(kind)).
		Order("round_index ASC").
		Find(&rows).Error; err != nil {
		return nil, r.logError("voting_repo_list_rounds_failed", err, "round_kind", string(kind))
	}
	items := make([]entities.Round, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toEntity())
	}
	return items, nil
}

func (r *Repository) GetVoter(ctx context.Context, voterID string) (entities.Voter, error) {
	var row voterModel
	err := r.db.WithContext(ctx).
		Where("id = ?", strings.TrimSpace(voterID)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Voter{}, domainerrors.ErrVoterNotFound
		}
		return entities.Voter{}, r.logError("voting_repo_get_voter_failed", err, "voter_id", strings.TrimSpace(voterID))
	}
	return row.toEntity(), nil
}

func (r *Repository) GetVoterByEmail(ctx context.Context, email string) (entities.Voter, bool, error) {
	var row voterModel
	err := r.db.WithContext(ctx).
		Where("email = ?", strings.ToLower(strings.TrimSpace(email))).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Voter{}, false, nil
		}
		return entities.Voter{}, false, r.logError("voting_repo_get_voter_by_email_failed", err)
	}
	return row.toEntity(), true, nil
}

func (r *Repository) CreateVoter(ctx context.Context, voter entities.Voter) error {
	row := voterModelFromEntity(voter)
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			return domainerrors.ErrConflict
		}
		return r.logError("voting_repo_create_voter_failed", err, "voter_id", row.ID)
	}
	return nil
}

// UpdateVoter never touches email or created_at: both are identity.
func (r *Repository) UpdateVoter(ctx context.Context, voter entities.Voter) error {
	row := voterModelFromEntity(voter)
	result := r.db.WithContext(ctx).
		Model(&voterModel{}).
		Where("id = ?", row.ID).
		Updates(voterUpdates(row))
	if result.Error != nil {
		return r.logError("voting_repo_update_voter_failed", result.Error, "voter_id", row.ID)
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrVoterNotFound
	}
	return nil
}

func (r *Repository) UpdateVoterIfNoVotes(ctx context.Context, voter entities.Voter) error {
	row := voterModelFromEntity(voter)
	return r.withoutVotes(ctx, row.ID, "voting_repo_update_voter_failed", func(tx *gorm.DB) error {
		return tx.Model(&voterModel{}).Where("id = ?", row.ID).Updates(voterUpdates(row)).Error
	})
}

func (r *Repository) DeleteVoterIfNoVotes(ctx context.Context, voterID string) error {
	voterID = strings.TrimSpace(voterID)
	return r.withoutVotes(ctx, voterID, "voting_repo_delete_voter_failed", func(tx *gorm.DB) error {
		return tx.Where("id = ?", voterID).Delete(&voterModel{}).Error
	})
}

// withoutVotes locks the voter row, refuses when any vote references it,
// then runs write in the same transaction. The foreign keys make a vote
// insert racing the lock either wait for the write or fail against it.
func (r *Repository) withoutVotes(ctx context.Context, voterID string, event string, write func(tx *gorm.DB) error) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row voterModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", voterID).First(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domainerrors.ErrVoterNotFound
			}
			return err
		}
		var votes int64
		if err := tx.Raw(
			"SELECT (SELECT count(*) FROM contest_judge_votes WHERE voter_id = ?) + (SELECT count(*) FROM contest_audience_votes WHERE voter_id = ?)",
			voterID, voterID,
		).Scan(&votes).Error; err != nil {
			return err
		}
		if votes > 0 {
			return fmt.Errorf("%w: %s has %d votes", domainerrors.ErrHasVotes, voterID, votes)
		}
		return write(tx)
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domainerrors.ErrVoterNotFound), errors.Is(err, domainerrors.ErrHasVotes):
		return err
	case isForeignKeyViolation(err):
		return fmt.Errorf("%w: %s", domainerrors.ErrHasVotes, voterID)
	default:
		return r.logError(event, err, "voter_id", voterID)
	}
}

func voterUpdates(row voterModel) map[string]any {
	return map[string]any{
		"name":          row.Name,
		"role":          row.Role,
		"verified":      row.Verified,
		"active":        row.Active,
		"updated_at":    row.UpdatedAt,
		"last_login_at": row.LastLoginAt,
	}
}

func (r *Repository) ListVoters(ctx context.Context) ([]entities.Voter, error) {
	var rows []voterModel
	if err := r.db.WithContext(ctx).Order("email ASC").Find(&rows).Error; err != nil {
		return nil, r.logError("voting_repo_list_voters_failed", err)
	}
	items := make([]entities.Voter, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toEntity())
	}
	return items, nil
}

func (r *Repository) GetParticipant(ctx context.Context, participantID string) (entities.Participant, error) {
	var row participantModel
	err := r.db.WithContext(ctx).
		Where("id = ?", strings.TrimSpace(participantID)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Participant{}, domainerrors.ErrParticipantNotFound
		}
		return entities.Participant{}, r.logError("voting_repo_get_participant_failed", err,
			"participant_id", strings.TrimSpace(participantID),
		)
	}
	return row.toEntity(), nil
}

func (r *Repository) SaveParticipant(ctx context.Context, participant entities.Participant) error {
	row := participantModelFromEntity(participant)
	create := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"name":          row.Name,
			"description":   row.Description,
			"current_round": row.CurrentRound,
		}),
	}).Create(&row)
	if create.Error != nil {
		return r.logError("voting_repo_save_participant_failed", create.Error, "participant_id", row.ID)
	}
	return nil
}

func (r *Repository) ListParticipants(ctx context.Context) ([]entities.Participant, error) {
	var rows []participantModel
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, r.logError("voting_repo_list_participants_failed", err)
	}
	items := make([]entities.Participant, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toEntity())
	}
	return items, nil
}

func (r *Repository) AppendActivity(ctx context.Context, entry entities.ActivityEntry) error {
	row := activityModel{
		ID:          strings.TrimSpace(entry.EntryID),
		At:          entry.At.UTC(),
		Type:        string(entry.Type),
		PerformedBy: entry.PerformedBy,
		Details:     entry.Details,
		Severity:    string(entry.Severity),
	}
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return r.logError("voting_repo_append_activity_failed", err, "activity_type", row.Type)
	}
	return nil
}

func (r *Repository) ListActivity(ctx context.Context, limit int) ([]entities.ActivityEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []activityModel
	if err := r.db.WithContext(ctx).
		Order("seq DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, r.logError("voting_repo_list_activity_failed", err, "limit", limit)
	}
	items := make([]entities.ActivityEntry, 0, len(rows))
	for _, row := range rows {
		items = append(items, entities.ActivityEntry{
			EntryID:     row.ID,
			At:          row.At.UTC(),
			Type:        entities.ActivityType(row.Type),
			PerformedBy: row.PerformedBy,
			Details:     row.Details,
			Severity:    entities.Severity(row.Severity),
		})
	}
	return items, nil
}

func (r *Repository) AppendOutbox(ctx context.Context, envelope ports.EventEnvelope) error {
	payload, err := json.Marshal(envelope)
	if err != nil {
		return r.logError("voting_repo_append_outbox_marshal_failed", err,
			"event_id", strings.TrimSpace(envelope.EventID),
			"event_type", strings.TrimSpace(envelope.EventType),
		)
	}
	row := outboxModel{
		OutboxID:     strings.TrimSpace(envelope.EventID),
		EventType:    strings.TrimSpace(envelope.EventType),
		PartitionKey: strings.TrimSpace(envelope.PartitionKey),
		Payload:      payload,
		Status:       outboxStatusPending,
		CreatedAt:    envelope.OccurredAt.UTC(),
	}
	if row.OutboxID == "" {
		row.OutboxID = uuid.NewString()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	create := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "outbox_id"}},
		DoNothing: true,
	}).Create(&row)
	if create.Error != nil {
		return r.logError("voting_repo_append_outbox_insert_failed", create.Error,
			"outbox_id", row.OutboxID,
		)
	}
	if create.RowsAffected > 0 {
		return nil
	}

	var existing outboxModel
	if err := r.db.WithContext(ctx).
		Select("payload").
		Where("outbox_id = ?", row.OutboxID).
		First(&existing).Error; err != nil {
		return r.logError("voting_repo_append_outbox_load_existing_failed", err,
			"outbox_id", row.OutboxID,
		)
	}
	if !bytes.Equal(existing.Payload, row.Payload) {
		return domainerrors.ErrConflict
	}
	return nil
}

func (r *Repository) ListPendingOutbox(ctx context.Context, limit int) ([]ports.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []outboxModel
	if err := r.db.WithContext(ctx).
		Where("status = ?", outboxStatusPending).
		Order("seq ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, r.logError("voting_repo_list_pending_outbox_failed", err, "limit", limit)
	}
	items := make([]ports.OutboxMessage, 0, len(rows))
	for _, row := range rows {
		items = append(items, ports.OutboxMessage{
			OutboxID:     row.OutboxID,
			EventType:    row.EventType,
			PartitionKey: row.PartitionKey,
			Payload:      append([]byte(nil), row.Payload...),
			CreatedAt:    row.CreatedAt.UTC(),
		})
	}
	return items, nil
}

func (r *Repository) MarkOutboxPublished(ctx context.Context, outboxID string, publishedAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&outboxModel{}).
		Where("outbox_id = ?", strings.TrimSpace(outboxID)).
		Updates(map[string]any{
			"status":       outboxStatusPublished,
			"published_at": publishedAt.UTC(),
		})
	if result.Error != nil {
		return r.logError("voting_repo_mark_outbox_published_failed", result.Error,
			"outbox_id", strings.TrimSpace(outboxID),
		)
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrConflict
	}
	return nil
}

func (r *Repository) logError(event string, err error, attrs ...any) error {
	fields := make([]any, 0, len(attrs)+8)
	fields = append(fields,
		"event", event,
		"module", "live-contest/voting-engine",
		"layer", "adapter",
		"error", err.Error(),
	)
	fields = append(fields, attrs...)
	r.logger.Error("voting repository operation failed", fields...)
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

var _ ports.LedgerStore = (*Repository)(nil)
var _ ports.RoundRepository = (*Repository)(nil)
var _ ports.VoterRepository = (*Repository)(nil)
var _ ports.ParticipantRepository = (*Repository)(nil)
var _ ports.ActivityLog = (*Repository)(nil)
var _ ports.OutboxWriter = (*Repository)(nil)
var _ ports.OutboxRepository = (*Repository)(nil)
