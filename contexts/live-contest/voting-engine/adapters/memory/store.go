package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"voteverse/contexts/live-contest/voting-engine/domain/entities"
	domainerrors "voteverse/contexts/live-contest/voting-engine/domain/errors"
	"voteverse/contexts/live-contest/voting-engine/ports"
)

type judgeKey struct {
	roundIndex    int
	participantID string
	voterID       string
}

type audienceKey struct {
	roundIndex int
	voterID    string
}

type outboxRecord struct {
	message   ports.OutboxMessage
	seq       uint64
	published bool
}

// Store keeps the whole engine state in process. Every method takes the
// store mutex, so appends are atomic conditional inserts and reads are
// copies taken at one instant.
type Store struct {
	mu sync.RWMutex

	judgeVotes    []entities.JudgeVote
	audienceVotes []entities.AudienceVote
	judgeKeys     map[judgeKey]struct{}
	audienceKeys  map[audienceKey]struct{}

	rounds       map[entities.RoundKind]map[int]entities.Round
	voters       map[string]entities.Voter
	votersEmail  map[string]string
	participants map[string]entities.Participant
	activity     []entities.ActivityEntry
	snapshots    map[int]entities.RoundSnapshot

	outbox    map[string]outboxRecord
	outboxSeq uint64
}

func NewStore() *Store {
	return &Store{
		judgeKeys:    make(map[judgeKey]struct{}),
		audienceKeys: make(map[audienceKey]struct{}),
		rounds:       make(map[entities.RoundKind]map[int]entities.Round),
		voters:       make(map[string]entities.Voter),
		votersEmail:  make(map[string]string),
		participants: make(map[string]entities.Participant),
		snapshots:    make(map[int]entities.RoundSnapshot),
		outbox:       make(map[string]outboxRecord),
	}
}

func (s *Store) AppendJudgeVote(_ context.Context, vote entities.JudgeVote) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := judgeKey{
		roundIndex:    vote.RoundIndex,
		participantID: strings.TrimSpace(vote.ParticipantID),
		voterID:       strings.TrimSpace(vote.VoterID),
	}
	if _, exists := s.judgeKeys[key]; exists {
		return fmt.Errorf("%w: voter %s already scored %s in round %d",
			domainerrors.ErrDuplicateVote, key.voterID, key.participantID, key.roundIndex)
	}
	s.judgeKeys[key] = struct{}{}
	s.judgeVotes = append(s.judgeVotes, vote)
	return nil
}

func (s *Store) AppendAudienceVote(_ context.Context, vote entities.AudienceVote) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := audienceKey{
		roundIndex: vote.RoundIndex,
		voterID:    strings.TrimSpace(vote.VoterID),
	}
	if _, exists := s.audienceKeys[key]; exists {
		return fmt.Errorf("%w: voter %s already voted in audience round %d",
			domainerrors.ErrDuplicateVote, key.voterID, key.roundIndex)
	}
	s.audienceKeys[key] = struct{}{}
	s.audienceVotes = append(s.audienceVotes, vote)
	return nil
}

func (s *Store) Snapshot(_ context.Context) (entities.LedgerSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return entities.LedgerSnapshot{
		JudgeVotes:    append([]entities.JudgeVote(nil), s.judgeVotes...),
		AudienceVotes: append([]entities.AudienceVote(nil), s.audienceVotes...),
		TakenAt:       time.Now().UTC(),
	}, nil
}

func (s *Store) VotesForRound(_ context.Context, roundIndex int) (entities.LedgerSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filterLocked(func(round int, _ string) bool { return round == roundIndex }), nil
}

func (s *Store) VotesByParticipant(_ context.Context, participantID string) (entities.LedgerSnapshot, error) {
	participantID = strings.TrimSpace(participantID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filterLocked(func(_ int, participant string) bool { return participant == participantID }), nil
}

func (s *Store) countVotesLocked(voterID string) int {
	count := 0
	for _, vote := range s.judgeVotes {
		if vote.VoterID == voterID {
			count++
		}
	}
	for _, vote := range s.audienceVotes {
		if vote.VoterID == voterID {
			count++
		}
	}
	return count
}

func (s *Store) filterLocked(keep func(roundIndex int, participantID string) bool) entities.LedgerSnapshot {
	snapshot := entities.LedgerSnapshot{
		JudgeVotes:    make([]entities.JudgeVote, 0),
		AudienceVotes: make([]entities.AudienceVote, 0),
		TakenAt:       time.Now().UTC(),
	}
	for _, vote := range s.judgeVotes {
		if keep(vote.RoundIndex, vote.ParticipantID) {
			snapshot.JudgeVotes = append(snapshot.JudgeVotes, vote)
		}
	}
	for _, vote := range s.audienceVotes {
		if keep(vote.RoundIndex, vote.ParticipantID) {
			snapshot.AudienceVotes = append(snapshot.AudienceVotes, vote)
		}
	}
	return snapshot
}

func (s *Store) SaveRound(_ context.Context, round entities.Round) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	track, ok := s.rounds[round.Kind]
	if !ok {
		track = make(map[int]entities.Round)
		s.rounds[round.Kind] = track
	}
	track[round.Index] = round
	return nil
}

func (s *Store) ListRounds(_ context.Context, kind entities.RoundKind) ([]entities.Round, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]entities.Round, 0, len(s.rounds[kind]))
	for _, round := range s.rounds[kind] {
		items = append(items, round)
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].Index < items[j].Index
	})
	return items, nil
}

func (s *Store) GetVoter(_ context.Context, voterID string) (entities.Voter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	voter, ok := s.voters[strings.TrimSpace(voterID)]
	if !ok {
		return entities.Voter{}, domainerrors.ErrVoterNotFound
	}
	return voter, nil
}

func (s *Store) GetVoterByEmail(_ context.Context, email string) (entities.Voter, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	voterID, ok := s.votersEmail[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return entities.Voter{}, false, nil
	}
	return s.voters[voterID], true, nil
}

func (s *Store) CreateVoter(_ context.Context, voter entities.Voter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	email := strings.ToLower(strings.TrimSpace(voter.Email))
	if _, exists := s.votersEmail[email]; exists {
		return domainerrors.ErrConflict
	}
	if _, exists := s.voters[voter.VoterID]; exists {
		return domainerrors.ErrConflict
	}
	voter.Email = email
	s.voters[voter.VoterID] = voter
	s.votersEmail[email] = voter.VoterID
	return nil
}

// UpdateVoter replaces mutable fields. Email is identity and never changes.
func (s *Store) UpdateVoter(_ context.Context, voter entities.Voter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateVoterLocked(voter)
}

func (s *Store) UpdateVoterIfNoVotes(_ context.Context, voter entities.Voter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if count := s.countVotesLocked(voter.VoterID); count > 0 {
		return fmt.Errorf("%w: %s has %d votes", domainerrors.ErrHasVotes, voter.VoterID, count)
	}
	return s.updateVoterLocked(voter)
}

func (s *Store) updateVoterLocked(voter entities.Voter) error {
	existing, ok := s.voters[voter.VoterID]
	if !ok {
		return domainerrors.ErrVoterNotFound
	}
	voter.Email = existing.Email
	voter.CreatedAt = existing.CreatedAt
	s.voters[voter.VoterID] = voter
	return nil
}

func (s *Store) DeleteVoterIfNoVotes(_ context.Context, voterID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	voter, ok := s.voters[strings.TrimSpace(voterID)]
	if !ok {
		return domainerrors.ErrVoterNotFound
	}
	if count := s.countVotesLocked(voter.VoterID); count > 0 {
		return fmt.Errorf("%w: %s has %d votes", domainerrors.ErrHasVotes, voter.VoterID, count)
	}
	delete(s.voters, voter.VoterID)
	delete(s.votersEmail, voter.Email)
	return nil
}

func (s *Store) ListVoters(_ context.Context) ([]entities.Voter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]entities.Voter, 0, len(s.voters))
	for _, voter := range s.voters {
		items = append(items, voter)
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].Email < items[j].Email
	})
	return items, nil
}

func (s *Store) GetParticipant(_ context.Context, participantID string) (entities.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	participant, ok := s.participants[strings.TrimSpace(participantID)]
	if !ok {
		return entities.Participant{}, domainerrors.ErrParticipantNotFound
	}
	return participant, nil
}

func (s *Store) SaveParticipant(_ context.Context, participant entities.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.participants[strings.TrimSpace(participant.ParticipantID)] = participant
	return nil
}

func (s *Store) ListParticipants(_ context.Context) ([]entities.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]entities.Participant, 0, len(s.participants))
	for _, participant := range s.participants {
		items = append(items, participant)
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].ParticipantID < items[j].ParticipantID
	})
	return items, nil
}

func (s *Store) AppendActivity(_ context.Context, entry entities.ActivityEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activity = append(s.activity, entry)
	return nil
}

func (s *Store) ListActivity(_ context.Context, limit int) ([]entities.ActivityEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || limit > len(s.activity) {
		limit = len(s.activity)
	}
	items := make([]entities.ActivityEntry, 0, limit)
	for i := len(s.activity) - 1; i >= 0 && len(items) < limit; i-- {
		items = append(items, s.activity[i])
	}
	return items, nil
}

// SaveRoundSnapshot keeps the first snapshot stored for a round.
func (s *Store) SaveRoundSnapshot(_ context.Context, snapshot entities.RoundSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.snapshots[snapshot.RoundIndex]; exists {
		return nil
	}
	s.snapshots[snapshot.RoundIndex] = snapshot
	return nil
}

func (s *Store) GetRoundSnapshot(_ context.Context, roundIndex int) (entities.RoundSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snapshot, ok := s.snapshots[roundIndex]
	if !ok {
		return entities.RoundSnapshot{}, domainerrors.ErrSnapshotNotFound
	}
	return snapshot, nil
}

func (s *Store) ListRoundSnapshots(_ context.Context) ([]entities.RoundSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]entities.RoundSnapshot, 0, len(s.snapshots))
	for _, snapshot := range s.snapshots {
		items = append(items, snapshot)
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].RoundIndex < items[j].RoundIndex
	})
	return items, nil
}

func (s *Store) AppendOutbox(_ context.Context, envelope ports.EventEnvelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	outboxID := strings.TrimSpace(envelope.EventID)
	if outboxID == "" {
		outboxID = uuid.NewString()
	}
	if existing, ok := s.outbox[outboxID]; ok {
		if !bytes.Equal(existing.message.Payload, payload) {
			return domainerrors.ErrConflict
		}
		return nil
	}
	createdAt := envelope.OccurredAt.UTC()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	s.outboxSeq++
	s.outbox[outboxID] = outboxRecord{
		message: ports.OutboxMessage{
			OutboxID:     outboxID,
			EventType:    strings.TrimSpace(envelope.EventType),
			PartitionKey: strings.TrimSpace(envelope.PartitionKey),
			Payload:      payload,
			CreatedAt:    createdAt,
		},
		seq: s.outboxSeq,
	}
	return nil
}

func (s *Store) ListPendingOutbox(_ context.Context, limit int) ([]ports.OutboxMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}
	rows := make([]outboxRecord, 0, len(s.outbox))
	for _, row := range s.outbox {
		if row.published {
			continue
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].seq < rows[j].seq
	})
	if len(rows) > limit {
		rows = rows[:limit]
	}
	items := make([]ports.OutboxMessage, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.message)
	}
	return items, nil
}

func (s *Store) MarkOutboxPublished(_ context.Context, outboxID string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.outbox[strings.TrimSpace(outboxID)]
	if !ok {
		return domainerrors.ErrConflict
	}
	row.published = true
	s.outbox[strings.TrimSpace(outboxID)] = row
	return nil
}

var _ ports.LedgerStore = (*Store)(nil)
var _ ports.RoundRepository = (*Store)(nil)
var _ ports.VoterRepository = (*Store)(nil)
var _ ports.ParticipantRepository = (*Store)(nil)
var _ ports.ActivityLog = (*Store)(nil)
var _ ports.SnapshotArchive = (*Store)(nil)
var _ ports.OutboxWriter = (*Store)(nil)
var _ ports.OutboxRepository = (*Store)(nil)
