package services

import (
	"fmt"
	"math"
	"sort"
	"time"

	"voteverse/contexts/live-contest/voting-engine/domain/entities"
	domainerrors "voteverse/contexts/live-contest/voting-engine/domain/errors"
)

const (
	MinScore = 0.0
	MaxScore = 10.0

	DefaultGranularity    = 0.5
	DefaultClashThreshold = 2.0

	floatTolerance = 1e-9
)

// ValidateScore enforces the [0,10] range and the configured step size.
// A non-positive granularity disables the step check.
func ValidateScore(score float64, granularity float64) error {
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return fmt.Errorf("%w: score must be a finite number", domainerrors.ErrInvalidScore)
	}
	if score < MinScore || score > MaxScore {
		return fmt.Errorf("%w: %.2f is outside [%.0f,%.0f]", domainerrors.ErrInvalidScore, score, MinScore, MaxScore)
	}
	if granularity > 0 {
		steps := score / granularity
		if math.Abs(steps-math.Round(steps)) > floatTolerance {
			return fmt.Errorf("%w: %.2f is not a multiple of %.2f", domainerrors.ErrInvalidScore, score, granularity)
		}
	}
	return nil
}

// RoundScore is the mean of every judge and leader score for the pair.
// ok is false when the pair has no votes yet.
func RoundScore(votes []entities.JudgeVote, participantID string, roundIndex int) (float64, bool) {
	var sum float64
	var count int
	for _, vote := range votes {
		if vote.ParticipantID != participantID || vote.RoundIndex != roundIndex {
			continue
		}
		sum += vote.Score
		count++
	}
	if count == 0 {
		return 0, false
	}
	return sum / float64(count), true
}

// TotalScore sums round scores over the given closed rounds only.
func TotalScore(votes []entities.JudgeVote, participantID string, closedRounds []int) float64 {
	var total float64
	for _, roundIndex := range closedRounds {
		if score, ok := RoundScore(votes, participantID, roundIndex); ok {
			total += score
		}
	}
	return total
}

// CheckClash compares the judge mean against the leader mean for one pair.
// The record is populated whenever both sides have voted; clash is true only
// when the delta strictly exceeds threshold.
func CheckClash(
	votes []entities.JudgeVote,
	participantID string,
	roundIndex int,
	threshold float64,
	now time.Time,
) (entities.ClashRecord, bool) {
	var judgeSum, leaderSum float64
	var judgeCount, leaderCount int
	var latest time.Time
	for _, vote := range votes {
		if vote.ParticipantID != participantID || vote.RoundIndex != roundIndex {
			continue
		}
		switch vote.VoterRole {
		case entities.RoleJudge:
			judgeSum += vote.Score
			judgeCount++
		case entities.RoleLeader:
			leaderSum += vote.Score
			leaderCount++
		default:
			continue
		}
		if vote.SubmittedAt.After(latest) {
			latest = vote.SubmittedAt
		}
	}
	if judgeCount == 0 || leaderCount == 0 {
		return entities.ClashRecord{}, false
	}
	judgeMean := judgeSum / float64(judgeCount)
	leaderMean := leaderSum / float64(leaderCount)
	detectedAt := latest
	if detectedAt.IsZero() {
		detectedAt = now
	}
	record := entities.ClashRecord{
		RoundIndex:    roundIndex,
		ParticipantID: participantID,
		JudgeScore:    judgeMean,
		LeaderScore:   leaderMean,
		Delta:         math.Abs(judgeMean - leaderMean),
		DetectedAt:    detectedAt.UTC(),
	}
	return record, record.Delta > threshold
}

// Clashes evaluates every (participant, round) pair present in votes and
// returns the flagged ones ordered by round then participant.
func Clashes(votes []entities.JudgeVote, threshold float64, now time.Time) []entities.ClashRecord {
	type pair struct {
		participantID string
		roundIndex    int
	}
	seen := make(map[pair]struct{})
	pairs := make([]pair, 0)
	for _, vote := range votes {
		key := pair{participantID: vote.ParticipantID, roundIndex: vote.RoundIndex}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		pairs = append(pairs, key)
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].roundIndex == pairs[j].roundIndex {
			return pairs[i].participantID < pairs[j].participantID
		}
		return pairs[i].roundIndex < pairs[j].roundIndex
	})

	items := make([]entities.ClashRecord, 0)
	for _, key := range pairs {
		if record, clash := CheckClash(votes, key.participantID, key.roundIndex, threshold, now); clash {
			items = append(items, record)
		}
	}
	return items
}

func scoresEqual(a, b float64) bool {
	return math.Abs(a-b) < floatTolerance
}
