// Package votingengine implements the live voting and tabulation engine of
// the live-contest context.
//
// The module owns two round tracks (judged scoring rounds and audience
// ballot windows), the append-only vote ledger gated by those tracks, the
// derived read models (round scores, clashes, audience tallies, ranked
// leaderboards) and the admin control surface. Round transitions and votes
// are written to an outbox that a relay moves onto the event bus, where the
// leaderboard stream fans them out to observers.
package votingengine
