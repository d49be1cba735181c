package domain

import "time"

// Room is a durable two-party conversation. The participant pair is fixed at
// creation; rooms are archived, never deleted.
type Room struct {
	ID             string    `db:"id"`
	ParticipantA   string    `db:"participant_a"`
	ParticipantB   string    `db:"participant_b"`
	Archived       bool      `db:"archived"`
	CreatedAt      time.Time `db:"created_at"`
	LastActivityAt time.Time `db:"last_activity_at"`
}

// PairKey builds the unordered-pair identity of two participants so that
// (a,b) and (b,a) map to the same room.
func PairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "|" + b
}

func (r *Room) HasParticipant(identity string) bool {
	return identity == r.ParticipantA || identity == r.ParticipantB
}

// Counterpart returns the other participant of the pair.
func (r *Room) Counterpart(identity string) string {
	if identity == r.ParticipantA {
		return r.ParticipantB
	}
	return r.ParticipantA
}

func (r *Room) Participants() []string {
	return []string{r.ParticipantA, r.ParticipantB}
}
