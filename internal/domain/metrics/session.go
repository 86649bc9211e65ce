package metrics

import (
	"sort"
	"time"

	"github.com/Marseau/UBS-sub017/internal/domain/events"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ConversationSession is the logical conversation derived from all messages
// sharing a session identifier. Sessions, not individual messages, are the
// unit for outcome, duration, and billing calculations.
type ConversationSession struct {
	SessionID string
	UserID    uuid.UUID

	StartedAt     time.Time
	EndedAt       time.Time
	HasTimestamps bool

	MessageCount       int
	UserMessageCount   int
	SystemMessageCount int

	// Outcome is the last non-empty raw outcome tag seen across the
	// session's messages, in timestamp order.
	Outcome string

	// Confidences holds every confidence score attached to the session's
	// messages. Messages without a score contribute nothing here.
	Confidences []float64

	// LowConfidenceUserMessages counts user messages whose score fell below
	// the validity cut (0.7), feeding the spam rate.
	LowConfidenceUserMessages int

	APICost        decimal.Decimal
	ProcessingCost decimal.Decimal
}

// spamConfidenceCut is the validity threshold for user messages. It is
// deliberately distinct from the session quality buckets in quality metrics.
const spamConfidenceCut = 0.7

// DurationMinutes returns the session duration derived from its message
// timestamps. Sessions without usable timestamps report zero and false.
func (s *ConversationSession) DurationMinutes() (float64, bool) {
	if !s.HasTimestamps {
		return 0, false
	}
	return s.EndedAt.Sub(s.StartedAt).Minutes(), true
}

// AvgConfidence returns the mean confidence over scored messages, and whether
// the session has any score at all.
func (s *ConversationSession) AvgConfidence() (float64, bool) {
	if len(s.Confidences) == 0 {
		return 0, false
	}
	var sum float64
	for _, c := range s.Confidences {
		sum += c
	}
	return sum / float64(len(s.Confidences)), true
}

// OutcomeCategory classifies the session's final outcome tag.
func (s *ConversationSession) OutcomeCategory() OutcomeCategory {
	return ClassifyOutcome(s.Outcome)
}

// AssembleSessions collapses raw conversation messages into sessions. A
// message without a session identifier becomes its own single-message session
// keyed by the message ID, so it still counts toward volume metrics.
//
// A session belongs to the period whose window contains its start timestamp;
// callers that fetch messages for a window get exactly the sessions that
// started inside it, avoiding double counting across adjacent windows.
func AssembleSessions(messages []events.ConversationMessage) []*ConversationSession {
	byID := make(map[string]*ConversationSession)
	order := make([]string, 0, len(messages))

	for i := range messages {
		msg := &messages[i]
		id := msg.SessionID()
		if id == "" {
			id = msg.ID.String()
		}

		session, ok := byID[id]
		if !ok {
			session = &ConversationSession{SessionID: id}
			byID[id] = session
			order = append(order, id)
		}

		session.MessageCount++
		if msg.IsFromUser {
			session.UserMessageCount++
		} else {
			session.SystemMessageCount++
		}

		if msg.UserID != uuid.Nil && session.UserID == uuid.Nil {
			session.UserID = msg.UserID
		}

		if !msg.CreatedAt.IsZero() {
			if !session.HasTimestamps {
				session.StartedAt = msg.CreatedAt
				session.EndedAt = msg.CreatedAt
				session.HasTimestamps = true
			} else {
				if msg.CreatedAt.Before(session.StartedAt) {
					session.StartedAt = msg.CreatedAt
				}
				if msg.CreatedAt.After(session.EndedAt) {
					session.EndedAt = msg.CreatedAt
				}
			}
		}

		if msg.Outcome != "" {
			session.Outcome = msg.Outcome
		}

		if msg.ConfidenceScore != nil {
			session.Confidences = append(session.Confidences, *msg.ConfidenceScore)
			if msg.IsFromUser && *msg.ConfidenceScore < spamConfidenceCut {
				session.LowConfidenceUserMessages++
			}
		}

		session.APICost = session.APICost.Add(msg.APICost)
		session.ProcessingCost = session.ProcessingCost.Add(msg.ProcessingCost)
	}

	sessions := make([]*ConversationSession, 0, len(order))
	for _, id := range order {
		sessions = append(sessions, byID[id])
	}

	// Stable output: sessions ordered by start time, undated sessions last.
	sort.SliceStable(sessions, func(i, j int) bool {
		a, b := sessions[i], sessions[j]
		if a.HasTimestamps != b.HasTimestamps {
			return a.HasTimestamps
		}
		return a.StartedAt.Before(b.StartedAt)
	})

	return sessions
}
