// Package moderation screens chat text through an external classifier
// before it is persisted and broadcast.
package moderation

import (
	"context"
	"log"
	"time"
)

// Messages shorter than this bypass the classifier entirely; greetings
// and one-liners are never worth a round trip.
const minModerationLength = 20

type Moderator interface {
	// ModerateText reports whether content is allowed and, when blocked,
	// a short human-readable reason.
	ModerateText(ctx context.Context, content string) (bool, string, error)
}

// Gate applies chat moderation policy around a Moderator. FailOpen is an
// explicit flag: when true, classifier errors and timeouts allow the
// message through so moderation outages never block legitimate traffic.
type Gate struct {
	moderator Moderator
	timeout   time.Duration
	log       *log.Logger

	FailOpen bool
}

func NewGate(moderator Moderator, timeout time.Duration, failOpen bool, logger *log.Logger) *Gate {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &Gate{
		moderator: moderator,
		timeout:   timeout,
		log:       logger,
		FailOpen:  failOpen,
	}
}

// Check runs the gate for a single text message. Only text content of at
// least minModerationLength runes reaches the classifier.
func (g *Gate) Check(ctx context.Context, content string) (bool, string) {
	if g.moderator == nil {
		return true, ""
	}

	if len([]rune(content)) < minModerationLength {
		return true, ""
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	allowed, reason, err := g.moderator.ModerateText(ctx, content)
	if err != nil {
		if g.FailOpen {
			g.log.Printf("moderation error (allowing message): %v", err)
			return true, ""
		}

		g.log.Printf("moderation error (blocking message): %v", err)
		return false, "moderation service unavailable"
	}

	if !allowed && reason == "" {
		reason = "content not appropriate"
	}

	return allowed, reason
}
