package tutor

import (
	"crypto/subtle"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultConfirmationTTL is how long a deletion token stays valid.
const DefaultConfirmationTTL = 5 * time.Minute

type pending struct {
	token     string
	expiresAt time.Time
}

// Confirmations holds one outstanding confirmation token per learner.
type Confirmations struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	pending map[int64]pending
}

func NewConfirmations(ttl time.Duration, now func() time.Time) *Confirmations {
	if now == nil {
		now = time.Now
	}
	return &Confirmations{
		ttl:     ttl,
		now:     now,
		pending: make(map[int64]pending),
	}
}

// Issue replaces any outstanding token of the learner.
func (c *Confirmations) Issue(learnerID int64) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	token := uuid.NewString()
	c.pending[learnerID] = pending{token: token, expiresAt: c.now().Add(c.ttl)}
	return token
}

// Redeem consumes the token. It reports false for a wrong or expired token;
// an expired token is dropped.
func (c *Confirmations) Redeem(learnerID int64, token string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.pending[learnerID]
	if !ok || token == "" {
		return false
	}
	if !c.now().Before(p.expiresAt) {
		delete(c.pending, learnerID)
		return false
	}
	if subtle.ConstantTimeCompare([]byte(p.token), []byte(token)) != 1 {
		return false
	}
	delete(c.pending, learnerID)
	return true
}
