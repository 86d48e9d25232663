package auth

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
)

// Challenge is a human-verification question and its expected answer.
type Challenge struct {
	Question string
	Answer   string
}

// CaptchaProvider generates challenges.
type CaptchaProvider interface {
	NewChallenge() Challenge
}

// ArithmeticCaptcha asks for the result of a small sum, difference or
// product. Operands are 1..10 with the larger one first, so differences are
// never negative.
type ArithmeticCaptcha struct{}

// Compile-time interface check.
var _ CaptchaProvider = ArithmeticCaptcha{}

// NewChallenge returns a fresh arithmetic challenge.
func (ArithmeticCaptcha) NewChallenge() Challenge {
	a := rand.IntN(10) + 1
	b := rand.IntN(10) + 1

	hi, lo := max(a, b), min(a, b)

	var (
		op     string
		result int
	)

	switch rand.IntN(3) {
	case 0:
		op, result = "+", hi+lo
	case 1:
		op, result = "-", hi-lo
	default:
		op, result = "*", hi*lo
	}

	return Challenge{
		Question: fmt.Sprintf("%d %s %d = ?", hi, op, lo),
		Answer:   strconv.Itoa(result),
	}
}

// challenges holds the outstanding challenge per source. Guarded by the
// service mutex.
type challenges struct {
	provider CaptchaProvider
	pending  map[string]Challenge
}

func newChallenges(provider CaptchaProvider) *challenges {
	return &challenges{
		provider: provider,
		pending:  make(map[string]Challenge, 16),
	}
}

// issue replaces the outstanding challenge for sourceID.
func (c *challenges) issue(sourceID string) Challenge {
	ch := c.provider.NewChallenge()
	c.pending[sourceID] = ch

	return ch
}

// verify consumes the outstanding challenge for sourceID and reports
// whether answer solves it.
func (c *challenges) verify(sourceID, answer string) bool {
	ch, ok := c.pending[sourceID]
	if !ok {
		return false
	}

	delete(c.pending, sourceID)

	return strings.TrimSpace(answer) == ch.Answer
}

func (c *challenges) clear(sourceID string) {
	delete(c.pending, sourceID)
}
