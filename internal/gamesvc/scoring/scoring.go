// Package scoring computes the points awarded for a correct answer.
package scoring

import (
	"github.com/avvvet/quiz-services/internal/gamesvc/models"
	"github.com/shopspring/decimal"
)

var (
	baseMultiplier    = decimal.RequireFromString("0.7")
	speedWeight       = decimal.RequireFromString("0.6")
	instantMultiplier = decimal.RequireFromString("1.3")
	one               = decimal.NewFromInt(1)
)

// Multiplier returns the speed bonus for an answer given after elapsed seconds.
// A nil elapsed counts as instantaneous. Only the upper bound of the speed ratio is
// clamped, so answers later than the time limit fall below 0.7.
func Multiplier(timeLimit int, elapsed *float64) decimal.Decimal {
	if elapsed == nil || timeLimit <= 0 {
		return instantMultiplier
	}
	limit := decimal.NewFromInt(int64(timeLimit))
	ratio := limit.Sub(decimal.NewFromFloat(*elapsed)).Div(limit)
	return baseMultiplier.Add(speedWeight.Mul(decimal.Min(ratio, one)))
}

// Score returns round(points x multiplier), never below zero. Callers invoke it for correct answers only.
func Score(q models.Question, elapsed *float64) int {
	award := decimal.NewFromInt(int64(q.Points)).Mul(Multiplier(q.TimeLimit, elapsed)).Round(0)
	if award.IsNegative() {
		return 0
	}
	return int(award.IntPart())
}
