package compliance

import (
	"context"

	"github.com/google/uuid"
)

// DefaultAccountValue is the placeholder portfolio value used when no provider can answer.
const DefaultAccountValue = 100000.0

// AccountValueProvider supplies the account value used by the position-size and leverage rules.
type AccountValueProvider interface {
	AccountValue(ctx context.Context, userID uuid.UUID) (float64, error)
}

// StaticAccountValue reports the same value for every user.
type StaticAccountValue float64

func (v StaticAccountValue) AccountValue(context.Context, uuid.UUID) (float64, error) {
	return float64(v), nil
}
