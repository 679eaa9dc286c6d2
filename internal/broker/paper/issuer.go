package paper

import (
	"context"
	"fmt"
	"time"

	"autostock/internal/auth"
	"autostock/internal/errs"
)

// Issuer mints HS256 tokens for the simulated account so the credential
// lifecycle runs the same way it does against a real broker.
type Issuer struct {
	Market string
	JWT    auth.JWT
}

func (i Issuer) Issue(ctx context.Context) (string, time.Time, error) {
	tok, exp, err := i.JWT.Sign(auth.Claims{Market: i.Market, Role: "broker"})
	if err != nil {
		return "", time.Time{}, fmt.Errorf("paper token: %v: %w", err, errs.ErrAuth)
	}
	return tok, exp, nil
}
