package kis

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"autostock/internal/errs"
)

// Issuer mints access tokens from /oauth2/tokenP. Tokens live about 24h.
type Issuer struct {
	Client *Client
}

func (i Issuer) Issue(ctx context.Context) (string, time.Time, error) {
	c := i.Client
	resp, err := c.do(ctx, callOpts{
		method: http.MethodPost,
		path:   "/oauth2/tokenP",
		payload: map[string]string{
			"grant_type": "client_credentials",
			"appkey":     c.appKey,
			"appsecret":  c.appSecret,
		},
	})
	if err != nil {
		return "", time.Time{}, fmt.Errorf("issue token: %v: %w", err, errs.ErrAuth)
	}
	var tr tokenResponse
	if err := json.Unmarshal(resp.body, &tr); err != nil {
		return "", time.Time{}, fmt.Errorf("decode token: %v: %w", err, errs.ErrAuth)
	}
	if tr.AccessToken == "" {
		return "", time.Time{}, fmt.Errorf("empty access token: %w", errs.ErrAuth)
	}
	return tr.AccessToken, tokenExpiry(tr, c.Now()), nil
}

var seoul = func() *time.Location {
	loc, err := time.LoadLocation("Asia/Seoul")
	if err != nil {
		return time.FixedZone("KST", 9*3600)
	}
	return loc
}()

func tokenExpiry(tr tokenResponse, now time.Time) time.Time {
	if tr.ExpiresIn > 0 {
		return now.Add(time.Duration(tr.ExpiresIn) * time.Second)
	}
	if t, err := time.ParseInLocation("2006-01-02 15:04:05", tr.ExpiredAt, seoul); err == nil {
		return t
	}
	return now.Add(24 * time.Hour)
}
