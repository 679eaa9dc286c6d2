// Package credential caches per-market access tokens under an issuer that
// allows at most one reissue per rolling window.
package credential

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"autostock/internal/errs"
	"autostock/internal/models"
	"autostock/internal/storage"
)

// Issuer mints a new access token.
type Issuer interface {
	Issue(ctx context.Context) (token string, expiresAt time.Time, err error)
}

type Token struct {
	Value     string    `json:"token"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Health states.
const (
	StateValid      = "valid"
	StateRefreshDue = "refresh_due"
	StateExpired    = "expired"
	StateMissing    = "missing"
	StateDisabled   = "disabled"
	StateStatic     = "static"
)

type Health struct {
	State     string     `json:"state"`
	IssuedAt  *time.Time `json:"issued_at,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	LastError string     `json:"last_error,omitempty"`
}

type issuedAtRecord struct {
	IssuedAt time.Time `json:"issued_at"`
}

type Manager struct {
	Market    string
	Issuer    Issuer
	Store     storage.Store
	Logger    *zap.Logger
	Threshold time.Duration
	Window    time.Duration
	Now       func() time.Time

	mu         sync.Mutex
	cred       *models.Credential
	lastIssued time.Time
	loadErr    error
	issueErr   error
}

func NewManager(market string, issuer Issuer, store storage.Store, threshold, window time.Duration, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if threshold <= 0 {
		threshold = 5 * time.Hour
	}
	if window <= 0 {
		window = 24 * time.Hour
	}
	return &Manager{
		Market:    market,
		Issuer:    issuer,
		Store:     store,
		Logger:    logger,
		Threshold: threshold,
		Window:    window,
		Now:       time.Now,
	}
}

func (m *Manager) tokenKey() string    { return "credential/" + m.Market + "/token" }
func (m *Manager) issuedAtKey() string { return "credential/" + m.Market + "/issued_at" }

// Load restores the cached token and the last issuance timestamp.
func (m *Manager) Load(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cred = nil
	m.lastIssued = time.Time{}
	m.loadErr = nil

	if data, err := m.Store.Load(ctx, m.tokenKey()); err == nil {
		var c models.Credential
		if err := json.Unmarshal(data, &c); err != nil {
			m.loadErr = fmt.Errorf("decode token: %v: %w", err, errs.ErrPersistence)
		} else if c.Token != "" {
			m.cred = &c
		}
	} else if !errors.Is(err, storage.ErrNotFound) {
		m.loadErr = err
	}

	if data, err := m.Store.Load(ctx, m.issuedAtKey()); err == nil {
		var rec issuedAtRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			m.loadErr = fmt.Errorf("decode issued_at: %v: %w", err, errs.ErrPersistence)
		} else {
			m.lastIssued = rec.IssuedAt
		}
	} else if !errors.Is(err, storage.ErrNotFound) {
		m.loadErr = err
	}

	if m.loadErr != nil {
		m.Logger.Error("credential cache unreadable", zap.Error(m.loadErr))
		return m.loadErr
	}
	return nil
}

// CanReissue reports whether the issuer may be asked for a new token now.
// Reissue is allowed once the window has passed since the last issuance, when
// the cached token is expired or inside the refresh threshold, or when
// forceIfMissing is set and no token is cached. Internal errors yield false.
func (m *Manager) CanReissue(ctx context.Context, forceIfMissing bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.canReissueLocked(ctx, forceIfMissing)
}

func (m *Manager) canReissueLocked(ctx context.Context, forceIfMissing bool) bool {
	if m.loadErr != nil {
		return false
	}
	now := m.Now()
	if m.lastIssued.IsZero() || !now.Before(m.lastIssued.Add(m.Window)) {
		return true
	}
	if m.cred != nil {
		remaining := m.cred.ExpiresAt.Sub(now)
		if remaining <= 0 || remaining <= m.Threshold {
			return true
		}
		return false
	}
	if forceIfMissing {
		if err := m.Store.Delete(ctx, m.issuedAtKey()); err != nil {
			m.Logger.Error("clear issuance timestamp failed", zap.Error(err))
			return false
		}
		m.lastIssued = time.Time{}
		m.Logger.Warn("reissue override: no cached token, issuance timestamp cleared")
		return true
	}
	return false
}

// GetValidToken returns the cached token while its remaining lifetime exceeds
// the threshold, otherwise reissues. Failures wrap errs.ErrAuth.
func (m *Manager) GetValidToken(ctx context.Context, forceRefresh bool) (Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.Now()
	if !forceRefresh && m.usableLocked(now) {
		return m.tokenLocked(), nil
	}
	if !m.canReissueLocked(ctx, forceRefresh) {
		if m.cred != nil && m.cred.ExpiresAt.After(now) {
			m.Logger.Warn("reissue refused inside window, keeping cached token",
				zap.Time("expires_at", m.cred.ExpiresAt))
			return m.tokenLocked(), nil
		}
		if m.loadErr != nil {
			return Token{}, fmt.Errorf("credential cache unreadable: %v: %w", m.loadErr, errs.ErrAuth)
		}
		return Token{}, fmt.Errorf("reissue refused until %s: %w",
			m.lastIssued.Add(m.Window).Format(time.RFC3339), errs.ErrAuth)
	}
	if m.Issuer == nil {
		return Token{}, fmt.Errorf("no issuer for %s: %w", m.Market, errs.ErrAuth)
	}

	value, expiresAt, err := m.Issuer.Issue(ctx)
	if err != nil {
		m.issueErr = err
		m.Logger.Error("token issue failed", zap.Error(err))
		if errors.Is(err, errs.ErrAuth) {
			return Token{}, err
		}
		return Token{}, fmt.Errorf("issue token: %v: %w", err, errs.ErrAuth)
	}
	m.issueErr = nil
	m.cred = &models.Credential{Market: m.Market, Token: value, IssuedAt: now, ExpiresAt: expiresAt}
	m.lastIssued = now
	if err := m.persistLocked(ctx); err != nil {
		m.Logger.Error("credential cache write failed", zap.Error(err))
	}
	m.Logger.Info("token issued", zap.Time("expires_at", expiresAt))
	return m.tokenLocked(), nil
}

// AccessToken adapts the manager to clients that only need the bearer value.
func (m *Manager) AccessToken(ctx context.Context) (string, error) {
	tok, err := m.GetValidToken(ctx, false)
	if err != nil {
		return "", err
	}
	return tok.Value, nil
}

// Invalidate drops the cached token and the issuance timestamp together, and
// forgets any earlier cache or issue failure so the next call may reissue.
func (m *Manager) Invalidate(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cred = nil
	m.lastIssued = time.Time{}
	m.loadErr = nil
	m.issueErr = nil
	var firstErr error
	for _, key := range []string{m.tokenKey(), m.issuedAtKey()} {
		if err := m.Store.Delete(ctx, key); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	m.Logger.Info("credential invalidated")
	return firstErr
}

func (m *Manager) Health() Health {
	m.mu.Lock()
	defer m.mu.Unlock()

	h := Health{}
	if !m.lastIssued.IsZero() {
		t := m.lastIssued
		h.IssuedAt = &t
	}
	now := m.Now()
	switch {
	case m.loadErr != nil:
		h.State = StateDisabled
		h.LastError = m.loadErr.Error()
		return h
	case m.cred == nil:
		h.State = StateMissing
	default:
		exp := m.cred.ExpiresAt
		h.ExpiresAt = &exp
		remaining := exp.Sub(now)
		switch {
		case remaining <= 0:
			h.State = StateExpired
		case remaining <= m.Threshold:
			h.State = StateRefreshDue
		default:
			h.State = StateValid
		}
	}
	if m.issueErr != nil {
		h.LastError = m.issueErr.Error()
		if h.State != StateValid && h.State != StateRefreshDue {
			h.State = StateDisabled
		}
	}
	return h
}

func (m *Manager) usableLocked(now time.Time) bool {
	return m.cred != nil && m.cred.ExpiresAt.Sub(now) > m.Threshold
}

func (m *Manager) tokenLocked() Token {
	return Token{Value: m.cred.Token, IssuedAt: m.cred.IssuedAt, ExpiresAt: m.cred.ExpiresAt}
}

func (m *Manager) persistLocked(ctx context.Context) error {
	tok, err := json.Marshal(m.cred)
	if err != nil {
		return err
	}
	ts, err := json.Marshal(issuedAtRecord{IssuedAt: m.lastIssued})
	if err != nil {
		return err
	}
	if err := m.Store.Save(ctx, m.tokenKey(), tok); err != nil {
		return err
	}
	return m.Store.Save(ctx, m.issuedAtKey(), ts)
}
