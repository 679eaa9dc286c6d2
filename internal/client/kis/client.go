// Package kis talks to the Korea Investment & Securities open API for the
// domestic (KRX) market.
package kis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"autostock/internal/config"
	"autostock/internal/errs"
)

const (
	PaperHost = "https://openapivts.koreainvestment.com:29443"
	RealHost  = "https://openapi.koreainvestment.com:9443"
)

// TokenSource hands out the current bearer token.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// tokenInvalidator is implemented by token sources that can drop a token the
// gateway has revoked so the next AccessToken reissues.
type tokenInvalidator interface {
	Invalidate(ctx context.Context) error
}

type Client struct {
	host       string
	httpClient *http.Client
	appKey     string
	appSecret  string
	cano       string
	prdt       string
	paper      bool

	Tokens TokenSource
	Now    func() time.Time

	mu   sync.Mutex
	orgs map[string]string // order no -> forwarding org no, needed to cancel
}

type APIError struct {
	Status  int
	Code    string
	Message string
	Body    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("kis API error (%d %s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("kis API error (%d): %s", e.Status, e.Body)
}

// Unwrap classifies token failures as errs.ErrAuth.
func (e *APIError) Unwrap() error {
	if e.Status == http.StatusUnauthorized || strings.HasPrefix(e.Code, "EGW0012") {
		return errs.ErrAuth
	}
	return nil
}

func NewClient(httpClient *http.Client, cfg config.KISConfig) (*Client, error) {
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	host := cfg.BaseURL
	if host == "" {
		host = RealHost
		if cfg.Paper {
			host = PaperHost
		}
	}
	cano, prdt, ok := strings.Cut(cfg.Account, "-")
	if !ok || len(cano) != 8 || len(prdt) != 2 {
		return nil, fmt.Errorf("kis account %q must look like 12345678-01: %w", cfg.Account, errs.ErrConfig)
	}
	return &Client{
		host:       strings.TrimRight(host, "/"),
		httpClient: httpClient,
		appKey:     cfg.AppKey,
		appSecret:  cfg.AppSecret,
		cano:       cano,
		prdt:       prdt,
		paper:      cfg.Paper,
		Now:        time.Now,
		orgs:       map[string]string{},
	}, nil
}

// trID swaps the real-account prefix for the paper one when needed.
func (c *Client) trID(real string) string {
	if c.paper && strings.HasPrefix(real, "T") {
		return "V" + real[1:]
	}
	return real
}

type envelope struct {
	RtCd  string `json:"rt_cd"`
	MsgCd string `json:"msg_cd"`
	Msg1  string `json:"msg1"`
}

type callOpts struct {
	method  string
	path    string
	trID    string
	trCont  string
	query   url.Values
	payload any
}

type response struct {
	body   []byte
	trCont string
}

// do sends one call. A token-bearing call rejected as unauthorized drops the
// cached token and is retried once with a fresh one.
func (c *Client) do(ctx context.Context, o callOpts) (response, error) {
	resp, err := c.send(ctx, o)
	var apiErr *APIError
	if err == nil || o.trID == "" || !errors.As(err, &apiErr) || !isAuth(apiErr) {
		return resp, err
	}
	inv, ok := c.Tokens.(tokenInvalidator)
	if !ok {
		return resp, err
	}
	if ierr := inv.Invalidate(ctx); ierr != nil {
		return resp, fmt.Errorf("%w (invalidate: %v)", err, ierr)
	}
	return c.send(ctx, o)
}

func (c *Client) send(ctx context.Context, o callOpts) (response, error) {
	fullURL := c.host + o.path
	if len(o.query) > 0 {
		fullURL += "?" + o.query.Encode()
	}
	var body io.Reader
	if o.payload != nil {
		raw, err := json.Marshal(o.payload)
		if err != nil {
			return response{}, err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, o.method, fullURL, body)
	if err != nil {
		return response{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Accept", "application/json")
	if o.trID != "" {
		if c.Tokens == nil {
			return response{}, fmt.Errorf("no token source: %w", errs.ErrAuth)
		}
		tok, err := c.Tokens.AccessToken(ctx)
		if err != nil {
			return response{}, err
		}
		req.Header.Set("authorization", "Bearer "+tok)
		req.Header.Set("appkey", c.appKey)
		req.Header.Set("appsecret", c.appSecret)
		req.Header.Set("tr_id", o.trID)
		req.Header.Set("custtype", "P")
		if o.trCont != "" {
			req.Header.Set("tr_cont", o.trCont)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return response{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return response{}, fmt.Errorf("failed to read response: %w", err)
	}
	var env envelope
	_ = json.Unmarshal(raw, &env)
	if resp.StatusCode != http.StatusOK {
		return response{}, &APIError{Status: resp.StatusCode, Code: env.MsgCd, Message: env.Msg1, Body: string(raw)}
	}
	if o.trID != "" && env.RtCd != "0" {
		return response{}, &APIError{Status: resp.StatusCode, Code: env.MsgCd, Message: env.Msg1, Body: string(raw)}
	}
	return response{body: raw, trCont: resp.Header.Get("tr_cont")}, nil
}

func isAuth(err error) bool { return errors.Is(err, errs.ErrAuth) }

func (c *Client) rememberOrg(orderNo, orgNo string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.orgs[orderNo] = orgNo
}

func (c *Client) orgOf(orderNo string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.orgs[orderNo]
}

func (c *Client) forgetOrg(orderNo string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.orgs, orderNo)
}
