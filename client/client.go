// Package client is the HTTP implementation of session.Backend, speaking to
// the public respondent API. It owns the respondent token: minted by the
// server on first contact, replayed on every later call and cached locally
// so a restart keeps the same identity.
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/pkg/errors"

	"github.com/dtlabs/stepform/draft"
	"github.com/dtlabs/stepform/session"
	"github.com/dtlabs/stepform/survey"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrCompleted    = errors.New("response already completed")
	ErrUnauthorized = errors.New("unauthorized")
)

const (
	respondentHeader   = "X-Respondent-Token"
	respondentTokenKey = "respondent_token_v1"
)

type Client struct {
	base  string
	http  *http.Client
	cache *draft.Store

	mu    sync.Mutex
	token string
}

var _ session.Backend = (*Client)(nil)

// New returns a client rooted at base, e.g. "http://localhost:8080". The
// cache may be disabled; the token then lives only as long as the process.
func New(base string, cache *draft.Store) *Client {
	c := &Client{
		base:  base,
		http:  &http.Client{Timeout: 30 * time.Second},
		cache: cache,
	}
	var token string
	if cache.LoadJSON(respondentTokenKey, &token) {
		c.token = token
	}
	return c
}

func (c *Client) surveyURL(slug string, parts ...string) string {
	u := c.base + "/api/s/" + url.PathEscape(slug)
	for _, p := range parts {
		u += "/" + p
	}
	return u
}

func (c *Client) do(ctx context.Context, method, u string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "encode request")
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return errors.Wrap(err, "new request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.mu.Lock()
	if c.token != "" {
		req.Header.Set(respondentHeader, c.token)
	}
	c.mu.Unlock()

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode == http.StatusConflict:
		return ErrCompleted
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrUnauthorized
	case resp.StatusCode >= 400:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return errors.Errorf("%s %s: status %d: %s", method, u, resp.StatusCode, bytes.TrimSpace(msg))
	}

	if out == nil {
		return nil
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "read response")
	}
	return errors.Wrap(json.Unmarshal(data, out), "decode response")
}

func (c *Client) setToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
	c.cache.SaveJSON(respondentTokenKey, token)
}

func (c *Client) GetSurvey(ctx context.Context, slug string) (survey.Survey, error) {
	var body struct {
		Definition json.RawMessage `json:"definition"`
	}
	if err := c.do(ctx, http.MethodGet, c.surveyURL(slug), nil, &body); err != nil {
		return survey.Survey{}, err
	}
	return survey.Parse(body.Definition)
}

func (c *Client) EnsureResponse(ctx context.Context, slug string) (session.ResponseState, error) {
	var body struct {
		session.ResponseState
		RespondentToken string `json:"respondent_token"`
	}
	err := c.do(ctx, http.MethodPost, c.surveyURL(slug, "responses"), nil, &body)
	if err != nil {
		return session.ResponseState{}, err
	}
	if body.RespondentToken != "" {
		c.setToken(body.RespondentToken)
	}
	return body.ResponseState, nil
}

func (c *Client) GetResponse(ctx context.Context, slug string) (session.ResponseState, error) {
	var body struct {
		ID      string         `json:"id"`
		Answers map[string]any `json:"answers"`
		Status  string         `json:"status"`
	}
	err := c.do(ctx, http.MethodGet, c.surveyURL(slug, "responses", "self"), nil, &body)
	if err != nil {
		return session.ResponseState{}, err
	}
	return session.ResponseState{
		ResponseID: body.ID,
		Answers:    body.Answers,
		Status:     body.Status,
	}, nil
}

func (c *Client) SaveResponse(ctx context.Context, slug string, answers map[string]any, markCompleted bool) error {
	body := map[string]any{
		"answers":        answers,
		"mark_completed": markCompleted,
	}
	return c.do(ctx, http.MethodPut, c.surveyURL(slug, "responses", "self"), body, nil)
}

func (c *Client) AskQuestion(ctx context.Context, slug, fieldID, question string) (session.Question, error) {
	var q session.Question
	u := c.surveyURL(slug, "fields", url.PathEscape(fieldID), "questions")
	err := c.do(ctx, http.MethodPost, u, map[string]any{"question": question}, &q)
	return q, err
}

func (c *Client) ListQuestions(ctx context.Context, slug, fieldID string) ([]session.Question, error) {
	var body struct {
		Questions []session.Question `json:"questions"`
	}
	u := c.surveyURL(slug, "fields", url.PathEscape(fieldID), "questions")
	if err := c.do(ctx, http.MethodGet, u, nil, &body); err != nil {
		return nil, err
	}
	return body.Questions, nil
}

// String identifies the client target, mainly for logs.
func (c *Client) String() string {
	return fmt.Sprintf("stepform client (%s)", c.base)
}
