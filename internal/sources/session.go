package sources

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"

	"github.com/ObiAU/otprelay/internal/models"
)

// SessionCache keeps one logged-in HTTP client per panel id. Sessions live
// until invalidated, either explicitly or when a panel answers 401/403.
type SessionCache struct {
	mu       sync.Mutex
	base     *http.Client
	sessions map[string]*http.Client
}

func NewSessionCache(base *http.Client) *SessionCache {
	return &SessionCache{
		base:     base,
		sessions: make(map[string]*http.Client),
	}
}

// Get returns the cached session for the panel, logging in when there is none.
func (c *SessionCache) Get(ctx context.Context, panel models.Panel) (*http.Client, error) {
	c.mu.Lock()
	client, ok := c.sessions[panel.ID]
	c.mu.Unlock()
	if ok {
		return client, nil
	}

	client, err := c.login(ctx, panel)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.sessions[panel.ID]; ok {
		return existing, nil
	}
	c.sessions[panel.ID] = client
	zap.L().Info("panel session established", zap.String("panel", panel.ID), zap.String("name", panel.Name))
	return client, nil
}

func (c *SessionCache) Invalidate(panelID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.sessions[panelID]
	delete(c.sessions, panelID)
	return ok
}

// InvalidateAll drops every session and returns how many there were.
func (c *SessionCache) InvalidateAll() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.sessions)
	c.sessions = make(map[string]*http.Client)
	return n
}

func (c *SessionCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sessions)
}

func (c *SessionCache) login(ctx context.Context, panel models.Panel) (*http.Client, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}
	client := &http.Client{
		Timeout:   c.base.Timeout,
		Transport: c.base.Transport,
		Jar:       jar,
	}

	u, err := resolveURL(panel.BaseURL, panel.LoginPath)
	if err != nil {
		return nil, err
	}

	userField, userValue := "username", panel.Credentials.Username
	if panel.LoginStrategy == models.LoginEmail {
		userField, userValue = "email", panel.Credentials.Email
	}
	if panel.UserField != "" {
		userField = panel.UserField
	}
	passField := "password"
	if panel.PassField != "" {
		passField = panel.PassField
	}

	form := url.Values{}
	form.Set(userField, userValue)
	form.Set(passField, panel.Credentials.Password)

	req, err := http.NewRequestWithContext(ctx, "POST", u.String(), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("panel %s login: %w", panel.Name, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("panel %s login returned status %d", panel.Name, resp.StatusCode)
	}
	return client, nil
}

// SessionFetcher reads panels that require a logged-in session and serve
// HTML or plain text.
type SessionFetcher struct {
	sessions *SessionCache
}

func NewSessionFetcher(sessions *SessionCache) *SessionFetcher {
	return &SessionFetcher{sessions: sessions}
}

func (f *SessionFetcher) Fetch(ctx context.Context, panel models.Panel) ([]models.Message, error) {
	return f.fetchPath(ctx, panel, panel.SMSPath)
}

func (f *SessionFetcher) fetchPath(ctx context.Context, panel models.Panel, path string) ([]models.Message, error) {
	client, err := f.sessions.Get(ctx, panel)
	if err != nil {
		return nil, err
	}

	u, err := resolveURL(panel.BaseURL, path)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "GET", u.String(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		f.sessions.Invalidate(panel.ID)
		return nil, fmt.Errorf("panel %s session rejected with status %d", panel.Name, resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("panel %s returned status %d", panel.Name, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}

	var texts []string
	if isHTML(resp.Header.Get("Content-Type"), body) {
		texts, err = extractParagraphs(body)
		if err != nil {
			return nil, fmt.Errorf("panel %s: %w", panel.Name, err)
		}
	} else if text := strings.TrimSpace(string(body)); text != "" {
		texts = []string{text}
	}

	messages := make([]models.Message, 0, len(texts))
	for _, text := range texts {
		messages = append(messages, models.Message{
			SourceID: panel.ID,
			RawText:  text,
		})
	}
	return messages, nil
}
