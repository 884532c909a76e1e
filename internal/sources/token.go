package sources

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/spf13/cast"
	"go.uber.org/zap"

	"github.com/ObiAU/otprelay/internal/models"
)

// TokenFetcher reads panels that expose a JSON stats endpoint guarded by a
// token query parameter.
type TokenFetcher struct {
	client  *http.Client
	records int
}

// TokenResponse is kept loose so that an unexpected shape reads as "no data"
// instead of a decode error.
type TokenResponse struct {
	Status interface{} `json:"status"`
	Data   interface{} `json:"data"`
}

func NewTokenFetcher(client *http.Client, records int) *TokenFetcher {
	return &TokenFetcher{
		client:  client,
		records: records,
	}
}

func (f *TokenFetcher) Fetch(ctx context.Context, panel models.Panel) ([]models.Message, error) {
	return f.fetchPath(ctx, panel, panel.SMSPath)
}

func (f *TokenFetcher) fetchPath(ctx context.Context, panel models.Panel, path string) ([]models.Message, error) {
	u, err := resolveURL(panel.BaseURL, path)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("token", panel.Credentials.Token)
	q.Set("records", strconv.Itoa(f.records))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", u.String(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("panel %s returned status %d", panel.Name, resp.StatusCode)
	}

	if !strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		zap.L().Debug("token panel returned non-json body", zap.String("panel", panel.ID),
			zap.String("content_type", resp.Header.Get("Content-Type")))
		return nil, nil
	}

	// Numeric dt/num values decode as float64, which cast prints without exponent.
	var apiResp TokenResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("panel %s: malformed response: %w", panel.Name, err)
	}

	if status := cast.ToString(apiResp.Status); status != "success" {
		zap.L().Debug("token panel reported no data", zap.String("panel", panel.ID), zap.String("status", status))
		return nil, nil
	}
	rows, ok := apiResp.Data.([]interface{})
	if !ok {
		return nil, nil
	}

	messages := make([]models.Message, 0, len(rows))
	for _, row := range rows {
		record, ok := row.(map[string]interface{})
		if !ok {
			continue
		}
		text := strings.TrimSpace(cast.ToString(record["message"]))
		if text == "" {
			continue
		}
		messages = append(messages, models.Message{
			SourceID:     panel.ID,
			RawText:      text,
			Timestamp:    cast.ToString(record["dt"]),
			SenderNumber: cast.ToString(record["num"]),
		})
	}

	return messages, nil
}
