package sources

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/ObiAU/otprelay/internal/models"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const maxBodyBytes = 4 << 20

// Fetcher returns the latest raw messages a panel exposes.
type Fetcher interface {
	Fetch(ctx context.Context, panel models.Panel) ([]models.Message, error)
}

type pathFetcher interface {
	fetchPath(ctx context.Context, panel models.Panel, path string) ([]models.Message, error)
}

func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
	}
}

// Dispatcher selects the fetch strategy from the panel's login strategy and
// mode. Panels in "both" mode try SMS first and fall back to calls.
type Dispatcher struct {
	token   *TokenFetcher
	session *SessionFetcher
}

func NewDispatcher(client *http.Client, sessions *SessionCache, records int) *Dispatcher {
	return &Dispatcher{
		token:   NewTokenFetcher(client, records),
		session: NewSessionFetcher(sessions),
	}
}

func (d *Dispatcher) Fetch(ctx context.Context, panel models.Panel) ([]models.Message, error) {
	var pf pathFetcher
	switch panel.LoginStrategy {
	case models.LoginToken:
		pf = d.token
	case models.LoginUsername, models.LoginEmail:
		pf = d.session
	default:
		return nil, fmt.Errorf("panel %s: unsupported login strategy %q", panel.ID, panel.LoginStrategy)
	}

	switch panel.Mode {
	case models.ModeSMS:
		return pf.fetchPath(ctx, panel, panel.SMSPath)
	case models.ModeCall:
		return pf.fetchPath(ctx, panel, panel.CallPath)
	case models.ModeBoth:
		return Hybrid(ctx,
			func(ctx context.Context) ([]models.Message, error) {
				return pf.fetchPath(ctx, panel, panel.SMSPath)
			},
			func(ctx context.Context) ([]models.Message, error) {
				return pf.fetchPath(ctx, panel, panel.CallPath)
			},
		)
	default:
		return nil, fmt.Errorf("panel %s: unsupported mode %q", panel.ID, panel.Mode)
	}
}

// resolveURL resolves path against the panel's base URL; absolute paths win.
func resolveURL(baseURL, path string) (*url.URL, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if path == "" {
		return base, nil
	}
	ref, err := url.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint %q: %w", path, err)
	}
	return base.ResolveReference(ref), nil
}
