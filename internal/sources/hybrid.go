package sources

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ObiAU/otprelay/internal/models"
)

type FetchFunc func(ctx context.Context) ([]models.Message, error)

// Hybrid runs primary and, only if it fails, fallback. A primary failure is
// not reported when the fallback succeeds.
func Hybrid(ctx context.Context, primary, fallback FetchFunc) ([]models.Message, error) {
	msgs, err := primary(ctx)
	if err == nil {
		return msgs, nil
	}
	zap.L().Debug("primary fetch failed, trying fallback", zap.Error(err))

	msgs, fallbackErr := fallback(ctx)
	if fallbackErr != nil {
		return nil, fmt.Errorf("sms fetch: %v; call fetch: %w", err, fallbackErr)
	}
	return msgs, nil
}
