package deliver

import (
	"context"

	"go-mod.ewintr.nl/ytdigest/model"
	"golang.org/x/exp/slog"
)

// Dispatcher delivers a digest. A call is all or nothing, failures are
// returned as *model.DeliveryError.
type Dispatcher interface {
	Deliver(ctx context.Context, digest model.RunDigest) error
}

// LogDispatcher writes the digest to the log. Used when no mail server is
// configured.
type LogDispatcher struct {
	logger *slog.Logger
}

func NewLogDispatcher(logger *slog.Logger) *LogDispatcher {
	return &LogDispatcher{logger: logger}
}

func (l *LogDispatcher) Deliver(_ context.Context, digest model.RunDigest) error {
	text, err := RenderText(digest)
	if err != nil {
		return &model.DeliveryError{Err: err}
	}
	l.logger.Info("digest", slog.String("digest", digest.ID.String()), slog.Int("items", len(digest.Items)), slog.String("text", text))

	return nil
}
