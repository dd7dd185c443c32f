package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go-mod.ewintr.nl/ytdigest/model"
	"golang.org/x/exp/slog"
)

type Runner interface {
	RunOnce(ctx context.Context, now time.Time) (model.RunReport, error)
	LastReport() (model.RunReport, bool)
}

type RunAPI struct {
	runner Runner
	logger *slog.Logger
}

func NewRunAPI(runner Runner, logger *slog.Logger) *RunAPI {
	return &RunAPI{
		runner: runner,
		logger: logger,
	}
}

func (a *RunAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	head, _ := ShiftPath(r.URL.Path)

	switch {
	case head != "":
		Error(w, http.StatusNotFound, "not found", fmt.Errorf("subpath %q was not registered in the run api", head))
	case r.Method == http.MethodGet:
		a.Last(w)
	case r.Method == http.MethodPost:
		a.Trigger(w, r)
	default:
		Error(w, http.StatusMethodNotAllowed, "method not allowed", fmt.Errorf("method %s is not supported", r.Method))
	}
}

func (a *RunAPI) Last(w http.ResponseWriter) {
	report, ok := a.runner.LastReport()
	if !ok {
		Error(w, http.StatusNotFound, "no run yet", errors.New("no run was completed since start"))
		return
	}

	JSON(w, http.StatusOK, report)
}

// Trigger runs synchronously. The run is not cancelled when the client goes
// away.
func (a *RunAPI) Trigger(w http.ResponseWriter, r *http.Request) {
	report, err := a.runner.RunOnce(context.WithoutCancel(r.Context()), time.Now())
	if err != nil {
		status := http.StatusInternalServerError
		var csErr *model.ChannelSourceError
		if errors.As(err, &csErr) {
			status = http.StatusBadGateway
		}
		a.logger.Error("triggered run failed", slog.String("err", err.Error()))
		Error(w, status, "run failed", err, report)
		return
	}

	JSON(w, http.StatusOK, report)
}
