package process

import (
	"context"
	"errors"
	"strings"

	"go-mod.ewintr.nl/ytdigest/model"
	"golang.org/x/exp/slog"
)

// Item carries a video through the processing steps. Each step fills in its
// own fields.
type Item struct {
	model.VideoRef
	Description string
	Duration    string
	Transcript  string
	Summary     string

	done map[string]bool
}

func NewItem(video model.VideoRef) *Item {
	return &Item{
		VideoRef: video,
		done:     map[string]bool{},
	}
}

// Source is the text a summary is based on: the transcript when there is
// one, otherwise title and description.
func (i *Item) Source() string {
	if strings.TrimSpace(i.Transcript) != "" {
		return i.Transcript
	}
	return strings.TrimSpace(i.Title + "\n\n" + i.Description)
}

type VideoProcessor interface {
	Name() string
	Do(ctx context.Context, item *Item) error
}

// Processors holds the steps in the order they are applied. Nil steps are
// left out.
type Processors struct {
	procs []VideoProcessor
}

func NewProcessors(procs ...VideoProcessor) *Processors {
	p := &Processors{}
	for _, proc := range procs {
		if proc != nil {
			p.procs = append(p.procs, proc)
		}
	}
	return p
}

func (p *Processors) Next(item *Item) VideoProcessor {
	for _, proc := range p.procs {
		if !item.done[proc.Name()] {
			return proc
		}
	}

	return nil
}

// Worker runs all processors on a single video and returns the summary.
type Worker struct {
	procs  *Processors
	logger *slog.Logger
}

func NewWorker(processors *Processors, logger *slog.Logger) *Worker {
	return &Worker{
		procs:  processors,
		logger: logger,
	}
}

type Outcome struct {
	Summary       string
	HasTranscript bool
}

// Process fails with a *model.ProcessingError whose reason names the step
// that failed.
func (w *Worker) Process(ctx context.Context, video model.VideoRef) (Outcome, error) {
	item := NewItem(video)
	logger := w.logger.With(slog.String("video", string(video.ID)))
	for {
		next := w.procs.Next(item)
		if next == nil {
			break
		}

		logger.Debug("processing video", slog.String("processor", next.Name()))
		if err := next.Do(ctx, item); err != nil {
			reason := next.Name()
			if errors.Is(err, context.DeadlineExceeded) {
				reason = "timeout"
			}
			return Outcome{}, &model.ProcessingError{VideoID: video.ID, Reason: reason, Err: err}
		}
		item.done[next.Name()] = true
	}

	if strings.TrimSpace(item.Summary) == "" {
		return Outcome{}, &model.ProcessingError{VideoID: video.ID, Reason: "empty summary"}
	}
	logger.Info("processed video", slog.Bool("transcript", item.Transcript != ""))

	return Outcome{
		Summary:       strings.TrimSpace(item.Summary),
		HasTranscript: item.Transcript != "",
	}, nil
}
