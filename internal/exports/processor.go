package exports

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"classdesk/internal/metrics"
	"classdesk/internal/queue"
	"classdesk/internal/report"
)

// Jobs is the subset of Repository the processor needs.
type Jobs interface {
	Get(ctx context.Context, id string) (Export, error)
	MarkDone(ctx context.Context, id, url string) error
	MarkFailed(ctx context.Context, id, reason string) error
}

// Uploader stores a rendered file and returns its public URL.
type Uploader interface {
	UploadFile(ctx context.Context, data []byte, filename string) (string, error)
}

// Processor turns pending exports into uploaded spreadsheets.
type Processor struct {
	jobs     Jobs
	uploader Uploader
	log      *zap.Logger
}

// NewProcessor wires a processor.
func NewProcessor(jobs Jobs, uploader Uploader, log *zap.Logger) *Processor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Processor{jobs: jobs, uploader: uploader, log: log}
}

// Process renders and uploads export id. Failures after the job is loaded
// are recorded on the job and also returned.
func (p *Processor) Process(ctx context.Context, id string) error {
	exp, err := p.jobs.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("load export %s: %w", id, err)
	}
	if exp.Status != StatusPending {
		p.log.Info("export already processed", zap.String("export", id), zap.String("status", string(exp.Status)))
		return nil
	}

	name := report.FileName(exp.ClassLabel, exp.Date)
	data, err := report.Build(exp.Report, report.Meta{ClassLabel: exp.ClassLabel, Date: exp.Date})
	if err != nil {
		return p.fail(ctx, id, err)
	}
	if p.uploader == nil {
		return p.fail(ctx, id, fmt.Errorf("file storage not configured"))
	}
	url, err := p.uploader.UploadFile(ctx, data, name)
	if err != nil {
		return p.fail(ctx, id, err)
	}
	if err := p.jobs.MarkDone(ctx, id, url); err != nil {
		return fmt.Errorf("mark export %s done: %w", id, err)
	}
	metrics.Exports.WithLabelValues("async", "ok").Inc()
	p.log.Info("export uploaded", zap.String("export", id), zap.String("file", name), zap.Int("bytes", len(data)))
	return nil
}

func (p *Processor) fail(ctx context.Context, id string, cause error) error {
	metrics.Exports.WithLabelValues("async", "error").Inc()
	p.log.Error("export failed", zap.String("export", id), zap.Error(cause))
	if err := p.jobs.MarkFailed(ctx, id, cause.Error()); err != nil {
		p.log.Error("mark export failed", zap.String("export", id), zap.Error(err))
	}
	return cause
}

// Run feeds export messages from q to p until ctx is done or the queue
// closes. A failed job does not stop the loop.
func Run(ctx context.Context, q queue.Queue, p *Processor, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	messages, err := q.Consume(ctx)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}
	for msg := range messages {
		if msg.Type != queue.TypeExport {
			log.Debug("skipping message", zap.String("type", msg.Type))
			continue
		}
		id := string(msg.Body)
		log.Info("processing export", zap.String("export", id))
		if err := p.Process(ctx, id); err != nil {
			log.Warn("export not produced", zap.String("export", id), zap.Error(err))
		}
	}
	return ctx.Err()
}
