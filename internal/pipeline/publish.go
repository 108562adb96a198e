package pipeline

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/fpang/catalog-post-automation/internal/approval"
	"github.com/fpang/catalog-post-automation/internal/catalog"
	"github.com/fpang/catalog-post-automation/internal/events"
	"github.com/fpang/catalog-post-automation/internal/publisher"
	"github.com/fpang/catalog-post-automation/internal/publishlog"
)

// PublishApproved publishes approved records until MaxPublishes posts went
// out. Records already in the publish log are never uploaded again.
func (r *Runner) PublishApproved(ctx context.Context) (*Report, error) {
	return r.run(ctx, "publish", func(ctx context.Context, logger zerolog.Logger, report *Report) error {
		approved, err := r.deps.Staging.ListApproved(ctx)
		if err != nil {
			return fmt.Errorf("read approvals: %w", err)
		}
		if len(approved) == 0 {
			logger.Info().Msg("Nothing approved")
			return nil
		}

		for _, rec := range approved {
			if report.Published >= r.opts.MaxPublishes {
				break
			}
			if err := r.publishOne(ctx, logger, report, rec); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *Runner) publishOne(ctx context.Context, logger zerolog.Logger, report *Report, rec approval.Record) error {
	already, err := r.deps.Log.IsPublished(ctx, rec.ProductID)
	if err != nil {
		return fmt.Errorf("read publish log: %w", err)
	}
	if already {
		logger.Warn().Str("productId", rec.ProductID).Msg("Approved record already published, closing it")
		report.Skipped++
		if err := r.deps.Staging.MarkPublished(ctx, rec.ProductID); err != nil {
			return fmt.Errorf("mark %s published: %w", rec.ProductID, err)
		}
		return nil
	}

	if err := rec.Validate(); err != nil {
		return r.recordFailure(ctx, logger, report, rec.ProductID, err)
	}

	post := publisher.Post{ID: rec.ProductID, Caption: rec.Caption, ImageURLs: rec.ImageURLs}
	if r.opts.HighRes {
		post.ImageURLs = make([]string, len(rec.ImageURLs))
		for i, u := range rec.ImageURLs {
			post.ImageURLs[i] = catalog.HighResURL(u)
		}
	}

	event := events.PostEvent{RunID: report.RunID, ProductID: rec.ProductID, Images: len(post.ImageURLs)}
	res, err := r.deps.Poster.Publish(ctx, post)
	if res != nil {
		event.ContainerID = res.ContainerID
	}
	if err != nil {
		event.Error = err.Error()
		r.notify(ctx, logger, r.deps.Notifier.PostFailed, event)
		return r.recordFailure(ctx, logger, report, rec.ProductID, err)
	}

	if err := r.deps.Log.RecordOutcome(ctx, rec.ProductID, publishlog.StatusPublished); err != nil {
		return fmt.Errorf("record published %s (media %s): %w", rec.ProductID, res.MediaID, err)
	}
	if err := r.deps.Staging.MarkPublished(ctx, rec.ProductID); err != nil {
		return fmt.Errorf("mark %s published: %w", rec.ProductID, err)
	}
	report.Published++

	event.MediaID = res.MediaID
	r.notify(ctx, logger, r.deps.Notifier.PostPublished, event)
	return nil
}

// notify emits an event. Notification failures never fail the run.
func (r *Runner) notify(ctx context.Context, logger zerolog.Logger, send func(context.Context, events.PostEvent) error, e events.PostEvent) {
	e.Timestamp = r.opts.Now().UTC()
	if err := send(ctx, e); err != nil {
		logger.Warn().Err(err).Str("productId", e.ProductID).Msg("Event not delivered")
	}
}
