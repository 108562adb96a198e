// Package publisher drives the container upload protocol for one post:
// create containers, wait for each to become ready, then publish.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/fpang/catalog-post-automation/internal/instagram"
)

var (
	// ErrUploadFailure wraps any failed create or publish call, including
	// responses without a usable id.
	ErrUploadFailure = errors.New("upload failure")

	// ErrReadinessTimeout means a container never reported FINISHED within
	// the poll bound. Publish is not attempted.
	ErrReadinessTimeout = errors.New("readiness timeout")

	// ErrContainerFailed means Instagram reported ERROR or EXPIRED.
	ErrContainerFailed = errors.New("container processing failed")

	// ErrNoImages is returned for a post without image URLs.
	ErrNoImages = errors.New("post has no images")
)

// Graph is the subset of the Graph API client the publisher needs.
type Graph interface {
	CreateImageContainer(ctx context.Context, imageURL, caption string, isCarouselItem bool) (string, error)
	CreateCarouselContainer(ctx context.Context, children []string, caption string) (string, error)
	ContainerStatus(ctx context.Context, containerID string) (string, error)
	Publish(ctx context.Context, containerID string) (string, error)
}

var _ Graph = (*instagram.Client)(nil)

// PollPolicy bounds the readiness wait.
type PollPolicy struct {
	Interval    time.Duration
	MaxAttempts int
}

// DefaultPollPolicy polls every 2 seconds, at most 10 times.
var DefaultPollPolicy = PollPolicy{Interval: 2 * time.Second, MaxAttempts: 10}

// State is the lifecycle of a post upload.
type State string

const (
	StateCreated   State = "created"
	StatePending   State = "pending"
	StateReady     State = "ready"
	StatePublished State = "published"
	StateFailed    State = "failed"
)

// Post is what gets published.
type Post struct {
	ID        string
	Caption   string
	ImageURLs []string
}

// Result describes a publish attempt. On failure it still reports how far
// the upload got.
type Result struct {
	State       State
	ContainerID string
	ChildIDs    []string
	MediaID     string
}

// Publisher uploads posts through a Graph client.
type Publisher struct {
	graph   Graph
	poll    PollPolicy
	limiter *rate.Limiter
	sleep   func(context.Context, time.Duration) error
}

// Option customizes a Publisher.
type Option func(*Publisher)

// WithPollPolicy overrides the readiness poll bound.
func WithPollPolicy(p PollPolicy) Option {
	return func(pub *Publisher) {
		if p.MaxAttempts > 0 {
			pub.poll = p
		}
	}
}

// WithChildPause sets the minimum gap between carousel child uploads.
// Zero disables the pause.
func WithChildPause(d time.Duration) Option {
	return func(pub *Publisher) {
		if d <= 0 {
			pub.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		pub.limiter = rate.NewLimiter(rate.Every(d), 1)
	}
}

// New creates a Publisher with a 1 second pause between carousel children.
func New(graph Graph, opts ...Option) *Publisher {
	p := &Publisher{
		graph:   graph,
		poll:    DefaultPollPolicy,
		limiter: rate.NewLimiter(rate.Every(time.Second), 1),
		sleep:   sleepCtx,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Publish uploads post as a single image or a carousel and publishes it.
// A post counts as published only when the final publish call returned a
// media id.
func (p *Publisher) Publish(ctx context.Context, post Post) (*Result, error) {
	res := &Result{State: StateFailed}
	switch n := len(post.ImageURLs); {
	case n == 0:
		return res, ErrNoImages
	case n > instagram.MaxCarouselItems:
		return res, fmt.Errorf("%d images exceed the carousel limit of %d", n, instagram.MaxCarouselItems)
	}

	logger := log.With().Str("productId", post.ID).Int("images", len(post.ImageURLs)).Logger()

	var err error
	if len(post.ImageURLs) == 1 {
		res.ContainerID, err = p.graph.CreateImageContainer(ctx, post.ImageURLs[0], post.Caption, false)
		if err != nil {
			return res, fmt.Errorf("%w: %w", ErrUploadFailure, err)
		}
	} else {
		for i, u := range post.ImageURLs {
			if err := p.limiter.Wait(ctx); err != nil {
				return res, err
			}
			childID, err := p.graph.CreateImageContainer(ctx, u, "", true)
			if err != nil {
				return res, fmt.Errorf("%w: child %d: %w", ErrUploadFailure, i+1, err)
			}
			res.ChildIDs = append(res.ChildIDs, childID)
			if err := p.waitReady(ctx, childID); err != nil {
				return res, fmt.Errorf("child %d: %w", i+1, err)
			}
		}
		res.ContainerID, err = p.graph.CreateCarouselContainer(ctx, res.ChildIDs, post.Caption)
		if err != nil {
			return res, fmt.Errorf("%w: carousel: %w", ErrUploadFailure, err)
		}
	}
	res.State = StateCreated
	logger.Debug().Str("containerId", res.ContainerID).Str("state", string(res.State)).Msg("Container created")

	res.State = StatePending
	if err := p.waitReady(ctx, res.ContainerID); err != nil {
		res.State = StateFailed
		return res, err
	}
	res.State = StateReady

	res.MediaID, err = p.graph.Publish(ctx, res.ContainerID)
	if err != nil {
		res.State = StateFailed
		return res, fmt.Errorf("%w: publish: %w", ErrUploadFailure, err)
	}
	res.State = StatePublished
	logger.Info().Str("containerId", res.ContainerID).Str("mediaId", res.MediaID).Msg("Post published")
	return res, nil
}

// waitReady polls until the container is FINISHED. There is no sleep after
// the last attempt. Status call errors count as attempts.
func (p *Publisher) waitReady(ctx context.Context, containerID string) error {
	var last string
	for attempt := 1; attempt <= p.poll.MaxAttempts; attempt++ {
		status, err := p.graph.ContainerStatus(ctx, containerID)
		switch {
		case err != nil:
			log.Warn().Err(err).Str("containerId", containerID).Int("attempt", attempt).Msg("Container status poll error, retrying")
		case status == instagram.StatusFinished:
			log.Debug().Str("containerId", containerID).Int("attempt", attempt).Msg("Container ready")
			return nil
		case status == instagram.StatusError || status == instagram.StatusExpired:
			return fmt.Errorf("container %s: %w (%s)", containerID, ErrContainerFailed, status)
		default:
			last = status
			log.Debug().Str("containerId", containerID).Str("status", status).Int("attempt", attempt).Msg("Container not ready")
		}

		if attempt < p.poll.MaxAttempts {
			if err := p.sleep(ctx, p.poll.Interval); err != nil {
				return err
			}
		}
	}
	return fmt.Errorf("container %s: %w after %d attempts (last status %q)", containerID, ErrReadinessTimeout, p.poll.MaxAttempts, last)
}
