package publisher

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/fpang/catalog-post-automation/internal/instagram"
)

// fakeGraph records calls and answers from scripted statuses.
type fakeGraph struct {
	created   []string
	carousels [][]string
	published []string
	polls     int

	// statuses is returned in order per poll; the last value repeats.
	statuses []string
	noID     bool
	next     int
}

func (f *fakeGraph) id(prefix string) string {
	f.next++
	return fmt.Sprintf("%s-%d", prefix, f.next)
}

func (f *fakeGraph) CreateImageContainer(_ context.Context, imageURL, caption string, isCarouselItem bool) (string, error) {
	f.created = append(f.created, imageURL)
	if f.noID {
		return "", fmt.Errorf("create image container: %w", instagram.ErrNoID)
	}
	return f.id("img"), nil
}

func (f *fakeGraph) CreateCarouselContainer(_ context.Context, children []string, caption string) (string, error) {
	f.carousels = append(f.carousels, children)
	return f.id("carousel"), nil
}

func (f *fakeGraph) ContainerStatus(_ context.Context, id string) (string, error) {
	f.polls++
	if len(f.statuses) == 0 {
		return instagram.StatusFinished, nil
	}
	i := min(f.polls-1, len(f.statuses)-1)
	return f.statuses[i], nil
}

func (f *fakeGraph) Publish(_ context.Context, id string) (string, error) {
	f.published = append(f.published, id)
	return "media-" + id, nil
}

func newTestPublisher(g Graph, sleeps *int) *Publisher {
	p := New(g, WithChildPause(0), WithPollPolicy(PollPolicy{Interval: time.Millisecond, MaxAttempts: 10}))
	p.sleep = func(context.Context, time.Duration) error {
		if sleeps != nil {
			*sleeps++
		}
		return nil
	}
	return p
}

func TestPublish_SingleImage(t *testing.T) {
	g := &fakeGraph{}
	res, err := newTestPublisher(g, nil).Publish(context.Background(), Post{
		ID:        "4711",
		Caption:   "Hallo",
		ImageURLs: []string{"https://s.example/a.jpg"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(g.created) != 1 || len(g.carousels) != 0 || len(g.published) != 1 {
		t.Errorf("expected 1 container and 1 publish, got created=%d carousels=%d published=%d",
			len(g.created), len(g.carousels), len(g.published))
	}
	if res.State != StatePublished || res.MediaID == "" {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestPublish_Carousel(t *testing.T) {
	g := &fakeGraph{}
	res, err := newTestPublisher(g, nil).Publish(context.Background(), Post{
		ID:        "4711",
		Caption:   "Hallo",
		ImageURLs: []string{"https://s.example/a.jpg", "https://s.example/a_1.jpg", "https://s.example/a_2.jpg"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(g.created) != 3 {
		t.Errorf("expected 3 child containers, got %d", len(g.created))
	}
	if len(g.carousels) != 1 || len(g.carousels[0]) != 3 {
		t.Errorf("expected 1 carousel with 3 children, got %v", g.carousels)
	}
	if g.polls != 4 {
		t.Errorf("expected 4 readiness waits, got %d", g.polls)
	}
	if len(g.published) != 1 || g.published[0] != res.ContainerID {
		t.Errorf("expected carousel container published once, got %v", g.published)
	}
	if len(res.ChildIDs) != 3 {
		t.Errorf("unexpected child ids: %v", res.ChildIDs)
	}
}

func TestPublish_ReadinessTimeout(t *testing.T) {
	g := &fakeGraph{statuses: []string{instagram.StatusInProgress}}
	var sleeps int
	res, err := newTestPublisher(g, &sleeps).Publish(context.Background(), Post{
		ID:        "1",
		ImageURLs: []string{"https://s.example/a.jpg"},
	})
	if !errors.Is(err, ErrReadinessTimeout) {
		t.Fatalf("expected ErrReadinessTimeout, got %v", err)
	}
	if len(g.published) != 0 {
		t.Error("publish must not be called after a timeout")
	}
	if g.polls != 10 {
		t.Errorf("expected 10 polls, got %d", g.polls)
	}
	if sleeps != 9 {
		t.Errorf("expected no sleep after the last attempt (9 sleeps), got %d", sleeps)
	}
	if res.State != StateFailed {
		t.Errorf("expected failed state, got %s", res.State)
	}
}

func TestPublish_BecomesReady(t *testing.T) {
	g := &fakeGraph{statuses: []string{instagram.StatusInProgress, instagram.StatusInProgress, instagram.StatusFinished}}
	_, err := newTestPublisher(g, nil).Publish(context.Background(), Post{ID: "1", ImageURLs: []string{"u"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if g.polls != 3 {
		t.Errorf("expected 3 polls, got %d", g.polls)
	}
}

func TestPublish_ContainerError(t *testing.T) {
	for _, status := range []string{instagram.StatusError, instagram.StatusExpired} {
		g := &fakeGraph{statuses: []string{status}}
		_, err := newTestPublisher(g, nil).Publish(context.Background(), Post{ID: "1", ImageURLs: []string{"u"}})
		if !errors.Is(err, ErrContainerFailed) {
			t.Errorf("%s: expected ErrContainerFailed, got %v", status, err)
		}
		if g.polls != 1 || len(g.published) != 0 {
			t.Errorf("%s: expected immediate failure without publish", status)
		}
	}
}

func TestPublish_NoID(t *testing.T) {
	g := &fakeGraph{noID: true}
	_, err := newTestPublisher(g, nil).Publish(context.Background(), Post{ID: "1", ImageURLs: []string{"a", "b"}})
	if !errors.Is(err, ErrUploadFailure) {
		t.Fatalf("expected ErrUploadFailure, got %v", err)
	}
	if !errors.Is(err, instagram.ErrNoID) {
		t.Errorf("expected cause to be preserved, got %v", err)
	}
	if len(g.created) != 1 {
		t.Errorf("expected no retry after the failed call, got %d creates", len(g.created))
	}
}

func TestPublish_Validation(t *testing.T) {
	p := newTestPublisher(&fakeGraph{}, nil)
	if _, err := p.Publish(context.Background(), Post{ID: "1"}); !errors.Is(err, ErrNoImages) {
		t.Errorf("expected ErrNoImages, got %v", err)
	}
	urls := make([]string, instagram.MaxCarouselItems+1)
	if _, err := p.Publish(context.Background(), Post{ID: "1", ImageURLs: urls}); err == nil {
		t.Error("expected carousel limit error")
	}
}

func TestPublish_ContextCancelledWhilePolling(t *testing.T) {
	g := &fakeGraph{statuses: []string{instagram.StatusInProgress}}
	p := New(g, WithChildPause(0), WithPollPolicy(PollPolicy{Interval: time.Hour, MaxAttempts: 3}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Publish(ctx, Post{ID: "1", ImageURLs: []string{"u"}})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
