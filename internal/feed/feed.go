// Package feed applies incremental posting changes from a Kafka topic to the
// index.
package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/jobmatch/internal/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/jobmatch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/jobmatch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/jobmatch/pkg/resilience"
)

type Op string

const (
	OpUpsert Op = "upsert"
	OpDelete Op = "delete"
)

// PostingEvent is one message on the posting events topic. Delete events
// only need Posting.ID.
type PostingEvent struct {
	Op      Op                `json:"op"`
	Posting index.PostingData `json:"posting"`
}

// Store is the part of the index the feed mutates.
type Store interface {
	Get(id string) *index.Posting
	Insert(ctx context.Context, data index.PostingData) (*index.Posting, error)
	Update(ctx context.Context, data index.PostingData) (*index.Posting, error)
	Remove(id string) error
}

// Observer is told about every processed event. *metrics.Metrics implements
// it.
type Observer interface {
	ObserveFeedEvent(op string, err error)
}

type Applier struct {
	store    Store
	observer Observer
	retry    resilience.RetryConfig
	logger   *slog.Logger
}

// NewApplier creates an Applier. observer may be nil.
func NewApplier(store Store, observer Observer) *Applier {
	return &Applier{
		store:    store,
		observer: observer,
		retry: resilience.RetryConfig{
			MaxAttempts:  3,
			InitialDelay: 200 * time.Millisecond,
			MaxDelay:     2 * time.Second,
			Retryable:    transient,
		},
		logger: slog.Default().With("component", "posting-feed"),
	}
}

// Handler adapts the Applier to a Kafka consumer. Events that can never
// succeed (bad JSON, unknown op, invalid posting) are marked permanent so the
// consumer commits past them.
func (a *Applier) Handler() kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[PostingEvent](value)
		if err != nil {
			a.observe("decode", err)
			return kafka.Permanent(err)
		}
		err = a.Apply(ctx, event)
		if err != nil && !transient(err) {
			return kafka.Permanent(err)
		}
		return err
	}
}

// Apply performs one event. Deleting an unknown posting is not an error.
func (a *Applier) Apply(ctx context.Context, event PostingEvent) error {
	var err error
	switch event.Op {
	case OpUpsert:
		err = resilience.Retry(ctx, "posting upsert", a.retry, func(ctx context.Context) error {
			return a.upsert(ctx, event.Posting)
		})
	case OpDelete:
		err = a.delete(event.Posting.ID)
	default:
		err = apperrors.InvalidArgument("unknown posting event op %q", event.Op)
	}
	a.observe(string(event.Op), err)
	if err != nil {
		return fmt.Errorf("applying %s event for posting %q: %w", event.Op, event.Posting.ID, err)
	}
	return nil
}

func (a *Applier) upsert(ctx context.Context, data index.PostingData) error {
	if data.ID != "" && a.store.Get(data.ID) != nil {
		_, err := a.store.Update(ctx, data)
		if errors.Is(err, apperrors.ErrNotFound) {
			// Removed since the lookup.
			_, err = a.store.Insert(ctx, data)
		}
		return err
	}
	_, err := a.store.Insert(ctx, data)
	if errors.Is(err, apperrors.ErrDuplicateID) {
		// Inserted since the lookup.
		_, err = a.store.Update(ctx, data)
	}
	if err == nil {
		a.logger.Debug("posting upserted", "id", data.ID)
	}
	return err
}

func (a *Applier) delete(id string) error {
	if id == "" {
		return apperrors.InvalidArgument("delete event requires posting.id")
	}
	err := a.store.Remove(id)
	if errors.Is(err, apperrors.ErrNotFound) {
		a.logger.Info("delete for unknown posting acknowledged", "id", id)
		return nil
	}
	return err
}

func (a *Applier) observe(op string, err error) {
	if a.observer != nil {
		a.observer.ObserveFeedEvent(op, err)
	}
}

// transient reports whether redelivery could succeed.
func transient(err error) bool {
	return errors.Is(err, apperrors.ErrEmbedding) || errors.Is(err, apperrors.ErrTimeout)
}
