package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	pubsub "cloud.google.com/go/pubsub/v2"

	"github.com/loudlane/cabinet-backend/pkg/logger"
	pubsubpkg "github.com/loudlane/cabinet-backend/pkg/pubsub"
)

// PubsubFeed implements ChangeFeed over the per-table Pub/Sub subscriptions.
// Delivery is at-least-once; the reducer downstream is idempotent, so every
// message is acked after the handler runs.
type PubsubFeed struct {
	client *pubsubpkg.Client
	logg   *logger.Logger
}

// NewPubsubFeed builds a change feed over the configured subscriptions.
func NewPubsubFeed(client *pubsubpkg.Client, logg *logger.Logger) (*PubsubFeed, error) {
	if client == nil {
		return nil, errors.New("pubsub client is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &PubsubFeed{client: client, logg: logg}, nil
}

func (f *PubsubFeed) Subscribe(ctx context.Context, table Table, handler func(ChangeEvent)) (Subscription, error) {
	if handler == nil {
		return nil, errors.New("handler is required")
	}

	subscriber, err := f.subscriber(table)
	if err != nil {
		return nil, err
	}

	recvCtx, cancel := context.WithCancel(ctx)
	sub := &pubsubSubscription{cancel: cancel}
	sub.done.Add(1)

	go func() {
		defer sub.done.Done()
		err := subscriber.Receive(recvCtx, func(msgCtx context.Context, msg *pubsub.Message) {
			f.dispatch(msgCtx, table, msg, handler)
			msg.Ack()
		})
		if err != nil && recvCtx.Err() == nil {
			logCtx := f.logg.WithTable(context.WithoutCancel(recvCtx), string(table))
			f.logg.Error(logCtx, "change feed receive terminated", err)
		}
	}()

	return sub, nil
}

func (f *PubsubFeed) dispatch(ctx context.Context, table Table, msg *pubsub.Message, handler func(ChangeEvent)) {
	logCtx := f.logg.WithFields(ctx, map[string]any{
		"table":      string(table),
		"message_id": msg.ID,
	})

	var envelope eventEnvelope
	if err := json.Unmarshal(msg.Data, &envelope); err != nil {
		f.logg.Error(logCtx, "decode change event envelope", err)
		return
	}
	if envelope.Table != table {
		f.logg.Warn(logCtx, "skipping event for another table")
		return
	}
	if !envelope.Op.IsValid() {
		f.logg.Error(logCtx, "unknown change op", fmt.Errorf("op %q", envelope.Op))
		return
	}

	handler(ChangeEvent{
		Table:  envelope.Table,
		Op:     envelope.Op,
		Before: envelope.Before,
		After:  envelope.After,
	})
}

func (f *PubsubFeed) subscriber(table Table) (*pubsub.Subscriber, error) {
	var subscriber *pubsub.Subscriber
	switch table {
	case TableUsers:
		subscriber = f.client.UsersSubscription()
	case TableTickets:
		subscriber = f.client.TicketsSubscription()
	case TableMessages:
		subscriber = f.client.MessagesSubscription()
	default:
		return nil, fmt.Errorf("unknown table %q", table)
	}
	if subscriber == nil {
		return nil, fmt.Errorf("subscription for table %q not configured", table)
	}
	return subscriber, nil
}

type pubsubSubscription struct {
	cancel   context.CancelFunc
	done     sync.WaitGroup
	canceled sync.Once
}

// Cancel detaches the stream and blocks until the receive loop has drained,
// so no event can reach a handler after Cancel returns.
func (s *pubsubSubscription) Cancel() error {
	s.canceled.Do(s.cancel)
	s.done.Wait()
	return nil
}
