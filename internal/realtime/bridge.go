package realtime

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

const (
	listenRetryMin = time.Second
	listenRetryMax = 30 * time.Second
)

// Bridge owns the single durable subscription to the store's notification
// channels. Each notification is decoded and handed to the sink one at a
// time, which preserves commit order within a conversation.
type Bridge struct {
	dsn  string
	sink EventSink
	log  zerolog.Logger
}

func NewBridge(dsn string, sink EventSink, log zerolog.Logger) *Bridge {
	return &Bridge{dsn: dsn, sink: sink, log: log}
}

// Run maintains the subscription until ctx is canceled. A lost or
// unestablishable subscription is retried with capped exponential backoff;
// the bridge never runs partially subscribed.
func (b *Bridge) Run(ctx context.Context) error {
	wait := listenRetryMin
	for {
		started := time.Now()
		err := b.listen(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if time.Since(started) > listenRetryMax {
			wait = listenRetryMin
		}
		b.log.Error().Err(err).Dur("retry_in", wait).Msg("change feed subscription lost")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		wait *= 2
		if wait > listenRetryMax {
			wait = listenRetryMax
		}
	}
}

func (b *Bridge) listen(ctx context.Context) error {
	conn, err := pgx.Connect(ctx, b.dsn)
	if err != nil {
		return fmt.Errorf("realtime: connect change feed: %w", err)
	}
	defer conn.Close(context.Background())

	// All channels or none: a partial subscription would silently drop
	// whole event kinds.
	for _, channel := range Channels() {
		if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{channel}.Sanitize()); err != nil {
			return fmt.Errorf("realtime: listen %s: %w", channel, err)
		}
	}
	b.log.Info().Int("channels", len(Channels())).Msg("change feed subscription established")

	for {
		notification, err := conn.WaitForNotification(ctx)
		if err != nil {
			return fmt.Errorf("realtime: wait for notification: %w", err)
		}
		b.dispatch(notification.Channel, []byte(notification.Payload))
	}
}

// dispatch decodes one notification and hands it to the sink. A malformed
// payload is logged and dropped; one bad message must not silence the feed.
func (b *Bridge) dispatch(channel string, payload []byte) {
	ev, err := DecodeNotification(channel, payload)
	if err != nil {
		b.log.Warn().Err(err).Str("channel", channel).Msg("dropping malformed notification")
		return
	}
	b.sink.Broadcast(ev)
}
