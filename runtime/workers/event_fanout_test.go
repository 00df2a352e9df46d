package workers

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"ajar-messaging/domain/event"
	"ajar-messaging/mocks"
)

func TestEventFanout_Delivers_To_Every_Sink(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	sink1 := mocks.NewMockEventSink(ctrl)
	sink2 := mocks.NewMockEventSink(ctrl)

	events := make(chan event.DomainEvent, 1)
	fanout := NewEventFanout(log, events, time.Second).Add(sink1, sink2)

	done := make(chan struct{})
	evt := event.MessagePosted{Room: "listing-42", Sender: "Alice", Body: "hi", Seq: 1}

	// Given both sinks expect the event
	sink1.EXPECT().Consume(gomock.Any(), evt).Return(nil).Times(1)
	sink2.EXPECT().Consume(gomock.Any(), evt).
		DoAndReturn(func(ctx context.Context, e event.DomainEvent) error {
			close(done)
			return nil
		}).Times(1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = fanout.Run(ctx) }()

	// When an event enters the pipeline
	events <- evt

	// Then both sinks consumed it
	select {
	case <-done:
	case <-time.After(1 * time.Second):
		req.Fail("Sinks did not consume the event in time")
	}
}

func TestEventFanout_SinkTimeout(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	slowSink := mocks.NewMockEventSink(ctrl)
	nextSink := mocks.NewMockEventSink(ctrl)

	sinkTimeout := 20 * time.Millisecond
	events := make(chan event.DomainEvent, 1)
	fanout := NewEventFanout(log, events, sinkTimeout).Add(slowSink, nextSink)

	done := make(chan struct{})
	evt := event.MemberLeft{Room: "listing-42", DisplayName: "Bob"}

	// Given the first sink hangs until its per-sink deadline fires
	slowSink.EXPECT().Consume(gomock.Any(), evt).
		DoAndReturn(func(ctx context.Context, e event.DomainEvent) error {
			<-ctx.Done() // Waiting for timeout to trigger cancellation
			return ctx.Err()
		}).Times(1)

	// Then the next sink is still served
	nextSink.EXPECT().Consume(gomock.Any(), evt).
		DoAndReturn(func(ctx context.Context, e event.DomainEvent) error {
			close(done)
			return nil
		}).Times(1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = fanout.Run(ctx) }()

	events <- evt

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		req.Fail("Slow sink stalled the whole fanout")
	}
}
