package events_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/frahmantamala/accessctl/internal/core/events"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("EventBus", func() {
	var (
		ctx context.Context
		bus *events.EventBus
	)

	BeforeEach(func() {
		ctx = context.Background()
		bus = events.NewEventBus(slog.New(slog.NewTextHandler(io.Discard, nil)))
	})

	Describe("PublishSync", func() {
		It("should run every handler before returning", func() {
			var calls int32
			for i := 0; i < 3; i++ {
				bus.Subscribe(events.EventTypeRoleChanged, func(context.Context, events.Event) error {
					atomic.AddInt32(&calls, 1)
					return nil
				})
			}

			Expect(bus.PublishSync(ctx, events.NewRoleChangedEvent(1, "update", "editor"))).To(Succeed())

			Expect(atomic.LoadInt32(&calls)).To(Equal(int32(3)))
		})

		It("should stop at the first failing handler", func() {
			var after int32
			bus.Subscribe(events.EventTypePermissionChanged, func(context.Context, events.Event) error {
				return errors.New("cache down")
			})
			bus.Subscribe(events.EventTypePermissionChanged, func(context.Context, events.Event) error {
				atomic.AddInt32(&after, 1)
				return nil
			})

			err := bus.PublishSync(ctx, events.NewPermissionChangedEvent(1, "content.read", "delete"))

			Expect(err).To(MatchError(ContainSubstring("cache down")))
			Expect(atomic.LoadInt32(&after)).To(BeZero())
		})

		It("should succeed when nobody listens", func() {
			Expect(bus.PublishSync(ctx, events.NewRoleChangedEvent(1, "create", "auditor"))).To(Succeed())
		})
	})

	Describe("Publish", func() {
		It("should deliver in the background even after the caller's context ends", func() {
			received := make(chan events.Event, 1)
			var ctxErr atomic.Value
			bus.Subscribe(events.EventTypeRoleChanged, func(hctx context.Context, e events.Event) error {
				if err := hctx.Err(); err != nil {
					ctxErr.Store(err)
				}
				received <- e
				return nil
			})

			cctx, cancel := context.WithCancel(ctx)
			event := events.NewRoleChangedEvent(7, "delete", "editor")
			Expect(bus.Publish(cctx, event)).To(Succeed())
			cancel()

			Eventually(received).Should(Receive(Equal(events.Event(event))))
			Expect(ctxErr.Load()).To(BeNil())
		})
	})

	Describe("events", func() {
		It("should list both names on a role rename", func() {
			e := events.NewRoleChangedEvent(3, "update", "writer", "editor")

			Expect(e.EventType()).To(Equal(events.EventTypeRoleChanged))
			Expect(e.EventID()).NotTo(BeEmpty())
			Expect(e.RoleNames).To(Equal([]string{"writer", "editor"}))
			Expect(e.Payload()).To(HaveKeyWithValue("operation", "update"))
		})
	})

	Describe("LogChanges", func() {
		It("should write an audit line per mutation", func() {
			var buf bytes.Buffer
			events.LogChanges(bus, slog.New(slog.NewTextHandler(&buf, nil)))

			Expect(bus.PublishSync(ctx, events.NewRoleChangedEvent(3, "replace_permissions", "editor"))).To(Succeed())
			Expect(bus.PublishSync(ctx, events.NewPermissionChangedEvent(9, "content.write", "delete"))).To(Succeed())

			Expect(buf.String()).To(ContainSubstring("role changed"))
			Expect(buf.String()).To(ContainSubstring("operation=replace_permissions"))
			Expect(buf.String()).To(ContainSubstring("permission=content.write"))
		})
	})

	Describe("Forward", func() {
		It("should hand events to the target bus asynchronously", func() {
			// Given an audit bus fed from the mutation bus
			audit := events.NewEventBus(slog.New(slog.NewTextHandler(io.Discard, nil)))
			var seen atomic.Value
			audit.Subscribe(events.EventTypeRoleChanged, func(_ context.Context, e events.Event) error {
				seen.Store(e.EventID())
				return nil
			})
			events.Forward(bus, audit, events.EventTypeRoleChanged)

			// When a change is published synchronously
			event := events.NewRoleChangedEvent(3, "update", "editor")
			Expect(bus.PublishSync(ctx, event)).To(Succeed())

			// Then the audit handler receives it
			Eventually(seen.Load).Should(Equal(event.EventID()))
		})

		It("should not forward unrelated event types", func() {
			audit := events.NewEventBus(slog.New(slog.NewTextHandler(io.Discard, nil)))
			var calls int32
			audit.Subscribe(events.EventTypePermissionChanged, func(context.Context, events.Event) error {
				atomic.AddInt32(&calls, 1)
				return nil
			})
			events.Forward(bus, audit, events.EventTypeRoleChanged)

			Expect(bus.PublishSync(ctx, events.NewPermissionChangedEvent(9, "content.write", "delete"))).To(Succeed())

			Consistently(func() int32 { return atomic.LoadInt32(&calls) }).WithTimeout(50 * time.Millisecond).Should(BeZero())
		})
	})
})
