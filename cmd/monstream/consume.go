package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/CefBoud/monstream/mux"
	"github.com/CefBoud/monstream/protocol"
	"github.com/CefBoud/monstream/types"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// parseOffset accepts first, last, next, an absolute offset or an RFC 3339 time
func parseOffset(s string) (types.Offset, error) {
	switch s {
	case "first":
		return types.FirstOffset(), nil
	case "last":
		return types.LastOffset(), nil
	case "next":
		return types.NextOffset(), nil
	}
	if n, err := strconv.ParseUint(s, 10, 64); err == nil {
		return types.AbsoluteOffset(n), nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return types.OffsetAt(t), nil
	}
	return types.Offset{}, fmt.Errorf("invalid offset %q", s)
}

func newConsumeCmd(o *options) *cobra.Command {
	var offset string
	var count int
	var credit uint16
	cmd := &cobra.Command{
		Use:   "consume <stream>",
		Short: "Print the messages of a stream",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			start, err := parseOffset(offset)
			if err != nil {
				return err
			}
			if credit == 0 {
				credit = 1
			}
			s := subscription{stream: args[0], offset: start, count: count, credit: credit, out: cmd.OutOrStdout()}
			return o.withClient(cmd.Context(), func(w *mux.Wrapper) error {
				return s.run(cmd.Context(), o, w)
			})
		},
	}
	cmd.Flags().StringVar(&offset, "offset", "first", "first, last, next, an offset or an RFC 3339 time")
	cmd.Flags().IntVarP(&count, "count", "n", 0, "stop after this many messages, 0 to run until interrupted")
	cmd.Flags().Uint16Var(&credit, "credit", 10, "chunks in flight")
	return cmd
}

type subscription struct {
	stream string
	offset types.Offset
	count  int
	credit uint16
	out    io.Writer

	received int
}

func (s *subscription) run(ctx context.Context, o *options, w *mux.Wrapper) error {
	chunks := make(chan *protocol.DeliverData, s.credit)
	closed := make(chan string, 1)
	notify := func(reason string) {
		select {
		case closed <- reason:
		default:
		}
	}
	id, err := w.AcquireConsumer(s.stream, mux.ConsumerHandlers{
		OnDeliver: func(dd *protocol.DeliverData) { chunks <- dd },
		OnStreamUnavailable: func(stream string, code uint16) {
			notify(fmt.Sprintf("stream %s is unavailable (%#04x)", stream, code))
		},
		OnClose: notify,
	})
	if err != nil {
		return err
	}
	defer w.ReleaseConsumer(id)

	c := w.Client()
	reqCtx, cancel := o.requestContext(ctx)
	err = c.Subscribe(reqCtx, id, s.stream, s.offset, s.credit, nil)
	cancel()
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", s.stream, err)
	}

	for !s.done() {
		select {
		case dd := <-chunks:
			if err := s.print(ctx, dd); err != nil {
				return err
			}
			if err := c.Credit(id, 1); err != nil {
				return err
			}
		case reason := <-closed:
			return fmt.Errorf("consumer closed: %s", reason)
		case <-ctx.Done():
			return nil
		}
	}
	reqCtx, cancel = o.requestContext(context.WithoutCancel(ctx))
	defer cancel()
	return c.Unsubscribe(reqCtx, id)
}

func (s *subscription) done() bool {
	return s.count > 0 && s.received >= s.count
}

// print writes the messages of a chunk, skipping those before an absolute
// start offset since a chunk is delivered whole
func (s *subscription) print(ctx context.Context, dd *protocol.DeliverData) error {
	messages, err := dd.Messages(ctx)
	if err != nil {
		return err
	}
	start, absolute := s.offset.Absolute()
	for i, m := range messages {
		offset := dd.ChunkFirstOffset + uint64(i)
		if absolute && offset < start {
			continue
		}
		fmt.Fprintf(s.out, "%s %s\n", color.CyanString("%d", offset), m)
		if s.received++; s.done() {
			return nil
		}
	}
	return nil
}
