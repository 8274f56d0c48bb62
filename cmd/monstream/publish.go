package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"

	"github.com/CefBoud/monstream/compress"
	"github.com/CefBoud/monstream/mux"
	"github.com/CefBoud/monstream/protocol"
	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newPublishCmd(o *options) *cobra.Command {
	var reference, compression string
	var batch bool
	cmd := &cobra.Command{
		Use:   "publish <stream> [message]...",
		Short: "Publish messages, read line by line from stdin when none is given",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var messages [][]byte
			for _, m := range args[1:] {
				messages = append(messages, []byte(m))
			}
			if len(messages) == 0 {
				scanner := bufio.NewScanner(cmd.InOrStdin())
				for scanner.Scan() {
					messages = append(messages, append([]byte(nil), scanner.Bytes()...))
				}
				if err := scanner.Err(); err != nil {
					return err
				}
			}
			if len(messages) == 0 {
				return errors.New("nothing to publish")
			}
			codec, err := compress.ParseCompressionType(compression)
			if err != nil {
				return err
			}
			if reference == "" {
				reference = "monstream-" + uuid.NewString()
			}
			p := publication{
				stream:    args[0],
				reference: reference,
				codec:     codec,
				batch:     batch || codec != compress.NONE,
				messages:  messages,
			}
			return o.withClient(cmd.Context(), func(w *mux.Wrapper) error {
				ctx, cancel := o.requestContext(cmd.Context())
				defer cancel()
				n, err := p.run(ctx, w)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), color.GreenString("published %d message(s) to %s", n, p.stream))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&reference, "reference", "", "publisher reference used for deduplication, random when empty")
	cmd.Flags().StringVar(&compression, "compression", "none", "sub-entry batch codec: none, gzip, snappy, lz4 or zstd")
	cmd.Flags().BoolVar(&batch, "batch", false, "send every message in a single sub-entry batch, implied by --compression")
	return cmd
}

type publication struct {
	stream    string
	reference string
	codec     compress.CompressionType
	batch     bool
	messages  [][]byte
}

// entries numbers the messages from the last sequence stored for the reference
func (p publication) entries(sequence uint64) ([]protocol.PublishEntry, error) {
	if p.batch {
		b, err := protocol.CreateBatch(p.codec, compress.NewRegistry(), p.messages)
		if err != nil {
			return nil, err
		}
		return []protocol.PublishEntry{{PublishingID: sequence + 1, Entry: protocol.Entry{Batch: b}}}, nil
	}
	entries := make([]protocol.PublishEntry, 0, len(p.messages))
	for i, m := range p.messages {
		entries = append(entries, protocol.PublishEntry{PublishingID: sequence + uint64(i) + 1, Entry: protocol.Entry{Message: m}})
	}
	return entries, nil
}

// run declares a publisher, publishes and waits for every confirm
func (p publication) run(ctx context.Context, w *mux.Wrapper) (int, error) {
	confirms := make(chan []uint64, len(p.messages))
	failures := make(chan []protocol.PublishingError, len(p.messages))
	closed := make(chan string, 1)
	notify := func(reason string) {
		select {
		case closed <- reason:
		default:
		}
	}
	id, err := w.AcquirePublisher(p.stream, mux.PublisherHandlers{
		OnPublishConfirm: func(ids []uint64) { confirms <- ids },
		OnPublishError:   func(errs []protocol.PublishingError) { failures <- errs },
		OnStreamUnavailable: func(stream string, code uint16) {
			notify(fmt.Sprintf("stream %s is unavailable (%#04x)", stream, code))
		},
		OnClose: notify,
	})
	if err != nil {
		return 0, err
	}
	defer w.ReleasePublisher(id)

	c := w.Client()
	if err := c.DeclarePublisher(ctx, id, p.reference, p.stream); err != nil {
		return 0, fmt.Errorf("failed to declare publisher on %s: %w", p.stream, err)
	}
	sequence, err := c.QueryPublisherSequence(ctx, p.reference, p.stream)
	if err != nil {
		return 0, fmt.Errorf("failed to query the sequence of %s: %w", p.reference, err)
	}
	entries, err := p.entries(sequence)
	if err != nil {
		return 0, err
	}
	if err := c.Publish(id, entries); err != nil {
		return 0, err
	}
	for pending := len(entries); pending > 0; {
		select {
		case ids := <-confirms:
			pending -= len(ids)
		case errs := <-failures:
			return 0, fmt.Errorf("publishing id %d refused: %w", errs[0].PublishingID, &protocol.StreamError{Key: protocol.PublishKey, Code: errs[0].Code})
		case reason := <-closed:
			return 0, fmt.Errorf("publisher closed: %s", reason)
		case <-ctx.Done():
			return 0, fmt.Errorf("waiting for confirms: %w", ctx.Err())
		}
	}
	if err := c.DeletePublisher(ctx, id); err != nil {
		return 0, err
	}
	return len(p.messages), nil
}
