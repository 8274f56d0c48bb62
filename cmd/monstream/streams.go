package main

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/CefBoud/monstream/mux"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newCreateCmd(o *options) *cobra.Command {
	var arguments map[string]string
	cmd := &cobra.Command{
		Use:   "create <stream>",
		Short: "Create a stream",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withClient(cmd.Context(), func(w *mux.Wrapper) error {
				ctx, cancel := o.requestContext(cmd.Context())
				defer cancel()
				if err := w.Client().CreateStream(ctx, args[0], arguments); err != nil {
					return fmt.Errorf("failed to create stream %s: %w", args[0], err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), color.GreenString("stream %s created", args[0]))
				return nil
			})
		},
	}
	cmd.Flags().StringToStringVar(&arguments, "arg", nil, "stream argument, e.g. --arg max-length-bytes=1000000")
	return cmd
}

func newDeleteCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <stream>",
		Short: "Delete a stream",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withClient(cmd.Context(), func(w *mux.Wrapper) error {
				ctx, cancel := o.requestContext(cmd.Context())
				defer cancel()
				if err := w.Client().DeleteStream(ctx, args[0]); err != nil {
					return fmt.Errorf("failed to delete stream %s: %w", args[0], err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), color.GreenString("stream %s deleted", args[0]))
				return nil
			})
		},
	}
}

func newMetadataCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "metadata <stream>...",
		Short: "Show the leader and replicas of streams",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withClient(cmd.Context(), func(w *mux.Wrapper) error {
				ctx, cancel := o.requestContext(cmd.Context())
				defer cancel()
				md, err := w.Client().Metadata(ctx, args)
				if err != nil {
					return fmt.Errorf("failed to query metadata: %w", err)
				}
				out := cmd.OutOrStdout()
				for _, stream := range args {
					m, ok := md[stream]
					if !ok {
						fmt.Fprintln(out, color.YellowString("%s: not found", stream))
						continue
					}
					leader := "none"
					if m.Leader != nil {
						leader = fmt.Sprintf("%s:%d", m.Leader.Host, m.Leader.Port)
					}
					replicas := make([]string, 0, len(m.Replicas))
					for _, r := range m.Replicas {
						replicas = append(replicas, fmt.Sprintf("%s:%d", r.Host, r.Port))
					}
					fmt.Fprintf(out, "%s: leader %s replicas [%s]\n", color.CyanString(stream), leader, strings.Join(replicas, " "))
				}
				return nil
			})
		},
	}
}

func newStatsCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "stats <stream>",
		Short: "Show the counters of a stream",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withClient(cmd.Context(), func(w *mux.Wrapper) error {
				ctx, cancel := o.requestContext(cmd.Context())
				defer cancel()
				stats, err := w.Client().StreamStats(ctx, args[0])
				if err != nil {
					return fmt.Errorf("failed to query stats of %s: %w", args[0], err)
				}
				for _, name := range slices.Sorted(maps.Keys(stats)) {
					fmt.Fprintf(cmd.OutOrStdout(), "%s %d\n", name, stats[name])
				}
				return nil
			})
		},
	}
}

func newRouteCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "route <super-stream> <routing-key>",
		Short: "Show the streams a routing key goes to",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withClient(cmd.Context(), func(w *mux.Wrapper) error {
				ctx, cancel := o.requestContext(cmd.Context())
				defer cancel()
				streams, err := w.Client().Route(ctx, args[1], args[0])
				if err != nil {
					return fmt.Errorf("failed to route %s: %w", args[1], err)
				}
				printList(cmd, streams)
				return nil
			})
		},
	}
}

func newPartitionsCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "partitions <super-stream>",
		Short: "List the partitions of a super stream",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withClient(cmd.Context(), func(w *mux.Wrapper) error {
				ctx, cancel := o.requestContext(cmd.Context())
				defer cancel()
				streams, err := w.Client().Partitions(ctx, args[0])
				if err != nil {
					return fmt.Errorf("failed to list partitions of %s: %w", args[0], err)
				}
				printList(cmd, streams)
				return nil
			})
		},
	}
}

func printList(cmd *cobra.Command, items []string) {
	for _, item := range items {
		fmt.Fprintln(cmd.OutOrStdout(), item)
	}
}
