package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tarcisiozf/dslot/dslot"
	"github.com/tarcisiozf/dslot/engine"
	"github.com/tarcisiozf/dslot/slots"
)

// resolver answers slot queries either in process or through a server.
type resolver interface {
	Slot(ctx context.Context, algorithm, id string, n int) (slots.Slot, string, error)
	Shard(ctx context.Context, slot string) (string, error)
	Info(ctx context.Context, w io.Writer) error
}

type localResolver struct {
	table *slots.BandTable
}

func (l localResolver) Slot(_ context.Context, algorithm, id string, n int) (slots.Slot, string, error) {
	alg, err := engine.ParseAlgorithm(algorithm)
	if err != nil {
		return slots.None(), "", err
	}
	if n <= 0 {
		n = alg.DefaultSlots()
	}
	slot, err := alg.Assign(id, n)
	if err != nil {
		return slot, "", err
	}
	if alg.Equal(slots.CRC16) && n == l.table.Slots() {
		return slot, l.table.ShardFor(slot), nil
	}
	return slot, "", nil
}

func (l localResolver) Shard(_ context.Context, slot string) (string, error) {
	return l.table.ShardForValue(slot), nil
}

func (l localResolver) Info(_ context.Context, w io.Writer) error {
	fmt.Fprintln(w, "Mode: local")
	printBands(w, l.table.Bands())
	return nil
}

type remoteResolver struct {
	client *dslot.Client
}

func (r remoteResolver) Slot(ctx context.Context, algorithm, id string, n int) (slots.Slot, string, error) {
	result, err := r.client.Slot(ctx, algorithm, id, n)
	if err != nil {
		return slots.None(), "", err
	}
	return result.Slot, result.Shard, nil
}

func (r remoteResolver) Shard(ctx context.Context, slot string) (string, error) {
	n, err := strconv.Atoi(strings.TrimSpace(slot))
	if err != nil {
		return slots.ErrorShard, nil
	}
	return r.client.Shard(ctx, n)
}

func (r remoteResolver) Info(ctx context.Context, w io.Writer) error {
	info, err := r.client.Info(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, "Mode: remote")
	for endpoint, healthy := range r.client.Endpoints() {
		status := "HEALTHY"
		if !healthy {
			status = "UNHEALTHY"
		}
		fmt.Fprintf(w, "  - %s: %s\n", endpoint, status)
	}
	fmt.Fprintf(w, "Redis slots: %d\n", info.RedisSlots)
	fmt.Fprintf(w, "Fleet slots: %d\n", info.FleetSlots)
	fmt.Fprintf(w, "Algorithms: %s\n", strings.Join(info.Algorithms, ", "))
	fmt.Fprintf(w, "Persistence: %t\n", info.Persistence)
	printBands(w, info.Bands)
	return nil
}

func printBands(w io.Writer, bands []slots.Band) {
	fmt.Fprintln(w, "Bands:")
	lower := 0
	for _, b := range bands {
		fmt.Fprintf(w, "  %s: %s\n", b.Name, slots.SlotRange{lower, b.Upper})
		lower = b.Upper + 1
	}
}

func newReplCmd(opts *globalOptions) *cobra.Command {
	var servers []string
	cmd := &cobra.Command{
		Use:   "repl",
		Short: "Interactive slot lookups, locally or against dslot servers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var r resolver
			if len(servers) > 0 {
				client, err := dslot.NewClient(dslot.WithEndpoint(servers...))
				if err != nil {
					return fmt.Errorf("failed to create client: %w", err)
				}
				r = remoteResolver{client: client}
			} else {
				table, err := opts.bands()
				if err != nil {
					return err
				}
				r = localResolver{table: table}
			}
			return repl(cmd.Context(), r, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringSliceVarP(&servers, "server", "s", nil, "dslot server address, may repeat")
	return cmd
}

func repl(ctx context.Context, r resolver, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			break
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}
		cmd, args := strings.ToLower(parts[0]), parts[1:]

		switch cmd {
		case "crc16", "sha256", "xxhash":
			slotCmd(ctx, r, out, append([]string{cmd}, args...))
		case "slot":
			slotCmd(ctx, r, out, args)
		case "shard":
			shardCmd(ctx, r, out, args)
		case "info":
			if err := r.Info(ctx, out); err != nil {
				fmt.Fprintln(out, "Error:", err)
			}
		case "help":
			printUsage(out)
		case "exit", "quit":
			return nil
		default:
			fmt.Fprintln(out, "Unknown command:", cmd)
			fmt.Fprintln(out, "Type 'help' for a list of commands.")
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading input: %w", err)
	}
	return nil
}

func slotCmd(ctx context.Context, r resolver, out io.Writer, args []string) {
	if len(args) < 2 || len(args) > 3 {
		fmt.Fprintln(out, "Usage: slot <algorithm> <id> [slots]")
		return
	}
	n := 0
	if len(args) == 3 {
		var err error
		if n, err = strconv.Atoi(args[2]); err != nil || n <= 0 {
			fmt.Fprintln(out, "Error: slots must be a positive number")
			return
		}
	}

	slot, shard, err := r.Slot(ctx, args[0], args[1], n)
	if err != nil {
		fmt.Fprintln(out, "Error:", err)
		return
	}
	if shard != "" {
		fmt.Fprintf(out, "Slot for '%s': %s (%s)\n", args[1], formatSlot(slot), shard)
		return
	}
	fmt.Fprintf(out, "Slot for '%s': %s\n", args[1], formatSlot(slot))
}

func shardCmd(ctx context.Context, r resolver, out io.Writer, args []string) {
	if len(args) != 1 {
		fmt.Fprintln(out, "Usage: shard <slot>")
		return
	}
	shard, err := r.Shard(ctx, args[0])
	if err != nil {
		fmt.Fprintln(out, "Error:", err)
		return
	}
	fmt.Fprintf(out, "Shard for slot %s: %s\n", args[0], shard)
}

func printUsage(out io.Writer) {
	fmt.Fprintln(out, "Usage:")
	fmt.Fprintln(out, "  crc16 <id> [slots]: Show the cluster slot and shard of an identifier")
	fmt.Fprintln(out, "  sha256 <id> [slots]: Show the fleet slot of an identifier")
	fmt.Fprintln(out, "  slot <algorithm> <id> [slots]: Show the slot with any algorithm")
	fmt.Fprintln(out, "  shard <slot>: Show the shard owning a cluster slot")
	fmt.Fprintln(out, "  info: Show the band table and server information")
	fmt.Fprintln(out, "  help: Show this help message")
	fmt.Fprintln(out, "  exit or quit: Exit the program")
}
