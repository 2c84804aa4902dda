package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/dshills/sheltercache/internal/bucket"
	"github.com/dshills/sheltercache/internal/output"
	"github.com/dshills/sheltercache/internal/resource"
	"github.com/spf13/cobra"
)

var bucketsCmd = &cobra.Command{
	Use:   "buckets",
	Short: "Inspect and manage cache buckets",
}

var bucketsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cache buckets; the current one is marked",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := openStore(cfg.Store)
		if err != nil {
			return fail(ExitRuntimeError, fmt.Errorf("opening bucket store: %w", err))
		}
		defer store.Close()

		ctx := context.Background()
		names, err := store.Keys(ctx)
		if err != nil {
			return fail(ExitRuntimeError, fmt.Errorf("listing buckets: %w", err))
		}
		current := controllerConfig(cfg).BucketName()
		out := &output.Report{Command: "buckets list", Bucket: current}
		for _, name := range names {
			summary, err := summarize(ctx, store, name, false)
			if err != nil {
				return fail(ExitRuntimeError, err)
			}
			summary.Current = name == current
			out.Buckets = append(out.Buckets, summary)
		}
		if err := output.WriteReport(out, cfg.Format, flagOut); err != nil {
			return fail(ExitRuntimeError, err)
		}
		return nil
	},
}

var bucketsShowCmd = &cobra.Command{
	Use:   "show [name]",
	Short: "List the entries of a bucket (default: current)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := openStore(cfg.Store)
		if err != nil {
			return fail(ExitRuntimeError, fmt.Errorf("opening bucket store: %w", err))
		}
		defer store.Close()

		current := controllerConfig(cfg).BucketName()
		name := current
		if len(args) == 1 {
			name = args[0]
		}
		summary, err := summarize(context.Background(), store, name, true)
		if err != nil {
			return fail(ExitRuntimeError, err)
		}
		summary.Current = name == current
		out := &output.Report{Command: "buckets show", Bucket: name, Buckets: []output.Bucket{summary}}
		if err := output.WriteReport(out, cfg.Format, flagOut); err != nil {
			return fail(ExitRuntimeError, err)
		}
		return nil
	},
}

var bucketsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all cache buckets",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := openStore(cfg.Store)
		if err != nil {
			return fail(ExitRuntimeError, fmt.Errorf("opening bucket store: %w", err))
		}
		defer store.Close()

		ctx := context.Background()
		names, err := store.Keys(ctx)
		if err != nil {
			return fail(ExitRuntimeError, fmt.Errorf("listing buckets: %w", err))
		}
		for _, name := range names {
			if _, err := store.Delete(ctx, name); err != nil {
				return fail(ExitRuntimeError, fmt.Errorf("clearing bucket %s: %w", name, err))
			}
		}
		fmt.Fprintf(os.Stdout, "Cleared %d bucket(s).\n", len(names))
		return nil
	},
}

var bucketsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show disk store statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := openStore(cfg.Store)
		if err != nil {
			return fail(ExitRuntimeError, fmt.Errorf("opening bucket store: %w", err))
		}
		defer store.Close()

		disk, ok := store.(*bucket.Disk)
		if !ok {
			fmt.Fprintf(os.Stdout, "Statistics are only available for the disk store (driver %q).\n", cfg.Store.Driver)
			return nil
		}
		stats, err := disk.GetStats()
		if err != nil {
			return fail(ExitRuntimeError, fmt.Errorf("reading store stats: %w", err))
		}
		data, err := json.MarshalIndent(stats, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, string(data))
		return nil
	},
}

func summarize(ctx context.Context, store bucket.Store, name string, withEntries bool) (output.Bucket, error) {
	b, ok, err := store.Get(ctx, name)
	if err != nil {
		return output.Bucket{}, fmt.Errorf("opening bucket %s: %w", name, err)
	}
	if !ok {
		return output.Bucket{}, fmt.Errorf("bucket %s does not exist", name)
	}
	keys, err := b.Keys(ctx)
	if err != nil {
		return output.Bucket{}, fmt.Errorf("listing bucket %s: %w", name, err)
	}
	summary := output.Bucket{Name: name, Count: len(keys)}
	if withEntries {
		for _, k := range keys {
			summary.Entries = append(summary.Entries, resource.Key(k))
		}
	}
	return summary, nil
}

func init() {
	for _, c := range []*cobra.Command{bucketsListCmd, bucketsShowCmd, bucketsClearCmd, bucketsStatsCmd} {
		addCommonFlags(c)
		bucketsCmd.AddCommand(c)
	}
}
