package cli

import (
	"context"
	"errors"

	"github.com/dshills/sheltercache/internal/output"
	"github.com/dshills/sheltercache/internal/redact"
	"github.com/dshills/sheltercache/internal/resource"
	"github.com/spf13/cobra"
)

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Populate the current cache bucket from the asset manifest",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		s, err := buildStack(cfg)
		if err != nil {
			return fail(ExitRuntimeError, err)
		}
		defer s.Close()

		report := s.controller.Setup(context.Background())
		out := &output.Report{Command: "install", Bucket: report.Bucket, Cached: report.Cached}
		if report.Err != nil {
			s.logger.Error("cache population failed", "bucket", report.Bucket, "error", report.Err)
			out.Errors = append(out.Errors, redact.Secrets(report.Err.Error()))
			if cfg.StrictSetup {
				exitCode = ExitRuntimeError
			} else {
				exitCode = ExitIncomplete
			}
		}
		if err := output.WriteReport(out, cfg.Format, flagOut); err != nil {
			return fail(ExitRuntimeError, err)
		}
		return nil
	},
}

var activateCmd = &cobra.Command{
	Use:   "activate",
	Short: "Delete every cache bucket except the current version",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		s, err := buildStack(cfg)
		if err != nil {
			return fail(ExitRuntimeError, err)
		}
		defer s.Close()

		report := s.controller.Activate(context.Background())
		out := &output.Report{
			Command: "activate",
			Bucket:  s.controller.BucketName(),
			Kept:    report.Kept,
			Deleted: report.Deleted,
		}
		if report.Err != nil {
			s.logger.Error("cache eviction incomplete", "error", report.Err)
			out.Errors = append(out.Errors, redact.Secrets(report.Err.Error()))
			exitCode = ExitIncomplete
		}
		if err := output.WriteReport(out, cfg.Format, flagOut); err != nil {
			return fail(ExitRuntimeError, err)
		}
		return nil
	},
}

var flagMethod string

var fetchCmd = &cobra.Command{
	Use:   "fetch <url>",
	Short: "Intercept one request and show how it would be answered",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		s, err := buildStack(cfg)
		if err != nil {
			return fail(ExitRuntimeError, err)
		}
		defer s.Close()

		req := resource.Request{Method: flagMethod, URL: args[0]}
		resp, err := s.controller.OnIntercept(context.Background(), req)
		if err != nil {
			return fail(ExitRuntimeError, errors.Join(errors.New("bypassed request failed"), err))
		}
		out := &output.Report{
			Command: "fetch",
			Bucket:  s.controller.BucketName(),
			Fetch: &output.Fetch{
				URL:         redact.URL(args[0]),
				Source:      string(resp.Source),
				Status:      resp.Status,
				ContentType: resp.ContentType(),
				Bytes:       len(resp.Body),
			},
		}
		if err := output.WriteReport(out, cfg.Format, flagOut); err != nil {
			return fail(ExitRuntimeError, err)
		}
		return nil
	},
}

func init() {
	addCommonFlags(installCmd)
	addCommonFlags(activateCmd)
	addCommonFlags(fetchCmd)
	fetchCmd.Flags().StringVar(&flagMethod, "method", "GET", "Request method")
}
