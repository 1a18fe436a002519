package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/wolfman30/storefront-bridge/internal/app/bootstrap"
	appconfig "github.com/wolfman30/storefront-bridge/internal/config"
	"github.com/wolfman30/storefront-bridge/internal/format"
	"github.com/wolfman30/storefront-bridge/internal/submission"
	"github.com/wolfman30/storefront-bridge/pkg/logging"
)

var errTrapped = errors.New("submission tripped the honeypot")

func renderCmd() *cobra.Command {
	var kind string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "render [file]",
		Short: "Validate a submission and print the Telegram message",
		Long: `Validate a storefront submission and print the MarkdownV2 message the
bridge would relay. Reads the JSON body from file, or stdin when file is "-"
or omitted.

Examples:
  bridgectl render order.json
  bridgectl render --kind lead < lead.json
  bridgectl render order.json --json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sub, err := readSubmission(cmd, args, kind)
			if err != nil {
				return err
			}
			text := format.Compose(sub)
			if !asJSON {
				_, err = fmt.Fprintln(cmd.OutOrStdout(), text)
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(struct {
				Kind        submission.Kind `json:"kind"`
				Fingerprint string          `json:"fingerprint"`
				ParseMode   string          `json:"parse_mode"`
				Text        string          `json:"text"`
			}{sub.Kind(), submission.Fingerprint(sub), format.ParseMode, text})
		},
	}

	cmd.Flags().StringVarP(&kind, "kind", "k", string(submission.KindOrder), "submission kind (order, lead)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON with the dedupe fingerprint")
	return cmd
}

func sendCmd() *cobra.Command {
	var kind string
	var envFile string
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "send [file]",
		Short: "Validate a submission and relay it to the configured chat",
		Long: `Validate a storefront submission and relay it through the Telegram Bot API
using the same environment configuration as the API server. Duplicate
suppression and rate limits are not applied.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if envFile != "" {
				if err := godotenv.Load(envFile); err != nil {
					return fmt.Errorf("load %s: %w", envFile, err)
				}
			}
			cfg := appconfig.Load()
			if err := cfg.Validate(); err != nil {
				return err
			}

			sub, err := readSubmission(cmd, args, kind)
			if err != nil {
				return err
			}

			logger := logging.NewWithOptions(logging.Options{
				Level:  cfg.LogLevel,
				Format: "text",
				Output: cmd.ErrOrStderr(),
			})
			relay, err := bootstrap.BuildRelay(cfg, logger, nil)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			if err := relay.Send(ctx, sub.Kind(), format.Compose(sub)); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "relayed %s %s\n", sub.Kind(), submission.Fingerprint(sub)[:12])
			return err
		},
	}

	cmd.Flags().StringVarP(&kind, "kind", "k", string(submission.KindOrder), "submission kind (order, lead)")
	cmd.Flags().StringVar(&envFile, "env-file", "", "dotenv file to load before reading configuration")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "overall deadline for the relay")
	return cmd
}

// readSubmission decodes and validates the body named by args, applying the
// same honeypot and validation rules as the HTTP routes.
func readSubmission(cmd *cobra.Command, args []string, kind string) (submission.Submission, error) {
	var r io.Reader = cmd.InOrStdin()
	if len(args) == 1 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	payload, err := submission.DecodePayload(r)
	if err != nil {
		return nil, err
	}
	if payload.Trapped() {
		return nil, errTrapped
	}

	switch submission.Kind(kind) {
	case submission.KindOrder:
		return submission.ValidateOrder(payload)
	case submission.KindLead:
		return submission.ValidateLead(payload)
	default:
		return nil, fmt.Errorf("unknown kind %q (want order or lead)", kind)
	}
}
