package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"idhub/internal/audit"
	"idhub/internal/platform/logger"
)

func newAuditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect published audit events",
	}
	cmd.AddCommand(newAuditTailCmd())
	return cmd
}

// newAuditTailCmd streams audit events from Kafka to stdout as JSON lines.
// Security events are also logged at warn level on stderr.
func newAuditTailCmd() *cobra.Command {
	var (
		categories []string
		fromStart  bool
	)
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Stream audit events from Kafka as JSON lines",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if len(cfg.Audit.KafkaBrokers) == 0 {
				return errors.New("KAFKA_BROKERS is not set; audit events are only logged")
			}

			cats := make([]audit.EventCategory, 0, len(categories))
			for _, c := range categories {
				cat := audit.EventCategory(c)
				switch cat {
				case audit.CategoryCompliance, audit.CategorySecurity, audit.CategoryOperations:
					cats = append(cats, cat)
				default:
					return fmt.Errorf("unknown category %q", c)
				}
			}

			client, err := audit.NewConsumerClient(cfg.Audit.KafkaBrokers, cfg.Audit.TopicPrefix, fromStart, cats...)
			if err != nil {
				return err
			}
			defer client.Close()

			log := logger.NewWithWriter(cmd.ErrOrStderr(), cfg.LogLevel)
			out := audit.NewJSONLines(cmd.OutOrStdout())
			router := audit.NewRouter(log, out)
			router.Register(cfg.Audit.TopicPrefix+"."+string(audit.CategorySecurity), audit.NewSecurityAlerts(out, log))

			return audit.Consume(cmd.Context(), client, router)
		},
	}
	cmd.Flags().StringSliceVar(&categories, "category",
		[]string{string(audit.CategorySecurity), string(audit.CategoryCompliance), string(audit.CategoryOperations)},
		"event categories to follow")
	cmd.Flags().BoolVar(&fromStart, "from-start", false, "replay each topic from its earliest offset")
	return cmd
}
