package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/rdvmed/clinicsched/libs/config"
	"github.com/rdvmed/clinicsched/libs/kafkax"
	"github.com/rdvmed/clinicsched/services/scheduling-service/internal/outbox"
	"github.com/segmentio/kafka-go"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

var appointmentTopics = []string{
	outbox.AppointmentBooked,
	outbox.AppointmentUpdated,
	outbox.AppointmentConfirmed,
	outbox.AppointmentStarted,
	outbox.AppointmentFinished,
	outbox.AppointmentCancelled,
}

func eventsCmd(logger *slog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Inspect the appointment event stream",
	}
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Print appointment events as they are published",
		RunE: func(cmd *cobra.Command, _ []string) error {
			brokers, _ := cmd.Flags().GetStringSlice("brokers")
			if len(brokers) == 0 {
				brokers = config.List("KAFKA_BROKERS")
			}
			if len(brokers) == 0 {
				return errors.New("no brokers: pass --brokers or set KAFKA_BROKERS")
			}
			group, _ := cmd.Flags().GetString("group")
			topics, _ := cmd.Flags().GetStringSlice("topic")
			if len(topics) == 0 {
				topics = appointmentTopics
			}

			r := kafka.NewReader(kafka.ReaderConfig{
				Brokers:     brokers,
				GroupID:     group,
				GroupTopics: topics,
				MinBytes:    1,
				MaxBytes:    1 << 20,
			})
			defer func() { _ = r.Close() }()
			otel.SetTextMapPropagator(propagation.TraceContext{})
			logger.Info("tailing appointment events", "brokers", brokers, "group", group, "topics", len(topics))
			return tailEvents(cmd.Context(), r, cmd.OutOrStdout())
		},
	}
	tail.Flags().StringSlice("brokers", nil, "Kafka brokers (defaults to $KAFKA_BROKERS)")
	tail.Flags().StringSlice("topic", nil, "Topics to follow (defaults to every appointment event)")
	tail.Flags().String("group", "schedctl-tail", "Consumer group")
	cmd.AddCommand(tail)
	return cmd
}

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
}

func tailEvents(ctx context.Context, r messageReader, out io.Writer) error {
	for {
		msg, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("read message: %w", err)
		}
		if _, err := fmt.Fprintln(out, formatEvent(ctx, msg)); err != nil {
			return err
		}
	}
}

// formatEvent renders one line: time, event type, aggregate, event id and trace id when present.
func formatEvent(ctx context.Context, msg kafka.Message) string {
	meta := kafkax.ExtractEventMeta(msg)
	parts := []string{
		msg.Time.UTC().Format("2006-01-02T15:04:05Z"),
		meta.EventType,
		"appointment=" + meta.AggregateID,
		"event=" + meta.EventID,
	}
	if sc := trace.SpanContextFromContext(kafkax.ExtractTraceContext(ctx, msg)); sc.HasTraceID() {
		parts = append(parts, "trace="+sc.TraceID().String())
	}
	return strings.Join(parts, " ")
}
