package cli

import (
	"context"
	"errors"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/shaiso/Actionflow/internal/mq"
)

// NewWatchCmd создаёт команду просмотра событий из RabbitMQ.
//
// Команда не использует API: она подписывается на exchange событий
// временной очередью и печатает события по мере поступления.
func NewWatchCmd(outputFn func() *Output, logger *slog.Logger) *cobra.Command {
	var amqpURL string
	var appID string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Tail execution events from RabbitMQ",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			conn, err := mq.NewConnection(amqpURL, logger)
			if err != nil {
				return err
			}
			defer conn.Close()

			if err := mq.SetupTopology(cmd.Context(), conn); err != nil {
				return err
			}

			consumer := mq.NewConsumer(conn, logger, mq.ConsumerConfig{
				Binding: mq.AppBindingKey(appID),
				Handler: func(ctx context.Context, d *mq.Delivery) error {
					out.Event(&d.Message)
					return nil
				},
			})

			out.Success("Watching events, press Ctrl+C to stop")
			err = consumer.Run(cmd.Context())
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	defaultURL := mq.URLFromEnv()
	if defaultURL == "" {
		defaultURL = mq.DefaultURL()
	}
	cmd.Flags().StringVar(&amqpURL, "amqp-url", defaultURL, "RabbitMQ URL (env RABBITMQ_URL)")
	cmd.Flags().StringVar(&appID, "app", "", "Only show events of this app ID")

	return cmd
}
