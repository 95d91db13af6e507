package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"interview-room/config"
	"interview-room/constant"
	"interview-room/dto"
	"interview-room/pkg/rabbitmq"
	server2 "interview-room/server"
)

// emitEvent publishes a session event the way the analysis backend does,
// which nudges a running room into an early poll.
func emitEvent(cfg *config.Config) *cobra.Command {
	var event, questionID, status string
	cmd := &cobra.Command{
		Use:   "emit-event <session-id>",
		Short: "publish a session event to the message broker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.Queue == nil {
				return fmt.Errorf("no message broker configured, set RABBITMQ_HOST")
			}
			ctx, cancel := signal.NotifyContext(server2.SetupLogger(cfg), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			conn, err := config.NewRabbitMQConn(ctx, cfg.Queue)
			if err != nil {
				return err
			}
			defer conn.Close()

			msg := dto.SessionEvent{
				SessionID:  args[0],
				QuestionID: questionID,
				Status:     constant.SessionStatus(status),
				Event:      event,
			}
			return rabbitmq.Publish(context.WithoutCancel(ctx), conn, cfg.Queue, "session."+event, msg)
		},
	}
	cmd.Flags().StringVar(&event, "event", "answer_processed", "event name, also the routing key suffix")
	cmd.Flags().StringVar(&questionID, "question", "", "question id the event refers to")
	cmd.Flags().StringVar(&status, "status", "", "session status after the change")
	return cmd
}
