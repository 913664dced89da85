/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"

	"github.com/rollcall/apiserver/internal/mq"
	"github.com/rollcall/apiserver/internal/notify"
	"github.com/spf13/cobra"
)

// notifyCmd consumes verification notices published by the server.
var notifyCmd = &cobra.Command{
	Use:   "notify",
	Short: "Deliver account verification notices",
	Long: `Consumes verification notices from the configured message queue and
delivers them. Requires MQ_BACKEND to be rabbitmq or pubsub.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log := loadConfig()

		if cfg.MQ.Backend == "memory" {
			return errors.New("the memory queue only works inside the server process")
		}
		queue, err := mq.Open(cmd.Context(), cfg.MQ)
		if err != nil {
			return err
		}
		if queue == nil {
			return errors.New("no message queue configured (set MQ_BACKEND)")
		}
		defer queue.Close()

		consumer := notify.NewConsumer(queue, cfg.MQ.VerificationChannel, notify.NewLogSender(log), log)
		return consumer.Run(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(notifyCmd)
}
