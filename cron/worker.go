package cron

import (
	"context"
	"encoding/json"
	"time"

	"schedulebot/config"
	"schedulebot/models"
	"schedulebot/services/notification"
	"schedulebot/services/tasks"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// QueueRedisOpt is the asynq connection for the reminder queue.
func QueueRedisOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     config.AppConfig.RedisAddr,
		Password: config.AppConfig.RedisPassword,
		DB:       config.AppConfig.RedisQueueDB,
	}
}

// InitReminderWorker runs the async worker in background and returns the
// server so the caller can shut it down.
func InitReminderWorker(sender notification.Sender, logger *zap.Logger) *asynq.Server {
	srv := asynq.NewServer(
		QueueRedisOpt(),
		asynq.Config{
			Concurrency: 5,
			Queues: map[string]int{
				"default": 1,
			},
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(tasks.TypeSendReminder, handleReminderTask(sender, logger))

	// Start async worker with retry logic
	go func() {
		logger.Info("Starting reminder worker")
		const maxAttempts = 5

		for attempts := 1; attempts <= maxAttempts; attempts++ {
			err := srv.Run(mux)
			if err == nil {
				return
			}
			logger.Error("Reminder worker failed to start", zap.Int("attempt", attempts), zap.Error(err))
			if attempts == maxAttempts {
				logger.Fatal("Reminder worker gave up after max attempts")
			}
			time.Sleep(time.Duration(attempts*2) * time.Second)
		}
	}()
	return srv
}

func handleReminderTask(sender notification.Sender, logger *zap.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		var p models.ReminderPayload
		if err := json.Unmarshal(task.Payload(), &p); err != nil {
			logger.Error("Invalid reminder payload", zap.Error(err))
			return asynq.SkipRetry
		}
		if p.To == "" {
			logger.Warn("Reminder without recipient", zap.String("booking", p.BookingID))
			return nil
		}

		logger.Info("Sending reminder", zap.String("booking", p.BookingID), zap.String("to", p.To))
		if err := sender.Send(ctx, p.To, p.Body); err != nil {
			logger.Error("Failed to send reminder", zap.String("booking", p.BookingID), zap.Error(err))
			return err
		}
		return nil
	}
}
