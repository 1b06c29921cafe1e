package cron

import (
	"context"
	"time"

	"snapnow/config"
	"snapnow/services/livelocation"
	"snapnow/services/tasks"
	"snapnow/utils"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// Expirer is the part of the live location service the worker needs.
type Expirer interface {
	Expire(ctx context.Context, bookingID string) error
}

var _ Expirer = (livelocation.LiveLocationService)(nil)

// TaskQueueRedisOpt is the asynq connection shared by client and server.
func TaskQueueRedisOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     config.AppConfig.RedisAddr,
		Password: config.AppConfig.RedisPassword,
		DB:       config.AppConfig.RedisTaskQueueDB,
	}
}

// NewExpiryMux routes expiry tasks to svc.
func NewExpiryMux(svc Expirer) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(tasks.TypeExpireLiveLocation, handleExpireTask(svc))
	return mux
}

// InitExpiryWorker runs the async worker in background. The returned
// server must be shut down by the caller.
func InitExpiryWorker(svc Expirer) *asynq.Server {
	logger := utils.GetLogger()

	srv := asynq.NewServer(
		TaskQueueRedisOpt(),
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"default": 1,
			},
			Logger: logger.Sugar(),
		},
	)
	mux := NewExpiryMux(svc)

	go func() {
		logger.Info("[ExpiryWorker] Starting async worker")
		const maxAttempts = 5

		for attempts := 1; attempts <= maxAttempts; attempts++ {
			err := srv.Run(mux)
			if err == nil {
				return
			}
			logger.Error("[ExpiryWorker] Failed to start worker",
				zap.Int("attempt", attempts), zap.Int("maxAttempts", maxAttempts), zap.Error(err))
			if attempts == maxAttempts {
				logger.Fatal("[ExpiryWorker] Max retry attempts reached")
			}
			time.Sleep(time.Duration(attempts*2) * time.Second)
		}
	}()
	return srv
}

func handleExpireTask(svc Expirer) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		logger := utils.GetLogger()
		p, err := tasks.ParseExpireLocationPayload(task)
		if err != nil {
			logger.Error("[ExpiryHandler] Invalid payload", zap.Error(err))
			return asynq.SkipRetry
		}

		logger.Info("[ExpiryHandler] Expiring live locations", zap.String("bookingID", p.BookingID))
		if err := svc.Expire(ctx, p.BookingID); err != nil {
			logger.Error("[ExpiryHandler] Failed to expire live locations", zap.String("bookingID", p.BookingID), zap.Error(err))
			return err
		}
		return nil
	}
}
