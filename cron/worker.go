package cron

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"swiftaid/config"
	"swiftaid/services/notification"
	"swiftaid/services/tasks"

	"github.com/hibiken/asynq"
)

// InitAlertWorker runs the async worker delivering SOS candidate alerts in
// the background.
func InitAlertWorker(notifSvc notification.NotificationService) {
	redisOpts := asynq.RedisClientOpt{
		Addr:     config.AppConfig.RedisAddr,
		Password: config.AppConfig.RedisPassword,
		DB:       config.AppConfig.RedisQueueDB,
	}

	srv := asynq.NewServer(
		redisOpts,
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"default": 1,
			},
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(tasks.TypeSOSAlert, handleSOSAlertTask(notifSvc))

	go func() {
		log.Println("[AlertWorker] starting async worker...")
		const maxAttempts = 5

		for attempts := 1; attempts <= maxAttempts; attempts++ {
			if err := srv.Run(mux); err != nil {
				log.Printf("[AlertWorker] attempt %d/%d failed to start worker: %v", attempts, maxAttempts, err)

				if attempts == maxAttempts {
					log.Fatal("[AlertWorker] max retry attempts reached. Exiting.")
				}
				time.Sleep(time.Duration(attempts*2) * time.Second)
			} else {
				break
			}
		}
	}()
}

func handleSOSAlertTask(notifSvc notification.NotificationService) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		var p tasks.SOSAlertPayload
		if err := json.Unmarshal(task.Payload(), &p); err != nil {
			log.Printf("[AlertHandler] invalid payload: %v", err)
			return err
		}

		// A task past its deadline is dropped by asynq before reaching here;
		// anything that arrives is still actionable.
		return notifSvc.NotifyProviderSOS(ctx, notification.SOSAlert{
			BookingID:  p.BookingID,
			ProviderID: p.ProviderID,
			CategoryID: p.CategoryID,
			Rank:       p.Rank,
			DistanceKm: p.DistanceKm,
		})
	}
}
