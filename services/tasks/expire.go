package tasks

import (
	"encoding/json"
	"fmt"
	"time"

	"snapnow/models"

	"github.com/hibiken/asynq"
)

const TypeExpireLiveLocation = "livelocation:expire"

// NewExpireLocationTask builds the task that clears a booking's live
// locations at fireAt. The task id is derived from the booking so that
// repeated publishes enqueue it only once.
func NewExpireLocationTask(bookingID string, fireAt time.Time) (*asynq.Task, []asynq.Option, error) {
	b, err := json.Marshal(models.ExpireLocationPayload{BookingID: bookingID})
	if err != nil {
		return nil, nil, err
	}
	task := asynq.NewTask(TypeExpireLiveLocation, b)
	opts := []asynq.Option{
		asynq.ProcessAt(fireAt),
		asynq.TaskID(ExpireTaskID(bookingID)),
		asynq.MaxRetry(5),
		asynq.Retention(time.Hour),
	}
	return task, opts, nil
}

// ExpireTaskID is the unique id of a booking's expiry task.
func ExpireTaskID(bookingID string) string {
	return "livelocation-expire:" + bookingID
}

// ParseExpireLocationPayload decodes a task payload.
func ParseExpireLocationPayload(task *asynq.Task) (models.ExpireLocationPayload, error) {
	var p models.ExpireLocationPayload
	if err := json.Unmarshal(task.Payload(), &p); err != nil {
		return p, fmt.Errorf("invalid %s payload: %w", TypeExpireLiveLocation, err)
	}
	if p.BookingID == "" {
		return p, fmt.Errorf("invalid %s payload: missing bookingId", TypeExpireLiveLocation)
	}
	return p, nil
}
