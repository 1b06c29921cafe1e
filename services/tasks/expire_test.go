package tasks

import (
	"testing"
	"time"

	"github.com/hibiken/asynq"
)

func TestNewExpireLocationTask(t *testing.T) {
	task, opts, err := NewExpireLocationTask("b-9", time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("build task: %v", err)
	}
	if task.Type() != TypeExpireLiveLocation {
		t.Fatalf("unexpected type %q", task.Type())
	}
	if len(opts) != 4 {
		t.Fatalf("expected 4 options, got %d", len(opts))
	}
	found := false
	for _, o := range opts {
		if o.Type() == asynq.TaskIDOpt && o.Value() == ExpireTaskID("b-9") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a booking-derived task id option")
	}

	p, err := ParseExpireLocationPayload(task)
	if err != nil || p.BookingID != "b-9" {
		t.Fatalf("parse payload: %+v %v", p, err)
	}
}

func TestParseExpireLocationPayloadRejectsEmpty(t *testing.T) {
	if _, err := ParseExpireLocationPayload(asynq.NewTask(TypeExpireLiveLocation, []byte(`{}`))); err == nil {
		t.Fatalf("expected error for missing booking id")
	}
	if _, err := ParseExpireLocationPayload(asynq.NewTask(TypeExpireLiveLocation, []byte(`nope`))); err == nil {
		t.Fatalf("expected error for malformed payload")
	}
}
