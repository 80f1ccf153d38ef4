package scheduler

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const TaskReapStaleSessions = "hotline.sessions.reap"

// ReapPayload identifies who asked for a sweep. The sweep itself reads no
// payload fields.
type ReapPayload struct {
	Trigger     string    `json:"trigger"`
	RequestedAt time.Time `json:"requestedAt"`
}

func NewReapTask(payload ReapPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReapStaleSessions, data), nil
}

func ParseReapPayload(task *asynq.Task) (ReapPayload, error) {
	var payload ReapPayload
	if len(task.Payload()) == 0 {
		return payload, nil
	}
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return ReapPayload{}, err
	}
	return payload, nil
}
