package recorder

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nodewave/flowrunner/common/redis"
)

// Events publishes task lifecycle events to the run's pub/sub channel so
// watchers can stream progress without polling the store.
type Events struct {
	runID  string
	client *redis.Client
}

func NewEvents(runID string, client *redis.Client) *Events {
	return &Events{runID: runID, client: client}
}

func (e *Events) channel() string {
	return "run:events:" + e.runID
}

func (e *Events) publish(ctx context.Context, event string, nodeID string, fields map[string]any) error {
	payload := map[string]any{
		"event":   event,
		"run_id":  e.runID,
		"node_id": nodeID,
		"at":      time.Now().UTC().Format(time.RFC3339),
	}
	for k, v := range fields {
		payload[k] = v
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", event, err)
	}
	return e.client.Publish(ctx, e.channel(), string(data))
}

func (e *Events) CreateTask(ctx context.Context, nodeID string, _ map[string]any) error {
	return e.publish(ctx, "task.created", nodeID, nil)
}

func (e *Events) UpdateTask(ctx context.Context, nodeID string, update Update) error {
	fields := map[string]any{}
	if update.Status != "" {
		fields["status"] = string(update.Status)
	}
	if update.Error != "" {
		fields["error"] = update.Error
	}
	if update.Outputs != nil {
		fields["outputs"] = update.Outputs
	}
	if update.IsDownstreamOfPause {
		fields["is_downstream_of_pause"] = true
	}
	return e.publish(ctx, "task.updated", nodeID, fields)
}
