package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/neurobridge-prereq/internal/services"
)

type ExpandTrigger struct {
	OwnerID uuid.UUID `json:"owner_id"`
	Topic   string    `json:"topic"`
}

type PropagateTrigger struct {
	OwnerID uuid.UUID `json:"owner_id"`
}

// RegisterGraphHandlers routes the expand and propagate queues to svc.
func RegisterGraphHandlers(r *Registry, q Queues, svc services.GraphService) error {
	if err := r.Register(q.Expand, func(ctx context.Context, body []byte) error {
		var in ExpandTrigger
		if err := json.Unmarshal(body, &in); err != nil {
			return fmt.Errorf("decode expand trigger: %w", err)
		}
		if in.OwnerID == uuid.Nil || strings.TrimSpace(in.Topic) == "" {
			return fmt.Errorf("expand trigger needs owner_id and topic")
		}
		_, err := svc.Expand(ctx, in.OwnerID, in.Topic)
		return err
	}); err != nil {
		return err
	}
	return r.Register(q.Propagate, func(ctx context.Context, body []byte) error {
		var in PropagateTrigger
		if err := json.Unmarshal(body, &in); err != nil {
			return fmt.Errorf("decode propagate trigger: %w", err)
		}
		if in.OwnerID == uuid.Nil {
			return fmt.Errorf("propagate trigger needs owner_id")
		}
		_, err := svc.Propagate(ctx, in.OwnerID)
		return err
	})
}
