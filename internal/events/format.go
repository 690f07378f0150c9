package events

import (
	"encoding/json"
	"fmt"
	"time"
)

// Describe renders a received lifecycle message as a single line for
// `harvest watch`.
func Describe(msg Message) (string, error) {
	switch msg.Topic {
	case TopicRunStopped:
		var ev RunStopped
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			return "", fmt.Errorf("decoding %s: %w", msg.Topic, err)
		}
		return fmt.Sprintf("%s stopped reason=%s admitted=%d", ev.RunID, ev.Reason, ev.EventsAdmitted), nil
	case TopicRunStarted, TopicRunCompleted, TopicRunFailed:
		// All three carry the same run payload.
		var ev RunStarted
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			return "", fmt.Errorf("decoding %s: %w", msg.Topic, err)
		}
		if ev.Run == nil {
			return "", fmt.Errorf("decoding %s: missing run", msg.Topic)
		}
		r := ev.Run
		switch msg.Topic {
		case TopicRunStarted:
			return fmt.Sprintf("%s started filter=%q time_limit=%ds event_limit=%d", r.ID, r.Filter, r.TimeLimitSeconds, r.EventLimit), nil
		case TopicRunCompleted:
			return fmt.Sprintf("%s completed records=%d output=%s in %s", r.ID, r.RecordsWritten, r.OutputPath, r.Duration().Round(time.Millisecond)), nil
		default:
			return fmt.Sprintf("%s failed: %s", r.ID, r.Error), nil
		}
	default:
		return fmt.Sprintf("%s %s", msg.Topic, msg.Data), nil
	}
}
