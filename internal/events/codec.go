package events

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Decode rebuilds a message from its wire name (see Name) and JSON payload,
// as read back from the SSE stream.
func Decode(name string, data []byte) (any, error) {
	var (
		msg any
		err error
	)
	switch name {
	case "started":
		var m SessionStartedMsg
		err = json.Unmarshal(data, &m)
		msg = m
	case "file":
		var m FileStartedMsg
		err = json.Unmarshal(data, &m)
		msg = m
	case "progress":
		var m ProgressMsg
		err = json.Unmarshal(data, &m)
		msg = m
	case "paused":
		var m SessionPausedMsg
		err = json.Unmarshal(data, &m)
		msg = m
	case "resumed":
		var m SessionResumedMsg
		err = json.Unmarshal(data, &m)
		msg = m
	case "finished":
		var m SessionFinishedMsg
		err = json.Unmarshal(data, &m)
		msg = m
	case "cancelled":
		var m SessionCancelledMsg
		err = json.Unmarshal(data, &m)
		msg = m
	case "error":
		var m SessionErrorMsg
		if err = json.Unmarshal(data, &m); err == nil {
			m.Err = errors.New(m.Message)
		}
		msg = m
	default:
		return nil, fmt.Errorf("unknown event %q", name)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s event: %w", name, err)
	}
	return msg, nil
}
