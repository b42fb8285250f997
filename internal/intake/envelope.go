package intake

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"vidproc/internal/services"
)

// pushEnvelope is the body posted by the storage notification subscription.
type pushEnvelope struct {
	Message struct {
		Data       string            `json:"data"`
		MessageID  string            `json:"messageId,omitempty"`
		Attributes map[string]string `json:"attributes,omitempty"`
	} `json:"message"`
	Subscription string `json:"subscription,omitempty"`
}

// objectEvent is the decoded message payload.
type objectEvent struct {
	Name   string `json:"name"`
	Bucket string `json:"bucket,omitempty"`
}

// decodeNotification extracts the raw object name from a push envelope.
func decodeNotification(r io.Reader) (objectEvent, string, error) {
	var env pushEnvelope
	dec := json.NewDecoder(r)
	if err := dec.Decode(&env); err != nil {
		return objectEvent{}, "", badRequest("malformed envelope", err)
	}
	data := strings.TrimSpace(env.Message.Data)
	if data == "" {
		return objectEvent{}, "", badRequest("message data is required", nil)
	}
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return objectEvent{}, "", badRequest("message data is not base64", err)
	}
	var event objectEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		return objectEvent{}, "", badRequest("message data is not JSON", err)
	}
	if strings.TrimSpace(event.Name) == "" {
		return objectEvent{}, "", badRequest("missing filename", nil)
	}
	return event, env.Message.MessageID, nil
}

func badRequest(message string, err error) error {
	if err != nil {
		message = fmt.Sprintf("%s: %v", message, err)
	}
	return services.Wrap(services.ErrValidation, "intake", "decode", message, nil)
}
