// Package notify publishes registry change notifications as CloudEvents.
package notify

import (
	"encoding/json"
	"time"
)

// Event types
const (
	TypeCreated = "resource.created"
	TypeChanged = "resource.changed"
	TypeDeleted = "resource.deleted"
)

// SpecVersion is the CloudEvents version of every emitted event
const SpecVersion = "1.0"

// Event is a CloudEvents 1.0 event in structured JSON mode
type Event struct {
	ID              string          `json:"id"`
	SpecVersion     string          `json:"specversion"`
	Type            string          `json:"type"`
	Source          string          `json:"source"`
	Subject         string          `json:"subject,omitempty"`
	Time            time.Time       `json:"time"`
	DataContentType string          `json:"datacontenttype,omitempty"`
	Data            json.RawMessage `json:"data,omitempty"`
}
