// Package alerts implements the Alert Service: it turns Rule Engine actions
// into tracked alert records, owns the active/resolved transition, and fans
// out push notifications to clients without a live transport attached.
package alerts

import "encoding/json"

// Level is the alert severity.
type Level string

const (
	LevelInfo      Level = "info"
	LevelWarning   Level = "warning"
	LevelCritical  Level = "critical"
	LevelEmergency Level = "emergency"
)

// Status is the alert's lifecycle stage.
type Status string

const (
	StatusActive   Status = "active"
	StatusResolved Status = "resolved"
	StatusExpired  Status = "expired"
)

// Alert is the record stored at alerts.active/alerts.resolved. It is a typed
// struct at the Go boundary, (de)serialized into/out of the document's
// generic map[string]any tree on every read and write.
type Alert struct {
	ID                string         `json:"id"`
	Type              string         `json:"type,omitempty"`
	Category          string         `json:"category,omitempty"`
	Source            string         `json:"source,omitempty"`
	Level             Level          `json:"level"`
	Label             string         `json:"label"`
	Message           string         `json:"message"`
	Timestamp         string         `json:"timestamp"`
	Acknowledged      bool           `json:"acknowledged"`
	Muted             bool           `json:"muted"`
	MutedUntil        *string        `json:"mutedUntil,omitempty"`
	Status            Status         `json:"status"`
	Trigger           string         `json:"trigger,omitempty"`
	RuleID            string         `json:"ruleId,omitempty"`
	Data              map[string]any `json:"data,omitempty"`
	Actions           []string       `json:"actions,omitempty"`
	PhoneNotification bool           `json:"phoneNotification,omitempty"`
	Sticky            bool           `json:"sticky,omitempty"`
	AutoResolvable    bool           `json:"autoResolvable,omitempty"`
	AutoExpire        bool           `json:"autoExpire,omitempty"`
	ExpiresIn         int64          `json:"expiresIn,omitempty"`
	ExpiresAt         *string        `json:"expiresAt,omitempty"`
	ResolvedAt        *string        `json:"resolvedAt,omitempty"`
	ResolutionData    map[string]any `json:"resolutionData,omitempty"`
}

// alertToMap serializes an Alert into the generic JSON-shaped value the
// document stores at alerts.active/alerts.resolved.
func alertToMap(a Alert) (map[string]any, error) {
	raw, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// mapToAlert deserializes a document-stored record back into an Alert.
func mapToAlert(m map[string]any) (Alert, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return Alert{}, err
	}
	var a Alert
	err = json.Unmarshal(raw, &a)
	return a, err
}
