package alerts

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/rathix/relay/internal/document"
)

// CreateAlert materializes a fresh alert record from data, appends it to
// alerts.active, and fans the alert out to push. The identity and lifecycle
// fields (id, timestamp, status, acknowledged) are always stamped fresh,
// regardless of what data carries.
func (s *Service) CreateAlert(ctx context.Context, data map[string]any) (*Alert, error) {
	alert := s.buildAlert(data)

	record, err := alertToMap(alert)
	if err != nil {
		return nil, err
	}

	ops := []document.Op{{Op: "add", Path: "/alerts/active/-", Value: record}}
	if err := s.core.ApplyPatchTyped(ctx, ops, "alert"); err != nil {
		return nil, err
	}

	s.dispatchPush(ctx, alert)
	return &alert, nil
}

func (s *Service) buildAlert(data map[string]any) Alert {
	var a Alert
	if m, err := mapToAlert(data); err == nil {
		a = m
	}

	now := s.clock()
	a.ID = uuid.NewString()
	a.Timestamp = now.UTC().Format(time.RFC3339Nano)
	a.Status = StatusActive
	a.Acknowledged = false

	if a.Level == "" {
		a.Level = LevelInfo
	}
	if a.AutoExpire && a.ExpiresIn > 0 {
		expiresAt := now.Add(time.Duration(a.ExpiresIn) * time.Millisecond).UTC().Format(time.RFC3339Nano)
		a.ExpiresAt = &expiresAt
	}
	return a
}
