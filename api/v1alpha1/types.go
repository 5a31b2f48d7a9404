package v1alpha1

import (
	"time"
)

type DeviceType string

const (
	DeviceTypeSensor   DeviceType = "sensor"
	DeviceTypeGateway  DeviceType = "gateway"
	DeviceTypeActuator DeviceType = "actuator"
	DeviceTypeHybrid   DeviceType = "hybrid"
)

type DeviceStatus string

const (
	DeviceStatusRegistered     DeviceStatus = "registered"
	DeviceStatusActive         DeviceStatus = "active"
	DeviceStatusInactive       DeviceStatus = "inactive"
	DeviceStatusMaintenance    DeviceStatus = "maintenance"
	DeviceStatusDecommissioned DeviceStatus = "decommissioned"
)

// Device is the persisted fleet member. Devices are never deleted,
// decommissioning is a status change.
type Device struct {
	Id              string         `json:"id"`
	SerialNumber    string         `json:"serial_number"`
	DeviceType      DeviceType     `json:"device_type"`
	Status          DeviceStatus   `json:"status"`
	FirmwareVersion string         `json:"firmware_version"`
	Metadata        map[string]any `json:"metadata"`
	RegisteredAt    time.Time      `json:"registered_at"`
	LastSeen        *time.Time     `json:"last_seen,omitempty"`
	Location        *string        `json:"location,omitempty"`
	GroupId         *string        `json:"group_id,omitempty"`
}

// DeviceRegistration is the request body for device creation.
type DeviceRegistration struct {
	SerialNumber    string         `json:"serial_number"`
	DeviceType      DeviceType     `json:"device_type"`
	FirmwareVersion string         `json:"firmware_version"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	Location        *string        `json:"location,omitempty"`
	GroupId         *string        `json:"group_id,omitempty"`
}

// DeviceUpdate carries a partial update, only present fields are applied.
type DeviceUpdate struct {
	Status   *DeviceStatus  `json:"status,omitempty"`
	Location *string        `json:"location,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
	GroupId  *string        `json:"group_id,omitempty"`
}

type TelemetryPoint struct {
	DeviceId  string         `json:"device_id"`
	Timestamp time.Time      `json:"timestamp"`
	Metric    string         `json:"metric"`
	Value     float64        `json:"value"`
	Unit      string         `json:"unit"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

type TelemetryBatch struct {
	DeviceId string           `json:"device_id"`
	Points   []TelemetryPoint `json:"points"`
}

// TelemetryQuery selects stored points. A nil Metric matches every metric the
// device has reported.
type TelemetryQuery struct {
	DeviceId  string     `json:"device_id"`
	Metric    *string    `json:"metric,omitempty"`
	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`
	Limit     int        `json:"limit"`
}

type RuleOperator string

const (
	RuleOperatorGt RuleOperator = "gt"
	RuleOperatorLt RuleOperator = "lt"
	RuleOperatorEq RuleOperator = "eq"
	RuleOperatorNe RuleOperator = "ne"
)

type AlertSeverity string

const (
	AlertSeverityInfo     AlertSeverity = "info"
	AlertSeverityWarning  AlertSeverity = "warning"
	AlertSeverityCritical AlertSeverity = "critical"
)

type AlertStatus string

const (
	AlertStatusOpen         AlertStatus = "open"
	AlertStatusAcknowledged AlertStatus = "acknowledged"
	AlertStatusResolved     AlertStatus = "resolved"
)

type AlertRule struct {
	Id        string        `json:"id"`
	DeviceId  *string       `json:"device_id,omitempty"`
	GroupId   *string       `json:"group_id,omitempty"`
	Metric    string        `json:"metric"`
	Operator  RuleOperator  `json:"operator"`
	Threshold float64       `json:"threshold"`
	Severity  AlertSeverity `json:"severity"`
	Enabled   bool          `json:"enabled"`
	CreatedAt time.Time     `json:"created_at"`
}

type AlertRuleCreate struct {
	DeviceId  *string       `json:"device_id,omitempty"`
	GroupId   *string       `json:"group_id,omitempty"`
	Metric    string        `json:"metric"`
	Operator  RuleOperator  `json:"operator"`
	Threshold float64       `json:"threshold"`
	Severity  AlertSeverity `json:"severity"`
}

type Alert struct {
	Id             string        `json:"id"`
	RuleId         string        `json:"rule_id"`
	DeviceId       string        `json:"device_id"`
	Severity       AlertSeverity `json:"severity"`
	Status         AlertStatus   `json:"status"`
	Message        string        `json:"message"`
	Value          float64       `json:"value"`
	Threshold      float64       `json:"threshold"`
	TriggeredAt    time.Time     `json:"triggered_at"`
	AcknowledgedAt *time.Time    `json:"acknowledged_at,omitempty"`
	ResolvedAt     *time.Time    `json:"resolved_at,omitempty"`
}

type UpdateStatus string

const (
	UpdateStatusPending     UpdateStatus = "pending"
	UpdateStatusDownloading UpdateStatus = "downloading"
	UpdateStatusDownloaded  UpdateStatus = "downloaded"
	UpdateStatusInstalling  UpdateStatus = "installing"
	UpdateStatusInstalled   UpdateStatus = "installed"
	UpdateStatusFailed      UpdateStatus = "failed"
	UpdateStatusRolledBack  UpdateStatus = "rolled_back"
)

// IsTerminal reports whether the update can no longer make progress.
func (s UpdateStatus) IsTerminal() bool {
	switch s {
	case UpdateStatusInstalled, UpdateStatusFailed, UpdateStatusRolledBack:
		return true
	default:
		return false
	}
}

type FirmwareUpdate struct {
	Id          string       `json:"id"`
	DeviceId    string       `json:"device_id"`
	FromVersion string       `json:"from_version"`
	ToVersion   string       `json:"to_version"`
	Status      UpdateStatus `json:"status"`
	Progress    int          `json:"progress"`
	StartedAt   time.Time    `json:"started_at"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
	Error       *string      `json:"error,omitempty"`
}

type FirmwareUpdateRequest struct {
	DeviceId  string `json:"device_id"`
	ToVersion string `json:"to_version"`
	Force     bool   `json:"force"`
}

type FirmwareMetadata struct {
	Version              string    `json:"version"`
	SizeBytes            int64     `json:"size_bytes"`
	Checksum             string    `json:"checksum"`
	ReleaseNotes         string    `json:"release_notes"`
	MinCompatibleVersion string    `json:"min_compatible_version"`
	CreatedAt            time.Time `json:"created_at"`
}

// Event is one record of the durable per-topic log.
type Event struct {
	Id        string         `json:"id"`
	Topic     string         `json:"topic"`
	Type      string         `json:"type"`
	Payload   map[string]any `json:"payload"`
	Timestamp time.Time      `json:"timestamp"`
}

// Version reports the service build version.
type Version struct {
	Version string `json:"version"`
}

type DeviceMetrics struct {
	DeviceId         string     `json:"device_id"`
	UptimeSeconds    int64      `json:"uptime_seconds"`
	MessageCount     int64      `json:"message_count"`
	LastSeen         *time.Time `json:"last_seen,omitempty"`
	ErrorCount       int64      `json:"error_count"`
	AverageLatencyMs float64    `json:"average_latency_ms"`
}

type FleetAnalytics struct {
	TotalDevices         int     `json:"total_devices"`
	ActiveDevices        int     `json:"active_devices"`
	InactiveDevices      int     `json:"inactive_devices"`
	TotalMessages        int64   `json:"total_messages"`
	MessagesPerSecond    float64 `json:"messages_per_second"`
	ActiveAlerts         int64   `json:"active_alerts"`
	PendingUpdates       int     `json:"pending_updates"`
	AverageUptimeSeconds float64 `json:"average_uptime_seconds"`
}

type GroupAnalytics struct {
	GroupId              string  `json:"group_id"`
	DeviceCount          int     `json:"device_count"`
	ActiveCount          int     `json:"active_count"`
	TotalMessages        int64   `json:"total_messages"`
	AlertCount           int64   `json:"alert_count"`
	AverageUptimeSeconds float64 `json:"average_uptime_seconds"`
}
