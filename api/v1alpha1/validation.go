package v1alpha1

import (
	"fmt"

	"github.com/samber/lo"
)

const maxSerialNumberLength = 256

type Validator interface {
	Validate() []error
}

var (
	deviceTypes   = []DeviceType{DeviceTypeSensor, DeviceTypeGateway, DeviceTypeActuator, DeviceTypeHybrid}
	ruleOperators = []RuleOperator{RuleOperatorGt, RuleOperatorLt, RuleOperatorEq, RuleOperatorNe}
	severities    = []AlertSeverity{AlertSeverityInfo, AlertSeverityWarning, AlertSeverityCritical}
)

func (r DeviceRegistration) Validate() []error {
	allErrs := []error{}
	if r.SerialNumber == "" {
		allErrs = append(allErrs, fmt.Errorf("serial_number must not be empty"))
	}
	if len(r.SerialNumber) > maxSerialNumberLength {
		allErrs = append(allErrs, fmt.Errorf("serial_number exceeds %d characters", maxSerialNumberLength))
	}
	if !lo.Contains(deviceTypes, r.DeviceType) {
		allErrs = append(allErrs, fmt.Errorf("unknown device_type: %s", r.DeviceType))
	}
	if r.FirmwareVersion == "" {
		allErrs = append(allErrs, fmt.Errorf("firmware_version must not be empty"))
	}
	return allErrs
}

func (p TelemetryPoint) Validate() []error {
	allErrs := []error{}
	if p.DeviceId == "" {
		allErrs = append(allErrs, fmt.Errorf("device_id must not be empty"))
	}
	if p.Metric == "" {
		allErrs = append(allErrs, fmt.Errorf("metric must not be empty"))
	}
	if p.Timestamp.IsZero() {
		allErrs = append(allErrs, fmt.Errorf("timestamp must be set"))
	}
	return allErrs
}

func (b TelemetryBatch) Validate() []error {
	allErrs := []error{}
	if b.DeviceId == "" {
		allErrs = append(allErrs, fmt.Errorf("device_id must not be empty"))
	}
	if len(b.Points) == 0 {
		allErrs = append(allErrs, fmt.Errorf("batch must contain at least one point"))
	}
	for i, p := range b.Points {
		for _, err := range p.Validate() {
			allErrs = append(allErrs, fmt.Errorf("points[%d]: %w", i, err))
		}
	}
	return allErrs
}

func (r AlertRuleCreate) Validate() []error {
	allErrs := []error{}
	if r.Metric == "" {
		allErrs = append(allErrs, fmt.Errorf("metric must not be empty"))
	}
	if !lo.Contains(ruleOperators, r.Operator) {
		allErrs = append(allErrs, fmt.Errorf("unknown operator: %s", r.Operator))
	}
	if !lo.Contains(severities, r.Severity) {
		allErrs = append(allErrs, fmt.Errorf("unknown severity: %s", r.Severity))
	}
	return allErrs
}

func (m FirmwareMetadata) Validate() []error {
	allErrs := []error{}
	if m.Version == "" {
		allErrs = append(allErrs, fmt.Errorf("version must not be empty"))
	}
	if m.SizeBytes <= 0 {
		allErrs = append(allErrs, fmt.Errorf("size_bytes must be positive"))
	}
	if m.Checksum == "" {
		allErrs = append(allErrs, fmt.Errorf("checksum must not be empty"))
	}
	return allErrs
}

func (r FirmwareUpdateRequest) Validate() []error {
	allErrs := []error{}
	if r.DeviceId == "" {
		allErrs = append(allErrs, fmt.Errorf("device_id must not be empty"))
	}
	if r.ToVersion == "" {
		allErrs = append(allErrs, fmt.Errorf("to_version must not be empty"))
	}
	return allErrs
}
