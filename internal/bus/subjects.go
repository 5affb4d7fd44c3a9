package bus

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/google/uuid"
)

// Subject layout (enforced by the bus as the authorization boundary):
//
//	tenant.{tenant_id}.device.{device_id}.{message_type}  operational traffic
//	tenant.{tenant_id}.keys.rotation                      rotation events
//
// The tenant UUID is always the leftmost segment after the literal "tenant",
// so a credential scoped to one tenant prefix can never name another tenant's
// subjects. Construction fails on malformed input instead of producing an
// ambiguous subject.

var (
	ErrInvalidTenantID    = errors.New("bus: invalid tenant id")
	ErrInvalidDeviceID    = errors.New("bus: invalid device id")
	ErrInvalidMessageType = errors.New("bus: invalid message type")
)

// tokenRe restricts device ids and message types to dot-free tokens so they
// cannot smuggle extra subject segments or wildcards.
var tokenRe = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// Subject builds the operational subject for a tenant device.
func Subject(tenantID, deviceID, messageType string) (string, error) {
	if err := validateTenantID(tenantID); err != nil {
		return "", err
	}
	if !tokenRe.MatchString(deviceID) {
		return "", fmt.Errorf("%w: %q", ErrInvalidDeviceID, deviceID)
	}
	if !tokenRe.MatchString(messageType) {
		return "", fmt.Errorf("%w: %q", ErrInvalidMessageType, messageType)
	}
	return fmt.Sprintf("tenant.%s.device.%s.%s", tenantID, deviceID, messageType), nil
}

// RotationSubject builds the per-tenant subject used only for RotationEvent
// delivery.
func RotationSubject(tenantID string) (string, error) {
	if err := validateTenantID(tenantID); err != nil {
		return "", err
	}
	return fmt.Sprintf("tenant.%s.keys.rotation", tenantID), nil
}

// TenantPrefix returns the namespace prefix a tenant's credentials are
// authorized for. Every subject of the tenant starts with this prefix.
func TenantPrefix(tenantID string) (string, error) {
	if err := validateTenantID(tenantID); err != nil {
		return "", err
	}
	return fmt.Sprintf("tenant.%s.", tenantID), nil
}

func validateTenantID(tenantID string) error {
	if tenantID == "" {
		return ErrInvalidTenantID
	}
	if _, err := uuid.Parse(tenantID); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidTenantID, tenantID)
	}
	return nil
}
