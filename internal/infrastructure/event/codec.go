package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/erp/invsync/internal/domain/shared"
	"github.com/go-playground/validator/v10"
)

var errUnsupportedVersion = errors.New("unsupported schema version")

// Payload error codes
const (
	CodePayloadMalformed          = "PAYLOAD_MALFORMED"
	CodePayloadInvalid            = "PAYLOAD_INVALID"
	CodeUnsupportedSchemaVersion  = "UNSUPPORTED_SCHEMA_VERSION"
	CodePayloadUpgradeFailed      = "PAYLOAD_UPGRADE_FAILED"
	CodeEventPayloadNotSerialized = "EVENT_NOT_SERIALIZABLE"
)

// PayloadCodec turns domain events into payload bytes and payload bytes back
// into typed structs. Decoding upgrades old schema versions and validates the
// struct tags; every failure is a validation error so the dispatcher parks
// the delivery instead of retrying it.
type PayloadCodec struct {
	versions *VersionRegistry
	validate *validator.Validate
}

// NewPayloadCodec creates a codec backed by the given version registry
func NewPayloadCodec(versions *VersionRegistry) *PayloadCodec {
	if versions == nil {
		versions = NewVersionRegistry()
	}
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &PayloadCodec{versions: versions, validate: v}
}

// Versions returns the version registry
func (c *PayloadCodec) Versions() *VersionRegistry {
	return c.versions
}

// Encode validates and serializes a domain event
func (c *PayloadCodec) Encode(event shared.DomainEvent) ([]byte, error) {
	if err := c.validateStruct(event); err != nil {
		return nil, err
	}
	data, err := json.Marshal(event)
	if err != nil {
		return nil, shared.NewValidationError(CodeEventPayloadNotSerialized,
			fmt.Sprintf("cannot serialize %s: %v", event.EventType(), err))
	}
	return data, nil
}

// Decode upgrades the envelope payload to the current schema version and
// unmarshals it into target, which must be a pointer to a struct
func (c *PayloadCodec) Decode(env *shared.Envelope, target any) error {
	payload, err := c.Upgrade(env)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(payload, target); err != nil {
		return shared.NewValidationError(CodePayloadMalformed,
			fmt.Sprintf("cannot decode %s payload: %v", env.EventType, err))
	}
	return c.validateStruct(target)
}

// Upgrade returns the envelope payload at the current schema version
func (c *PayloadCodec) Upgrade(env *shared.Envelope) ([]byte, error) {
	payload, err := c.versions.Upgrade(env.EventType, env.Payload, env.SchemaVersion)
	switch {
	case errors.Is(err, errUnsupportedVersion):
		return nil, shared.NewValidationError(CodeUnsupportedSchemaVersion, err.Error())
	case err != nil:
		return nil, shared.NewValidationError(CodePayloadUpgradeFailed, err.Error())
	}
	return payload, nil
}

func (c *PayloadCodec) validateStruct(v any) error {
	err := c.validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return shared.NewValidationError(CodePayloadInvalid, err.Error())
	}
	problems := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		problems = append(problems, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
	}
	return shared.NewValidationError(CodePayloadInvalid, "invalid payload: "+strings.Join(problems, "; "))
}
