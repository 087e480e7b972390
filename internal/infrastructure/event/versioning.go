package event

import (
	"encoding/json"
	"fmt"
	"sync"
)

// EventUpgrader transforms a payload from one schema version to the next.
type EventUpgrader interface {
	// SourceVersion returns the version this upgrader reads from
	SourceVersion() int
	// Upgrade transforms the payload to SourceVersion()+1
	Upgrade(payload []byte) ([]byte, error)
}

type versionedType struct {
	current   int
	upgraders map[int]EventUpgrader
}

// VersionRegistry knows the current schema version of each event type and
// how to bring older payloads up to it. Unregistered types are at version 1.
type VersionRegistry struct {
	mu    sync.RWMutex
	types map[string]*versionedType
}

// NewVersionRegistry creates a new version registry
func NewVersionRegistry() *VersionRegistry {
	return &VersionRegistry{
		types: make(map[string]*versionedType),
	}
}

// Register declares current as the latest version of eventType. There must be
// one upgrader for every version below current.
func (r *VersionRegistry) Register(eventType string, current int, upgraders ...EventUpgrader) error {
	if current < 1 {
		return fmt.Errorf("invalid current version %d for event type %s", current, eventType)
	}
	byVersion := make(map[int]EventUpgrader, len(upgraders))
	for _, u := range upgraders {
		byVersion[u.SourceVersion()] = u
	}
	for v := 1; v < current; v++ {
		if _, ok := byVersion[v]; !ok {
			return fmt.Errorf("missing upgrader for version %d -> %d for event type %s", v, v+1, eventType)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.types[eventType] = &versionedType{current: current, upgraders: byVersion}
	return nil
}

// CurrentVersion returns the latest schema version of eventType
func (r *VersionRegistry) CurrentVersion(eventType string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if t, ok := r.types[eventType]; ok {
		return t.current
	}
	return 1
}

// Upgrade brings payload from version from to the current version of eventType.
// Versions newer than the current one are refused.
func (r *VersionRegistry) Upgrade(eventType string, payload []byte, from int) ([]byte, error) {
	if from < 1 {
		from = 1
	}

	r.mu.RLock()
	t, ok := r.types[eventType]
	r.mu.RUnlock()

	current := 1
	if ok {
		current = t.current
	}
	if from > current {
		return nil, fmt.Errorf("%w: %s v%d, newest known is v%d", errUnsupportedVersion, eventType, from, current)
	}

	out := payload
	for v := from; v < current; v++ {
		var err error
		out, err = t.upgraders[v].Upgrade(out)
		if err != nil {
			return nil, fmt.Errorf("upgrade %s v%d -> v%d: %w", eventType, v, v+1, err)
		}
	}
	return out, nil
}

// FieldUpgrader upgrades a JSON object payload by transforming its top-level fields
type FieldUpgrader struct {
	source    int
	transform func(fields map[string]json.RawMessage) error
}

// NewFieldUpgrader creates an upgrader from source to source+1
func NewFieldUpgrader(source int, transform func(fields map[string]json.RawMessage) error) *FieldUpgrader {
	return &FieldUpgrader{source: source, transform: transform}
}

// RenameFields returns an upgrader that renames top-level fields. Presence is
// preserved: a field absent in the old payload stays absent.
func RenameFields(source int, renames map[string]string) *FieldUpgrader {
	return NewFieldUpgrader(source, func(fields map[string]json.RawMessage) error {
		for from, to := range renames {
			v, ok := fields[from]
			if !ok {
				continue
			}
			delete(fields, from)
			if _, exists := fields[to]; !exists {
				fields[to] = v
			}
		}
		return nil
	})
}

// SourceVersion returns the source version
func (u *FieldUpgrader) SourceVersion() int {
	return u.source
}

// Upgrade transforms the payload
func (u *FieldUpgrader) Upgrade(payload []byte) ([]byte, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, fmt.Errorf("payload is not a JSON object: %w", err)
	}
	if fields == nil {
		return nil, fmt.Errorf("payload is not a JSON object")
	}
	if err := u.transform(fields); err != nil {
		return nil, err
	}
	return json.Marshal(fields)
}

var _ EventUpgrader = (*FieldUpgrader)(nil)
