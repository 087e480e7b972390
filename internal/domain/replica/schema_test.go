package replica

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/erp/invsync/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func changed(t *testing.T, body string) map[string]json.RawMessage {
	t.Helper()
	var m map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(body), &m))
	return m
}

func TestBuildChangeSet_OnlyPresentFields(t *testing.T) {
	id := uuid.New()
	cs, err := BranchSchema.BuildChangeSet(id, changed(t, `{"name":"North Branch"}`))
	require.NoError(t, err)

	assert.Equal(t, id, cs.EntityID)
	assert.Equal(t, []string{"name"}, cs.Columns())
	assert.Equal(t, "North Branch", cs.Values["name"])
	_, hasStatus := cs.Values["status"]
	assert.False(t, hasStatus, "absent status must not be defaulted")
}

func TestBuildChangeSet_ExplicitNull(t *testing.T) {
	cs, err := BranchSchema.BuildChangeSet(uuid.New(), changed(t, `{"phone":null,"manager_id":null}`))
	require.NoError(t, err)

	assert.Equal(t, []string{"manager_id", "phone"}, cs.Columns())
	value, present := cs.Values["phone"]
	assert.True(t, present)
	assert.Nil(t, value)
}

func TestBuildChangeSet_TypedFields(t *testing.T) {
	branch := uuid.New()
	cs, err := EmployeeSchema.BuildChangeSet(uuid.New(), changed(t,
		`{"branch_id":"`+branch.String()+`","hired_at":"2025-01-02T03:04:05Z","full_name":"Ana"}`))
	require.NoError(t, err)

	assert.Equal(t, branch, cs.Values["branch_id"])
	assert.Equal(t, time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC), cs.Values["hired_at"])
	assert.Equal(t, "Ana", cs.Values["full_name"])
}

func TestBuildChangeSet_UnknownFieldsAreIgnored(t *testing.T) {
	cs, err := BranchSchema.BuildChangeSet(uuid.New(), changed(t, `{"name":"A","color":"red","id":"x"}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"name"}, cs.Columns())
	assert.Equal(t, []string{"color", "id"}, cs.Ignored)
}

func TestBuildChangeSet_Invalid(t *testing.T) {
	tests := []struct {
		name string
		id   uuid.UUID
		body string
	}{
		{"missing entity id", uuid.Nil, `{"name":"A"}`},
		{"number for text", uuid.New(), `{"name":42}`},
		{"bad uuid", uuid.New(), `{"manager_id":"not-a-uuid"}`},
		{"too long", uuid.New(), `{"status":"ABCDEFGHIJKLMNOPQRSTUVWXYZ"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BranchSchema.BuildChangeSet(tt.id, changed(t, tt.body))
			require.Error(t, err)
			assert.True(t, shared.IsKind(err, shared.KindValidation))
		})
	}
}

func TestBuildChangeSet_EmptyIsNoOp(t *testing.T) {
	cs, err := BranchSchema.BuildChangeSet(uuid.New(), changed(t, `{}`))
	require.NoError(t, err)
	assert.True(t, cs.IsEmpty())
}
