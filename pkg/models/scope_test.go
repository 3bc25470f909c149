package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScope_Matches(t *testing.T) {
	tests := []struct {
		name    string
		mapping Scope
		event   Scope
		want    bool
	}{
		{"wildcard matches unscoped event", AnyScope(), AnyScope(), true},
		{"wildcard matches scoped event", AnyScope(), ExactScope(42), true},
		{"bound mapping rejects unscoped event", ExactScope(42), AnyScope(), false},
		{"bound mapping matches same id", ExactScope(42), ExactScope(42), true},
		{"bound mapping rejects other id", ExactScope(42), ExactScope(7), false},
		{"zero id is still bound", ExactScope(0), AnyScope(), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.mapping.Matches(tt.event))
		})
	}
}

func TestScope_JSON(t *testing.T) {
	type wrapper struct {
		WorkflowID Scope `json:"workflow_id"`
	}

	data, err := json.Marshal(wrapper{WorkflowID: ExactScope(7)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"workflow_id":7}`, string(data))

	data, err = json.Marshal(wrapper{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"workflow_id":null}`, string(data))

	var w wrapper

	require.NoError(t, json.Unmarshal([]byte(`{"workflow_id":0}`), &w))
	id, ok := w.WorkflowID.ID()
	assert.True(t, ok)
	assert.Equal(t, int64(0), id)

	w = wrapper{WorkflowID: ExactScope(3)}
	require.NoError(t, json.Unmarshal([]byte(`{"workflow_id":null}`), &w))
	assert.True(t, w.WorkflowID.IsAny())

	w = wrapper{}
	require.NoError(t, json.Unmarshal([]byte(`{}`), &w))
	assert.True(t, w.WorkflowID.IsAny())

	assert.Error(t, json.Unmarshal([]byte(`{"workflow_id":"x"}`), &w))
}

func TestScope_SQL(t *testing.T) {
	v, err := AnyScope().Value()
	require.NoError(t, err)
	assert.Nil(t, v)

	v, err = ExactScope(9).Value()
	require.NoError(t, err)
	assert.Equal(t, int64(9), v)

	var s Scope

	require.NoError(t, s.Scan(int64(5)))
	assert.Equal(t, ExactScope(5), s)

	require.NoError(t, s.Scan(nil))
	assert.True(t, s.IsAny())

	require.NoError(t, s.Scan([]byte("12")))
	assert.Equal(t, ExactScope(12), s)

	assert.Error(t, s.Scan("nope"))
}
