package sqlbase

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWhere(t *testing.T) {
	var w Where

	assert.Empty(t, w.SQL())

	w.Add("is_valid")
	w.Add("action_type = ?", "HttpApi")
	w.Add("(name ILIKE ? OR description ILIKE ?)", "%a%", "%a%")

	assert.Equal(t, " WHERE is_valid AND action_type = $1 AND (name ILIKE $2 OR description ILIKE $3)", w.SQL())
	assert.Equal(t, "$4", w.Next(20))
	assert.Equal(t, []any{"HttpApi", "%a%", "%a%", 20}, w.Args())
}

func TestMigrationManager_Versions(t *testing.T) {
	m := NewMigrationManager(nil, nil, map[int]string{3: "c", 1: "a", 2: "b", 10: "d"})

	assert.Equal(t, []int{1, 2, 3, 10}, m.Versions())
	assert.Equal(t, 10, m.LatestVersion())
	assert.Equal(t, []int{3, 10}, m.pending(2))
}
