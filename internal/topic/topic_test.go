package topic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventhub/pkg/errors"
)

func TestCompile(t *testing.T) {
	tests := []struct {
		name      string
		pattern   string
		wantError bool
	}{
		{name: "literal", pattern: "terminal.crane01.status"},
		{name: "single wildcard", pattern: "terminal.*.status"},
		{name: "multi wildcard", pattern: "a.**.z"},
		{name: "only multi", pattern: "**"},
		{name: "empty", pattern: "", wantError: true},
		{name: "blank", pattern: "   ", wantError: true},
		{name: "empty segment", pattern: "a..b", wantError: true},
		{name: "trailing dot", pattern: "a.b.", wantError: true},
		{name: "partial wildcard", pattern: "a.cr*.b", wantError: true},
		{name: "triple star", pattern: "a.***", wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Compile(tt.pattern)
			if tt.wantError {
				assert.Error(t, err)
				assert.True(t, errors.IsValidation(err))
				assert.Nil(t, m)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.pattern, m.Pattern())
		})
	}
}

func TestMatch(t *testing.T) {
	tests := []struct {
		pattern string
		topic   string
		want    bool
	}{
		{"terminal.*.status", "terminal.crane01.status", true},
		{"terminal.*.status", "terminal.crane01.alerts.status", false},
		{"terminal.*.status", "terminal.status", false},
		{"a.**.z", "a.z", true},
		{"a.**.z", "a.b.c.z", true},
		{"a.**.z", "a.b.c", false},
		{"a.**", "a", true},
		{"a.**", "a.b.c", true},
		{"**", "anything.at.all", true},
		{"**.status", "terminal.crane01.status", true},
		{"a.**.b.**.c", "a.x.b.y.z.c", true},
		{"a.**.b.**.c", "a.x.y.c", false},
		{"a.*.**", "a", false},
		{"a.*.**", "a.b", true},
		{"terminal.equipment.*", "terminal.equipment.status", true},
		{"terminal.equipment", "terminal.equipment.status", false},
		{"terminal.equipment.status", "terminal.equipment.status", true},
		{"terminal.equipment.status", "terminal.equipment", false},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+"|"+tt.topic, func(t *testing.T) {
			m := MustCompile(tt.pattern)
			assert.Equal(t, tt.want, m.Match(tt.topic))
			assert.Equal(t, tt.want, m.Match(tt.topic), "match must be deterministic")
		})
	}
}

func TestValidateTopic(t *testing.T) {
	assert.NoError(t, ValidateTopic("terminal.equipment.status"))
	assert.Error(t, ValidateTopic(""))
	assert.Error(t, ValidateTopic("a..b"))
	assert.Error(t, ValidateTopic("a.*.b"))
}
