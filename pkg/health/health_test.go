package health

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckerRegistryAggregatesStatus(t *testing.T) {
	tests := []struct {
		name   string
		checks []error
		want   Status
	}{
		{"all healthy", []error{nil, nil}, StatusHealthy},
		{"one degraded", []error{nil, Degraded("slow")}, StatusDegraded},
		{"unhealthy wins", []error{Degraded("slow"), errors.New("down")}, StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewCheckerRegistry()
			for i, err := range tt.checks {
				err := err
				r.Register(NewFuncChecker(string(rune('a'+i)), func(ctx context.Context) error { return err }))
			}
			assert.Equal(t, tt.want, r.Check(context.Background()).Status)
		})
	}
}

func TestScoreChecker(t *testing.T) {
	score := 95.0
	c := NewScoreChecker(func() float64 { return score })
	assert.NoError(t, c.Check(context.Background()))

	score = 60
	var degraded *DegradedError
	assert.ErrorAs(t, c.Check(context.Background()), &degraded)

	score = 10
	err := c.Check(context.Background())
	assert.Error(t, err)
	assert.False(t, errors.As(err, &degraded))
}
