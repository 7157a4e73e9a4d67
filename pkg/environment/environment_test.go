package environment_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gnosis118/paper-n-print-sub004/pkg/environment"
)

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want environment.Environment
	}{
		{name: "production", in: "production", want: environment.Production},
		{name: "production alias", in: "prod", want: environment.Production},
		{name: "staging alias with spaces", in: " Stage ", want: environment.Staging},
		{name: "development", in: "development", want: environment.Development},
		{name: "empty falls back to development", in: "", want: environment.Development},
		{name: "unknown falls back to development", in: "qa", want: environment.Development},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, environment.Parse(tt.in))
		})
	}
}

func TestContext(t *testing.T) {
	t.Parallel()

	t.Run("round trips the environment", func(t *testing.T) {
		t.Parallel()
		ctx := environment.WithContext(context.Background(), environment.Staging)
		assert.Equal(t, environment.Staging, environment.FromContext(ctx))
		assert.True(t, environment.FromContext(ctx).IsStaging())
	})

	t.Run("defaults to development", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, environment.Development, environment.FromContext(context.Background()))
	})
}
