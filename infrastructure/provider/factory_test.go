package provider

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBackend(t *testing.T) {
	tests := []struct {
		name     string
		spec     Spec
		wantType any
		wantName string
	}{
		{
			name:     "openai",
			spec:     Spec{Name: "remote", Type: TypeOpenAI, Model: "m", Timeout: time.Second},
			wantType: &OpenAIBackend{},
			wantName: "remote",
		},
		{
			name:     "empty type defaults to openai",
			spec:     Spec{Name: "remote"},
			wantType: &OpenAIBackend{},
			wantName: "remote",
		},
		{
			name:     "local",
			spec:     Spec{Name: "onnx", Type: TypeLocal, ModelDir: "/models"},
			wantType: &LocalBackend{},
			wantName: "onnx",
		},
		{
			name:     "cached",
			spec:     Spec{Name: "remote", Type: TypeOpenAI, CacheSize: 10},
			wantType: &CachedBackend{},
			wantName: "remote",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend, err := NewBackend(tt.spec)
			require.NoError(t, err)
			assert.IsType(t, tt.wantType, backend)
			assert.Equal(t, tt.wantName, backend.Name())
		})
	}
}

func TestNewBackend_UnknownType(t *testing.T) {
	_, err := NewBackend(Spec{Name: "x", Type: "grpc"})
	require.ErrorIs(t, err, ErrUnknownBackendType)
}
