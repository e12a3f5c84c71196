package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkingConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ChunkingConfig
		wantErr bool
	}{
		{
			name:    "valid",
			cfg:     ChunkingConfig{MaxTokens: 512, OverlapTokens: 64, MinTokens: 32},
			wantErr: false,
		},
		{
			name:    "min not less than max",
			cfg:     ChunkingConfig{MaxTokens: 512, OverlapTokens: 64, MinTokens: 512},
			wantErr: true,
		},
		{
			name:    "overlap not less than max",
			cfg:     ChunkingConfig{MaxTokens: 512, OverlapTokens: 512, MinTokens: 32},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	cfg := &Config{
		Chunking:  ChunkingConfig{MaxTokens: 512, OverlapTokens: 64, MinTokens: 32},
		Embedding: EmbeddingConfig{Dim: 768},
	}
	require.NoError(t, cfg.Validate())

	cfg.Embedding.Dim = 0
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
}
