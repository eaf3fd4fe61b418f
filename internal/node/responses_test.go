package node

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firefly/internal/models"
)

// Message shapes as emitted by the node's DeployGrpcServiceV1 and ProposeGrpcServiceV1
func TestParseDeployResult(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		want    models.DeployID
		wantErr bool
	}{
		{
			name: "signature id",
			text: "Success! DeployId is: 3045022100d8a1c4b2e7f0a9c3b6d5e4f3a2b1c0d9e8f7a6b5c4d3e2f1a0b9c8d7e6f5a4b302201a2b",
			want: "3045022100d8a1c4b2e7f0a9c3b6d5e4f3a2b1c0d9e8f7a6b5c4d3e2f1a0b9c8d7e6f5a4b302201a2b",
		},
		{name: "short id", text: "Success! DeployId is: abc", want: "abc"},
		{name: "missing id", text: "Success! DeployId is: ", wantErr: true},
		{name: "lowercase", text: "success! deployid is: abc", wantErr: true},
		{name: "other text", text: "Deploy received", wantErr: true},
		{name: "empty", text: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDeployResult(tt.text)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnexpectedResponse)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseProposeResult(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		want    models.BlockID
		wantErr bool
	}{
		{
			name: "block hash",
			text: "Success! Block 5c1e6a9f0b3d8e2c7a4f1b6d9e0c3a8f5b2d7e4c1a6f9b0d3e8c5a2f7b4d1e6c created and added.",
			want: "5c1e6a9f0b3d8e2c7a4f1b6d9e0c3a8f5b2d7e4c1a6f9b0d3e8c5a2f7b4d1e6c",
		},
		{name: "missing suffix", text: "Success! Block abc created", wantErr: true},
		{name: "blank hash", text: "Success! Block  created and added.", wantErr: true},
		{name: "empty hash", text: "Success! Block created and added.", wantErr: true},
		{name: "async reply", text: "Propose started (seqNum 4)", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseProposeResult(tt.text)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnexpectedResponse)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
