package series

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckArchiveOrder(t *testing.T) {
	tests := []struct {
		name    string
		paths   []string
		wantErr bool
	}{
		{
			name: "chronological order passes",
			paths: []string{
				"data/raw/1h/BTCUSDT-1h-2024-11.zip",
				"data/raw/1h/BTCUSDT-1h-2024-12.zip",
				"data/raw/1h/BTCUSDT-1h-2025-01.zip",
			},
		},
		{
			name: "gap in months still passes",
			paths: []string{
				"BTCUSDT-1h-2024-01.zip",
				"BTCUSDT-1h-2024-05.zip",
			},
		},
		{
			name: "repeated month passes",
			paths: []string{
				"BTCUSDT-1h-2024-01.zip",
				"BTCUSDT-1h-2024-01.zip",
			},
		},
		{
			name:  "empty input passes",
			paths: nil,
		},
		{
			name: "year inversion fails",
			paths: []string{
				"BTCUSDT-1h-2025-01.zip",
				"BTCUSDT-1h-2024-12.zip",
			},
			wantErr: true,
		},
		{
			name: "month inversion fails",
			paths: []string{
				"BTCUSDT-1h-2024-03.zip",
				"BTCUSDT-1h-2024-02.zip",
			},
			wantErr: true,
		},
		{
			name:    "malformed name fails",
			paths:   []string{"notakline.zip"},
			wantErr: true,
		},
		{
			name:    "non-numeric month fails",
			paths:   []string{"BTCUSDT-1h-2024-xx.zip"},
			wantErr: true,
		},
		{
			name:    "month out of range fails",
			paths:   []string{"BTCUSDT-1h-2024-13.zip"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckArchiveOrder(tt.paths)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
