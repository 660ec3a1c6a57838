package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateFlags(t *testing.T) {
	tests := []struct {
		name      string
		runMode   bool
		sinceMine bool
		startRev  string
		every     string
		wantErr   bool
	}{
		{name: "populate defaults", wantErr: false},
		{name: "populate with start rev", startRev: "abc123", wantErr: false},
		{name: "populate since my last commit", sinceMine: true, wantErr: false},
		{name: "scheduled populate", every: "0 * * * *", wantErr: false},
		{name: "run mode alone", runMode: true, wantErr: false},
		{name: "run with start rev", runMode: true, startRev: "abc123", wantErr: true},
		{name: "run with since my last commit", runMode: true, sinceMine: true, wantErr: true},
		{name: "run with schedule", runMode: true, every: "0 * * * *", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateFlags(tt.runMode, tt.sinceMine, tt.startRev, tt.every)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
