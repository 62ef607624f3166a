package model

import (
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckSRID(t *testing.T) {
	require.NoError(t, CheckSRID("units", 25832, 25832))

	err := CheckSRID("historical region", 32633, 25832)
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrCRSMismatch))
	assert.Contains(t, err.Error(), "EPSG:32633")
	assert.Contains(t, err.Error(), "EPSG:25832")
}

func TestStateCode(t *testing.T) {
	tests := []struct {
		name string
		unit AdministrativeUnit
		want string
	}{
		{"explicit state", AdministrativeUnit{State: "09", ARS: "010010000000"}, "09"},
		{"from ARS", AdministrativeUnit{ARS: "051110000000", AGS: "05111000"}, "05"},
		{"from AGS", AdministrativeUnit{AGS: "16051000"}, "16"},
		{"unknown", AdministrativeUnit{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.unit.StateCode())
		})
	}
}
