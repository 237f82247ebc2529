package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RUBclim/vpf-730/internal/vpferr"
)

func sampleMeasurement() Measurement {
	return Measurement{
		Timestamp:              1_700_000_000_000,
		SensorID:                1,
		LastMeasurementPeriod:   60,
		TimeSinceReport:         0,
		NrPrecipParticles:       0,
		OpticalRange:            1.19,
		ReceiverBgIllumination:  0.06,
		WaterInPrecip:           0,
		Temp:                    20.5,
		TransmissionEq:          2.51,
		ExcoLessPrecipParticle:  2.51,
		BackscatterExco:         11.10,
		TotalExco:               2.51,
		PrecipitationTypeMsg:    PrecipNone,
		ObstructionToVision:     ObstructionHaze,
		SelfTest:                "OOO",
	}
}

func TestMeasurementValidate(t *testing.T) {
	m := sampleMeasurement()
	require.NoError(t, m.Validate())

	bad := m
	bad.PrecipitationTypeMsg = "not-a-code"
	err := bad.Validate()
	require.Error(t, err)
	var ferr *vpferr.FormatError
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, "precipitation_type_msg", ferr.Field)

	bad2 := m
	bad2.ObstructionToVision = "not-a-code"
	err = bad2.Validate()
	require.Error(t, err)
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, "obstruction_to_vision", ferr.Field)
}

func TestMeasurementRowMatchesFieldOrder(t *testing.T) {
	m := sampleMeasurement()
	row := m.Row()
	assert.Len(t, row, len(FieldOrder))
	assert.Equal(t, m.Timestamp, row[0])
	assert.Equal(t, string(m.PrecipitationTypeMsg), row[13])
	assert.Equal(t, string(m.ObstructionToVision), row[14])
	assert.Equal(t, m.SelfTest, row[15])
}

func TestPrecipitationTypeValid(t *testing.T) {
	assert.True(t, PrecipRainHeavy.Valid())
	assert.False(t, PrecipitationType("XX").Valid())
}

func TestObstructionToVisionValid(t *testing.T) {
	assert.True(t, ObstructionNone.Valid())
	assert.True(t, ObstructionFog.Valid())
	assert.False(t, ObstructionToVision("XX").Valid())
}
