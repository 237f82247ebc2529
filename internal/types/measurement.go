// Package types defines the wire and storage shapes shared by the queue,
// the storage adapter, and the task handlers: Measurement (one sensor
// reading) and Message (one unit of queue work).
package types

import (
	"fmt"

	"github.com/RUBclim/vpf-730/internal/vpferr"
)

// PrecipitationType is the VPF-730 precipitation type code, one of the
// fixed set of two/three-character codes the sensor emits.
type PrecipitationType string

const (
	PrecipNone            PrecipitationType = "NP"
	PrecipDrizzleSlight   PrecipitationType = "DZ-"
	PrecipDrizzle         PrecipitationType = "DZ"
	PrecipDrizzleHeavy    PrecipitationType = "DZ+"
	PrecipRainSlight      PrecipitationType = "RA-"
	PrecipRain            PrecipitationType = "RA"
	PrecipRainHeavy       PrecipitationType = "RA+"
	PrecipSnowSlight      PrecipitationType = "SN-"
	PrecipSnow            PrecipitationType = "SN"
	PrecipSnowHeavy       PrecipitationType = "SN+"
	PrecipIndeterminate   PrecipitationType = "UP"
	PrecipSmallHail       PrecipitationType = "GS"
	PrecipHail            PrecipitationType = "GR"
	PrecipInitialOrError  PrecipitationType = "X"
)

var precipitationTypes = []PrecipitationType{
	PrecipNone, PrecipDrizzleSlight, PrecipDrizzle, PrecipDrizzleHeavy,
	PrecipRainSlight, PrecipRain, PrecipRainHeavy,
	PrecipSnowSlight, PrecipSnow, PrecipSnowHeavy,
	PrecipIndeterminate, PrecipSmallHail, PrecipHail, PrecipInitialOrError,
}

// Valid reports whether p belongs to the enumerated set of precipitation
// type codes.
func (p PrecipitationType) Valid() bool {
	for _, v := range precipitationTypes {
		if p == v {
			return true
		}
	}
	return false
}

func precipitationTypeStrings() []string {
	out := make([]string, len(precipitationTypes))
	for i, v := range precipitationTypes {
		out[i] = string(v)
	}
	return out
}

// ObstructionToVision is the VPF-730 obstruction-to-vision code. The empty
// string is a valid code meaning "no obstruction".
type ObstructionToVision string

const (
	ObstructionNone ObstructionToVision = ""
	ObstructionHaze ObstructionToVision = "HZ"
	ObstructionFog  ObstructionToVision = "FG"
	ObstructionDust ObstructionToVision = "DU"
	ObstructionSmoke ObstructionToVision = "FU"
	ObstructionMist ObstructionToVision = "BR"
)

var obstructionTypes = []ObstructionToVision{
	ObstructionNone, ObstructionHaze, ObstructionFog, ObstructionDust,
	ObstructionSmoke, ObstructionMist,
}

// Valid reports whether o belongs to the enumerated set of obstruction
// codes.
func (o ObstructionToVision) Valid() bool {
	for _, v := range obstructionTypes {
		if o == v {
			return true
		}
	}
	return false
}

func obstructionTypeStrings() []string {
	out := make([]string, len(obstructionTypes))
	for i, v := range obstructionTypes {
		out[i] = string(v)
	}
	return out
}

// Measurement is one immutable sensor reading from a VPF-730 family
// instrument. Field order here is the JSON serialization order (see the
// json tags): it must stay stable since it is part of the persisted wire
// contract.
type Measurement struct {
	Timestamp               int64               `json:"timestamp"`
	SensorID                int                 `json:"sensor_id"`
	LastMeasurementPeriod   int                 `json:"last_measurement_period"`
	TimeSinceReport         int                 `json:"time_since_report"`
	NrPrecipParticles       int                 `json:"nr_precip_particles"`
	OpticalRange            float64             `json:"optical_range"`
	ReceiverBgIllumination  float64             `json:"receiver_bg_illumination"`
	WaterInPrecip           float64             `json:"water_in_precip"`
	Temp                    float64             `json:"temp"`
	TransmissionEq          float64             `json:"transmission_eq"`
	ExcoLessPrecipParticle  float64             `json:"exco_less_precip_particle"`
	BackscatterExco         float64             `json:"backscatter_exco"`
	TotalExco               float64             `json:"total_exco"`
	PrecipitationTypeMsg    PrecipitationType   `json:"precipitation_type_msg"`
	ObstructionToVision     ObstructionToVision `json:"obstruction_to_vision"`
	SelfTest                string              `json:"self_test"`
}

// Validate checks that the two enumerated code fields belong to their
// permitted sets, returning a *vpferr.FormatError naming the offending
// value otherwise.
func (m Measurement) Validate() error {
	if !m.PrecipitationTypeMsg.Valid() {
		return &vpferr.FormatError{
			Field:   "precipitation_type_msg",
			Value:   string(m.PrecipitationTypeMsg),
			Allowed: precipitationTypeStrings(),
		}
	}
	if !m.ObstructionToVision.Valid() {
		return &vpferr.FormatError{
			Field:   "obstruction_to_vision",
			Value:   string(m.ObstructionToVision),
			Allowed: obstructionTypeStrings(),
		}
	}
	return nil
}

// FieldOrder lists the Measurement fields in declaration order. The CSV
// export helper writes it as its header row; it matches the order of Row
// and of the columns in the local measurements table DDL, which lists
// them separately.
var FieldOrder = []string{
	"timestamp",
	"sensor_id",
	"last_measurement_period",
	"time_since_report",
	"nr_precip_particles",
	"optical_range",
	"receiver_bg_illumination",
	"water_in_precip",
	"temp",
	"transmission_eq",
	"exco_less_precip_particle",
	"backscatter_exco",
	"total_exco",
	"precipitation_type_msg",
	"obstruction_to_vision",
	"self_test",
}

// Row returns the field values in FieldOrder, suitable for a parameterized
// INSERT into the local measurements table.
func (m Measurement) Row() []any {
	return []any{
		m.Timestamp,
		m.SensorID,
		m.LastMeasurementPeriod,
		m.TimeSinceReport,
		m.NrPrecipParticles,
		m.OpticalRange,
		m.ReceiverBgIllumination,
		m.WaterInPrecip,
		m.Temp,
		m.TransmissionEq,
		m.ExcoLessPrecipParticle,
		m.BackscatterExco,
		m.TotalExco,
		string(m.PrecipitationTypeMsg),
		string(m.ObstructionToVision),
		m.SelfTest,
	}
}

// FormatFloat renders a finite float in Go's shortest %g form (no sensor
// zero padding); CSV export uses it for a stable text form.
func FormatFloat(f float64) string {
	return fmt.Sprintf("%g", f)
}
