package sensor

import (
	"strconv"
	"strings"
	"time"

	"github.com/RUBclim/vpf-730/internal/types"
)

// ParseFrame decodes one CR LF-terminated VPF-730 ASCII frame into a
// Measurement. It implements the field-index grammar of the sensor
// protocol: field 0 is a "PW<sensor_id>" header, fields 1-2 and 6-12 are
// the numeric fields, field 3 carries the optical range suffixed " KM",
// field 4/5 are the precipitation/obstruction codes, field 15 is the
// self-test string, and field 16 is the total EXCO. Fields 13-14 are
// emitted by the sensor but not consumed.
//
// The timestamp is stamped at parse time (the frame itself carries no
// timestamp), which is why ParseFrame takes the current time rather than
// deriving it from the frame.
func ParseFrame(line []byte, now time.Time) (*types.Measurement, error) {
	fields := strings.Split(strings.TrimRight(string(line), "\r\n"), ",")

	precip := types.PrecipitationType(strings.TrimSpace(field(fields, 4)))
	obstruction := types.ObstructionToVision(strings.TrimSpace(field(fields, 5)))

	m := &types.Measurement{
		Timestamp:            now.UnixMilli(),
		PrecipitationTypeMsg: precip,
		ObstructionToVision:  obstruction,
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}

	var err error
	if m.SensorID, err = strconv.Atoi(strings.TrimPrefix(field(fields, 0), "PW")); err != nil {
		return nil, err
	}
	if m.LastMeasurementPeriod, err = strconv.Atoi(field(fields, 1)); err != nil {
		return nil, err
	}
	if m.TimeSinceReport, err = strconv.Atoi(field(fields, 2)); err != nil {
		return nil, err
	}
	if m.OpticalRange, err = strconv.ParseFloat(strings.TrimSuffix(field(fields, 3), " KM"), 64); err != nil {
		return nil, err
	}
	if m.ReceiverBgIllumination, err = strconv.ParseFloat(field(fields, 6), 64); err != nil {
		return nil, err
	}
	if m.WaterInPrecip, err = strconv.ParseFloat(field(fields, 7), 64); err != nil {
		return nil, err
	}
	if m.Temp, err = strconv.ParseFloat(strings.TrimSuffix(field(fields, 8), " C"), 64); err != nil {
		return nil, err
	}
	if m.NrPrecipParticles, err = strconv.Atoi(field(fields, 9)); err != nil {
		return nil, err
	}
	if m.TransmissionEq, err = strconv.ParseFloat(field(fields, 10), 64); err != nil {
		return nil, err
	}
	if m.ExcoLessPrecipParticle, err = strconv.ParseFloat(field(fields, 11), 64); err != nil {
		return nil, err
	}
	if m.BackscatterExco, err = strconv.ParseFloat(field(fields, 12), 64); err != nil {
		return nil, err
	}
	// fields 13-14 are not consumed.
	m.SelfTest = field(fields, 15)
	if m.TotalExco, err = strconv.ParseFloat(field(fields, 16), 64); err != nil {
		return nil, err
	}

	return m, nil
}

func field(fields []string, i int) string {
	if i >= len(fields) {
		return ""
	}
	return fields[i]
}
