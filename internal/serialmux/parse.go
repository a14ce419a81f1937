package serialmux

import (
	"encoding/json"
	"strconv"
	"strings"
)

const (
	EventTypeSample  = "sample"
	EventTypeStatus  = "status"
	EventTypeUnknown = "unknown"
)

// Reading is one accelerometer line as reported by the board. DeviceMillis is
// the board's own timestamp when the line carried one, otherwise zero.
type Reading struct {
	DeviceMillis int64
	X, Y, Z      float64
}

type jsonReading struct {
	T  *int64   `json:"t"`
	AX *float64 `json:"ax"`
	AY *float64 `json:"ay"`
	AZ *float64 `json:"az"`
}

// ParseReading decodes a sample line. Accepted forms are CSV "ax,ay,az",
// CSV "t,ax,ay,az" and JSON {"t":..,"ax":..,"ay":..,"az":..} where t is
// optional.
func ParseReading(line string) (Reading, bool) {
	line = strings.TrimSpace(line)
	if strings.HasPrefix(line, "{") {
		var jr jsonReading
		if err := json.Unmarshal([]byte(line), &jr); err != nil {
			return Reading{}, false
		}
		if jr.AX == nil || jr.AY == nil || jr.AZ == nil {
			return Reading{}, false
		}
		r := Reading{X: *jr.AX, Y: *jr.AY, Z: *jr.AZ}
		if jr.T != nil {
			r.DeviceMillis = *jr.T
		}
		return r, true
	}

	fields := strings.Split(line, ",")
	if len(fields) != 3 && len(fields) != 4 {
		return Reading{}, false
	}
	values := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return Reading{}, false
		}
		values[i] = v
	}
	if len(values) == 4 {
		return Reading{DeviceMillis: int64(values[0]), X: values[1], Y: values[2], Z: values[3]}, true
	}
	return Reading{X: values[0], Y: values[1], Z: values[2]}, true
}

// ClassifyPayload inspects a line from the board and returns a simple event
// type token.
func ClassifyPayload(payload string) string {
	if _, ok := ParseReading(payload); ok {
		return EventTypeSample
	}
	payload = strings.TrimSpace(payload)
	if strings.HasPrefix(payload, "{") || strings.Contains(payload, "=") {
		return EventTypeStatus
	}
	return EventTypeUnknown
}
