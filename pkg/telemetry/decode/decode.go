package decode

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"

	"github.com/pandamime100hp/iracingtelemotron/pkg/model"
)

var (
	ErrEncoding = errors.New("payload is not valid UTF-8")
	ErrSchema   = errors.New("unexpected payload schema")
)

// The simulator has shipped payloads where Sessions is keyed differently or
// CarTelemetry entries lack fields. Only the three top-level keys are
// required; everything below them is treated as optional.
var participantsPath = jp.MustParseString("Sessions[0].Participants")

var requiredKeys = []string{"DriverId", "Sessions", "CarTelemetry"}

// Decode parses a framed packet body into a SessionSnapshot.
func Decode(body []byte) (*model.SessionSnapshot, error) {
	if !utf8.Valid(body) {
		return nil, ErrEncoding
	}
	doc, err := oj.Parse(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchema, err)
	}
	root, ok := doc.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: top-level value is not an object", ErrSchema)
	}
	for _, key := range requiredKeys {
		if _, present := root[key]; !present {
			return nil, fmt.Errorf("%w: missing %s", ErrSchema, key)
		}
	}
	driverID, ok := asInt(root["DriverId"])
	if !ok {
		return nil, fmt.Errorf("%w: DriverId is not numeric", ErrSchema)
	}

	snapshot := &model.SessionSnapshot{DriverID: driverID}
	if list, isList := participantsPath.First(doc).([]any); isList {
		snapshot.Participants = make([]model.Participant, 0, len(list))
		for _, entry := range list {
			snapshot.Participants = append(snapshot.Participants, participant(entry))
		}
	}
	if list, isList := root["CarTelemetry"].([]any); isList {
		snapshot.CarTelemetry = make([]model.CarTelemetry, 0, len(list))
		for _, entry := range list {
			snapshot.CarTelemetry = append(snapshot.CarTelemetry, carTelemetry(entry))
		}
	}
	return snapshot, nil
}

func participant(entry any) model.Participant {
	m, ok := entry.(map[string]any)
	if !ok {
		return model.Participant{DriverID: -1}
	}
	id, ok := asInt(m["DriverId"])
	if !ok {
		// driver ids are non-negative, so -1 never resolves
		return model.Participant{DriverID: -1}
	}
	return model.Participant{DriverID: id}
}

func carTelemetry(entry any) model.CarTelemetry {
	m, ok := entry.(map[string]any)
	if !ok {
		return model.CarTelemetry{}
	}
	throttle, _ := asFloat(m["Throttle"])
	brake, _ := asFloat(m["Brake"])
	return model.CarTelemetry{Throttle: throttle, Brake: brake}
}

func asInt(v any) (int, bool) {
	switch val := v.(type) {
	case int64:
		return int(val), true
	case float64:
		return int(val), true
	default:
		return 0, false
	}
}

func asFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case int64:
		return float64(val), true
	default:
		return 0, false
	}
}
