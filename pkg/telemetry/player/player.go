package player

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/pandamime100hp/iracingtelemotron/pkg/model"
)

var (
	// ErrNotFound means the player's car has not loaded into the session
	// data yet. Expected transient condition, not an error worth logging.
	ErrNotFound = errors.New("player car not found in participant list")
	// ErrIndexOutOfRange means the participant roster and the telemetry
	// array disagree about their shared index space.
	ErrIndexOutOfRange = errors.New("telemetry index out of range")
)

// Resolve returns the index of the first participant whose DriverID matches
// the snapshot's designated driver. Driver ids are expected to be unique
// within one session; with duplicates the first match in list order wins.
func Resolve(snapshot *model.SessionSnapshot) (int, error) {
	idx := slices.IndexFunc(snapshot.Participants,
		func(p model.Participant) bool {
			return p.DriverID == snapshot.DriverID
		})
	if idx < 0 {
		return -1, ErrNotFound
	}
	return idx, nil
}

// Extract reads the pedal channels for the car at idx and converts them to
// percentages. The sample timestamp is the extraction time; the payload
// carries no reliable per-sample timestamp.
func Extract(snapshot *model.SessionSnapshot, idx int) (model.Sample, error) {
	if idx < 0 || idx >= len(snapshot.CarTelemetry) {
		return model.Sample{}, fmt.Errorf("%w: index %d, telemetry entries %d",
			ErrIndexOutOfRange, idx, len(snapshot.CarTelemetry))
	}
	car := snapshot.CarTelemetry[idx]
	return model.Sample{
		Timestamp:   time.Now(),
		ThrottlePct: clampPct(car.Throttle * 100),
		BrakePct:    clampPct(car.Brake * 100),
	}, nil
}

// upstream values are nominally in [0,1] but not contractually guaranteed
func clampPct(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
