package model

import "time"

// Participant is one entry in the session roster. The positional index of a
// participant is shared with the CarTelemetry array of the same snapshot.
type Participant struct {
	DriverID int `json:"driverId"`
}

// CarTelemetry holds the pedal channels for one car. Values are nominally
// normalized to [0,1] by the simulator but not guaranteed to stay in bounds.
type CarTelemetry struct {
	Throttle float64 `json:"throttle"`
	Brake    float64 `json:"brake"`
}

// SessionSnapshot is the decoded content of one telemetry packet.
// Participants or CarTelemetry may be empty when the payload only carries a
// partial session state.
type SessionSnapshot struct {
	DriverID     int            `json:"driverId"`
	Participants []Participant  `json:"participants"`
	CarTelemetry []CarTelemetry `json:"carTelemetry"`
}

// Sample is one extracted throttle/brake reading. Immutable once created.
type Sample struct {
	Timestamp   time.Time `json:"ts"`
	ThrottlePct float64   `json:"throttlePct"`
	BrakePct    float64   `json:"brakePct"`
}
