package player

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pandamime100hp/iracingtelemotron/pkg/model"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name         string
		snapshot     *model.SessionSnapshot
		wantIdx      int
		wantNotFound bool
	}{
		{
			name:         "empty participant list",
			snapshot:     &model.SessionSnapshot{DriverID: 7},
			wantNotFound: true,
		},
		{
			name: "no matching driver",
			snapshot: &model.SessionSnapshot{
				DriverID:     7,
				Participants: []model.Participant{{DriverID: 1}, {DriverID: 2}},
			},
			wantNotFound: true,
		},
		{
			name: "only participant matches",
			snapshot: &model.SessionSnapshot{
				DriverID:     7,
				Participants: []model.Participant{{DriverID: 7}},
			},
			wantIdx: 0,
		},
		{
			name: "match at later index",
			snapshot: &model.SessionSnapshot{
				DriverID:     7,
				Participants: []model.Participant{{DriverID: 1}, {DriverID: 2}, {DriverID: 7}},
			},
			wantIdx: 2,
		},
		{
			// duplicate ids shouldn't happen; first match wins
			name: "duplicate driver ids",
			snapshot: &model.SessionSnapshot{
				DriverID:     7,
				Participants: []model.Participant{{DriverID: 2}, {DriverID: 7}, {DriverID: 7}},
			},
			wantIdx: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx, err := Resolve(tt.snapshot)
			if tt.wantNotFound {
				require.ErrorIs(t, err, ErrNotFound)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantIdx, idx)
		})
	}
}

func TestExtract(t *testing.T) {
	snapshot := &model.SessionSnapshot{
		CarTelemetry: []model.CarTelemetry{
			{Throttle: 0.5, Brake: 0.1},
			{Throttle: 1.5, Brake: -0.2},
		},
	}

	sample, err := Extract(snapshot, 0)
	require.NoError(t, err)
	assert.InDelta(t, 50.0, sample.ThrottlePct, 1e-9)
	assert.InDelta(t, 10.0, sample.BrakePct, 1e-9)
	assert.WithinDuration(t, time.Now(), sample.Timestamp, time.Second)
}

// upstream values outside [0,1] must be clamped, not propagated
func TestExtractClampsOutOfRangeValues(t *testing.T) {
	snapshot := &model.SessionSnapshot{
		CarTelemetry: []model.CarTelemetry{{Throttle: 1.5, Brake: -0.2}},
	}
	sample, err := Extract(snapshot, 0)
	require.NoError(t, err)
	assert.InDelta(t, 100.0, sample.ThrottlePct, 1e-9)
	assert.InDelta(t, 0.0, sample.BrakePct, 1e-9)
}

func TestExtractIndexOutOfRange(t *testing.T) {
	snapshot := &model.SessionSnapshot{
		CarTelemetry: []model.CarTelemetry{{Throttle: 0.5}},
	}
	for _, idx := range []int{-1, 1, 99} {
		_, err := Extract(snapshot, idx)
		require.ErrorIs(t, err, ErrIndexOutOfRange)
	}
}
