package ingest

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pandamime100hp/iracingtelemotron/pkg/model"
	"github.com/pandamime100hp/iracingtelemotron/pkg/telemetry/history"
)

const telemetryBody = `{"DriverId":7,` +
	`"Sessions":[{"Participants":[{"DriverId":3},{"DriverId":7}]}],` +
	`"CarTelemetry":[{"Throttle":0.2,"Brake":0.9},{"Throttle":0.5,"Brake":0.1}]}`

func datagram(typeID byte, body string) []byte {
	return append([]byte{typeID, 0, 0, 0}, []byte(body)...)
}

// startService runs a Service on an ephemeral loopback port and returns it
// together with a connected sender socket.
func startService(t *testing.T, opts ...Option) (*Service, net.Conn, context.CancelFunc) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	opts = append([]Option{
		WithAddress("127.0.0.1", 0),
		WithReadTimeout(10 * time.Millisecond),
		WithStatsInterval(time.Hour),
	}, opts...)
	svc := New(opts...)

	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Error("ingestion loop did not stop")
		}
	})

	require.Eventually(t, func() bool { return svc.LocalAddr() != nil },
		2*time.Second, 5*time.Millisecond, "socket never bound")

	conn, err := net.Dial("udp", svc.LocalAddr().String())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return svc, conn, cancel
}

func TestServiceStoresSample(t *testing.T) {
	buffer := history.New(10)
	svc, conn, _ := startService(t, WithHistory(buffer))

	_, err := conn.Write(datagram(2, telemetryBody))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return buffer.Len() == 1 },
		2*time.Second, 5*time.Millisecond)

	got := buffer.Snapshot()[0]
	assert.InDelta(t, 50.0, got.ThrottlePct, 1e-9)
	assert.InDelta(t, 10.0, got.BrakePct, 1e-9)
	assert.WithinDuration(t, time.Now(), got.Timestamp, 2*time.Second)

	status := svc.Status()
	assert.True(t, status.HasReceivedAnyPacket)
	assert.True(t, status.PlayerCarResolved)
}

func TestServiceSkipsOtherPacketTypes(t *testing.T) {
	buffer := history.New(10)
	svc, conn, _ := startService(t, WithHistory(buffer))

	_, err := conn.Write(datagram(1, telemetryBody))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return svc.stats.skipped.Load() == 1 },
		2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, buffer.Len())
	assert.True(t, svc.Status().HasReceivedAnyPacket)
	assert.False(t, svc.Status().PlayerCarResolved)
}

// one bad packet of each class, then a good one: every failure is counted
// once and the loop keeps going
func TestServiceContainsPacketFailures(t *testing.T) {
	buffer := history.New(10)
	svc, conn, _ := startService(t, WithHistory(buffer))

	bad := [][]byte{
		{2, 0},                         // malformed: below minimum length
		datagram(2, "\xff\xfe\xfd"),    // invalid utf-8 body
		datagram(2, `{"DriverId":1}`),  // required keys missing
		datagram(2, `{"DriverId":1,"Sessions":[],"CarTelemetry":[]}`), // no participants
		datagram(2, `{"DriverId":7,`+
			`"Sessions":[{"Participants":[{"DriverId":7}]}],`+
			`"CarTelemetry":[]}`), // participant without telemetry entry
	}
	for _, pkt := range bad {
		_, err := conn.Write(pkt)
		require.NoError(t, err)
	}
	_, err := conn.Write(datagram(2, telemetryBody))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return buffer.Len() == 1 },
		2*time.Second, 5*time.Millisecond)

	assert.EqualValues(t, 6, svc.stats.packets.Load())
	assert.EqualValues(t, 1, svc.stats.malformed.Load())
	assert.EqualValues(t, 1, svc.stats.encoding.Load())
	assert.EqualValues(t, 1, svc.stats.schema.Load())
	assert.EqualValues(t, 1, svc.stats.unresolved.Load())
	assert.EqualValues(t, 1, svc.stats.indexMismatch.Load())
	assert.EqualValues(t, 1, svc.stats.samples.Load())
}

func TestServiceStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	svc := New(
		WithAddress("127.0.0.1", 0),
		WithReadTimeout(10*time.Millisecond),
		WithStatsInterval(time.Hour))

	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()
	require.Eventually(t, func() bool { return svc.LocalAddr() != nil },
		2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop after cancel")
	}
}

func TestServiceForwardsSamplesToChannel(t *testing.T) {
	sampleChan := make(chan model.Sample, 1)
	_, conn, _ := startService(t, WithSampleChan(sampleChan))

	_, err := conn.Write(datagram(2, telemetryBody))
	require.NoError(t, err)

	select {
	case sample := <-sampleChan:
		assert.InDelta(t, 50.0, sample.ThrottlePct, 1e-9)
	case <-time.After(2 * time.Second):
		t.Fatal("no sample forwarded")
	}
}

func TestServiceBindFailure(t *testing.T) {
	taken, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	require.NoError(t, err)
	defer taken.Close()
	port := taken.LocalAddr().(*net.UDPAddr).Port

	svc := New(WithAddress("127.0.0.1", port))
	err = svc.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bind udp socket")
}

func TestServiceBadBindAddress(t *testing.T) {
	svc := New(WithAddress("not-a-host.invalid", 0))
	err := svc.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resolve bind address")
}
