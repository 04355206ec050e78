package actuator

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"firestige.xyz/ledping/internal/config"
)

type mockLines struct {
	mock.Mock
}

func (m *mockLines) SetDTR(dtr bool) error { return m.Called(dtr).Error(0) }
func (m *mockLines) SetRTS(rts bool) error { return m.Called(rts).Error(0) }
func (m *mockLines) Close() error          { return m.Called().Error(0) }

type failingActuator struct {
	failOn bool
	calls  []bool
}

func (f *failingActuator) SetLevel(active bool) error {
	f.calls = append(f.calls, active)
	if active == f.failOn {
		return errors.New("line stuck")
	}
	return nil
}

func (f *failingActuator) Close() error { return nil }

func TestPulseSequence(t *testing.T) {
	rec := NewRecorder(nil)
	var slept []time.Duration

	err := Pulse(rec, 100*time.Millisecond, 150*time.Millisecond, func(d time.Duration) {
		slept = append(slept, d)
	})
	require.NoError(t, err)

	transitions := rec.Transitions()
	require.Len(t, transitions, 2)
	assert.True(t, transitions[0].Active)
	assert.False(t, transitions[1].Active)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 150 * time.Millisecond}, slept)
	assert.False(t, rec.Active())
}

func TestPulseRealHolds(t *testing.T) {
	rec := NewRecorder(nil)

	start := time.Now()
	require.NoError(t, Pulse(rec, 20*time.Millisecond, 20*time.Millisecond, nil))
	elapsed := time.Since(start)

	transitions := rec.Transitions()
	require.Len(t, transitions, 2)
	assert.GreaterOrEqual(t, transitions[1].At.Sub(transitions[0].At), 20*time.Millisecond)
	assert.GreaterOrEqual(t, elapsed, 40*time.Millisecond)
}

func TestPulseActivateError(t *testing.T) {
	f := &failingActuator{failOn: true}

	err := Pulse(f, time.Millisecond, time.Millisecond, func(time.Duration) {})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to activate output")
	assert.Equal(t, []bool{true}, f.calls)
}

func TestPulseDeactivateError(t *testing.T) {
	f := &failingActuator{failOn: false}

	err := Pulse(f, time.Millisecond, time.Millisecond, func(time.Duration) {})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to deactivate output")
	assert.Equal(t, []bool{true, false}, f.calls)
}

func TestRecorderReset(t *testing.T) {
	rec := NewRecorder(nil)
	require.NoError(t, rec.SetLevel(true))
	rec.Reset()

	assert.Empty(t, rec.Transitions())
	assert.True(t, rec.Active())
	assert.NoError(t, rec.Close())
}

func TestOpenNoneDriver(t *testing.T) {
	a, err := Open(config.ActuatorConfig{Driver: "none"}, nil)
	require.NoError(t, err)

	rec, ok := a.(*Recorder)
	require.True(t, ok, "none driver should return a Recorder")
	transitions := rec.Transitions()
	require.Len(t, transitions, 1)
	assert.False(t, transitions[0].Active, "line must start inactive")
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(config.ActuatorConfig{Driver: "gpio"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported actuator driver")
}

func TestSerialLineLevels(t *testing.T) {
	tests := []struct {
		name      string
		line      string
		activeLow bool
		active    bool
		method    string
		asserted  bool
	}{
		{"dtr active high on", "dtr", false, true, "SetDTR", true},
		{"dtr active high off", "dtr", false, false, "SetDTR", false},
		{"dtr active low on", "dtr", true, true, "SetDTR", false},
		{"dtr active low off", "dtr", true, false, "SetDTR", true},
		{"rts active high on", "rts", false, true, "SetRTS", true},
		{"rts active low on", "rts", true, true, "SetRTS", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lines := new(mockLines)
			lines.On(tt.method, tt.asserted).Return(nil).Once()

			s, err := newSerialLine(lines, tt.line, tt.activeLow)
			require.NoError(t, err)
			require.NoError(t, s.SetLevel(tt.active))

			lines.AssertExpectations(t)
		})
	}
}

func TestSerialLineErrors(t *testing.T) {
	lines := new(mockLines)
	lines.On("SetDTR", true).Return(errors.New("ioctl failed"))
	lines.On("Close").Return(nil)

	s, err := newSerialLine(lines, "dtr", false)
	require.NoError(t, err)
	assert.Error(t, s.SetLevel(true))
	assert.NoError(t, s.Close())
	lines.AssertExpectations(t)
}

func TestSerialLineRejectsUnknownLine(t *testing.T) {
	lines := new(mockLines)
	lines.On("Close").Return(nil).Once()

	_, err := newSerialLine(lines, "cts", false)
	require.Error(t, err)
	lines.AssertExpectations(t)
}
