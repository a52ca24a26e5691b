package api

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-errors/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"fantach/config"
	"fantach/device/fan"
	"fantach/jsonrpc"
	"fantach/version"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// newHandler returns two hand-driven fans after two windows: "cpu" at
// 1200 RPM and "case" stalled.
func newHandler(t *testing.T) *Handler {
	t.Helper()
	cpu := fan.New(fan.Options{Index: 0, Name: "cpu", PulsesPerRev: 1, Window: time.Minute}, nil)
	stalled := fan.New(fan.Options{Index: 1, Name: "case", PulsesPerRev: 1, Window: time.Minute}, nil)
	bank := fan.NewBankOf(cpu, stalled)
	mon := fan.NewMonitor(config.MonitorConfig{MinRPM: 0, StallWindows: 1})
	require.NoError(t, bank.Register(mon))

	for w := 0; w < 2; w++ {
		c := cpu.Counter()
		for i := 0; i < 1200; i++ {
			c.OnEdge(uint32(w*100000 + i*50))
		}
		cpu.CloseWindow()
		stalled.CloseWindow()
	}
	return New(bank, mon)
}

func call(t *testing.T, h *Handler, cmd string, param interface{}) (interface{}, error) {
	t.Helper()
	req := &jsonrpc.APIRequest{Command: cmd}
	if param != nil {
		raw, err := json.Marshal(param)
		require.NoError(t, err)
		req.Parameter = raw
	}
	return h.Serve(req)
}

func TestRPM(t *testing.T) {
	h := newHandler(t)

	for _, param := range []interface{}{0, "0"} {
		resp, err := call(t, h, CmdRPM, param)
		require.NoError(t, err)
		r := resp.(fan.Reading)
		assert.Equal(t, fan.RPM(1200), r.Recent)
		assert.Equal(t, fan.RPM(1200), r.Filtered)
		assert.True(t, r.Valid)
	}

	_, err := call(t, h, CmdRPM, 7)
	assert.ErrorIs(t, err, fan.ErrInvalidIndex)

	_, err = call(t, h, CmdRPM, nil)
	assert.True(t, errors.Is(err, ErrBadParameter))

	_, err = call(t, h, CmdRPM, "front")
	assert.True(t, errors.Is(err, ErrBadParameter))
}

func TestFansAndAlarms(t *testing.T) {
	h := newHandler(t)

	resp, err := call(t, h, CmdFans, nil)
	require.NoError(t, err)
	readings := resp.([]fan.Reading)
	require.Len(t, readings, 2)
	assert.Equal(t, "case", readings[1].Name)
	assert.Equal(t, fan.RPM(0), readings[1].Recent)

	resp, err = call(t, h, CmdAlarms, nil)
	require.NoError(t, err)
	assert.Equal(t, []Alarm{{Fan: 1, Name: "case"}}, resp)

	resp, err = call(t, h, CmdSummary, nil)
	require.NoError(t, err)
	s := resp.(Summary)
	assert.Equal(t, 2, s.Fans)
	assert.Equal(t, 2, s.Measured)
	assert.Equal(t, 0, s.MinRPM)
	assert.Equal(t, 1200, s.MaxRPM)
	assert.True(t, s.Alarm)
}

func TestNoMonitor(t *testing.T) {
	h := New(fan.NewBankOf(fan.New(fan.Options{}, nil)), nil)

	resp, err := call(t, h, CmdAlarms, nil)
	require.NoError(t, err)
	assert.Empty(t, resp)

	resp, err = call(t, h, CmdSummary, nil)
	require.NoError(t, err)
	s := resp.(Summary)
	assert.Equal(t, 0, s.Measured)
	assert.Equal(t, -1, s.MinRPM)
	assert.False(t, s.Alarm)
}

func TestSpeedWithoutDrive(t *testing.T) {
	h := newHandler(t)

	_, err := call(t, h, CmdSetSpeed, SpeedParam{Fan: 0, Percent: 50})
	assert.ErrorIs(t, err, fan.ErrNoDrive)

	_, err = call(t, h, CmdSpeed, 0)
	assert.ErrorIs(t, err, fan.ErrNoDrive)

	_, err = call(t, h, CmdSetSpeed, "fast")
	assert.True(t, errors.Is(err, ErrBadParameter))
}

func TestUnknownCommand(t *testing.T) {
	_, err := call(t, newHandler(t), "reboot", nil)
	assert.True(t, errors.Is(err, ErrUnknownCommand))
}

func TestOverTCP(t *testing.T) {
	h := newHandler(t)
	s, err := jsonrpc.NewServer("127.0.0.1:0", h.Serve, true)
	require.NoError(t, err)
	go s.ListenAndServe()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		assert.NoError(t, s.Shutdown(ctx))
	}()

	c := jsonrpc.NewTCPClient(s.Addr().String())
	defer c.Shutdown()

	var r fan.Reading
	require.NoError(t, c.Call(CmdRPM, 0, &r))
	assert.Equal(t, fan.RPM(1200), r.Recent)
	assert.Equal(t, []fan.RPM{1200, 1200}, r.History)

	var v version.VersionConfig
	require.NoError(t, c.Call(CmdVersion, nil, &v))
	assert.Equal(t, version.Version, v.Version)

	err = c.Call("reboot", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown command")
}
