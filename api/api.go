// Package api maps the commands of the JSON API onto a fan bank.
package api

import (
	"encoding/json"
	"strconv"

	"github.com/go-errors/errors"

	"fantach/device/fan"
	"fantach/jsonrpc"
	"fantach/log"
	"fantach/util"
	"fantach/version"
)

const (
	CmdRPM      = "rpm"
	CmdFans     = "fans"
	CmdAlarms   = "alarms"
	CmdSetSpeed = "setspeed"
	CmdSpeed    = "speed"
	CmdSummary  = "summary"
	CmdVersion  = "version"
)

var (
	ErrUnknownCommand = errors.Errorf("unknown command")
	ErrBadParameter   = errors.Errorf("bad parameter")
)

type SpeedParam struct {
	Fan     int    `json:"fan"`
	Percent uint32 `json:"percent"`
}

type Alarm struct {
	Fan  int    `json:"fan"`
	Name string `json:"name"`
}

type Summary struct {
	Model    string  `json:"model"`
	Uptime   string  `json:"uptime"`
	Elapsed  float64 `json:"elapsed"`
	Fans     int     `json:"fans"`
	Alarm    bool    `json:"alarm"`
	Version  string  `json:"version"`
	MinRPM   int     `json:"min_rpm"`
	MaxRPM   int     `json:"max_rpm"`
	Measured int     `json:"measured"`
}

// Handler serves API requests. Monitor may be nil when stall detection is
// not configured.
type Handler struct {
	Bank    *fan.Bank
	Monitor *fan.Monitor
}

func New(bank *fan.Bank, monitor *fan.Monitor) *Handler {
	return &Handler{Bank: bank, Monitor: monitor}
}

// Serve is a jsonrpc.ServerHandlerFunc.
func (h *Handler) Serve(req *jsonrpc.APIRequest) (interface{}, error) {
	log.Debugf("api %s %s", req.Command, string(req.Parameter))

	switch req.Command {
	case CmdRPM:
		i, err := fanIndex(req.Parameter)
		if err != nil {
			return nil, err
		}
		return h.Bank.Reading(i)
	case CmdFans:
		return h.Bank.Readings(), nil
	case CmdAlarms:
		return h.alarms(), nil
	case CmdSetSpeed:
		var p SpeedParam
		if err := json.Unmarshal(req.Parameter, &p); err != nil {
			return nil, errors.WrapPrefix(ErrBadParameter, err.Error(), 0)
		}
		if err := h.Bank.SetSpeed(p.Fan, p.Percent); err != nil {
			return nil, err
		}
		log.Infof("fan %d speed set to %d%%", p.Fan, p.Percent)
		return p, nil
	case CmdSpeed:
		i, err := fanIndex(req.Parameter)
		if err != nil {
			return nil, err
		}
		pct, err := h.Bank.GetSpeed(i)
		if err != nil {
			return nil, err
		}
		return SpeedParam{Fan: i, Percent: pct}, nil
	case CmdSummary:
		return h.summary(), nil
	case CmdVersion:
		return version.GetVersionConfig(), nil
	}
	return nil, errors.WrapPrefix(ErrUnknownCommand, req.Command, 0)
}

// fanIndex accepts the index as a JSON number or a numeric string.
func fanIndex(raw json.RawMessage) (int, error) {
	if len(raw) == 0 {
		return 0, errors.WrapPrefix(ErrBadParameter, "missing fan index", 0)
	}
	var i int
	if err := json.Unmarshal(raw, &i); err == nil {
		return i, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, errors.WrapPrefix(ErrBadParameter, string(raw), 0)
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.WrapPrefix(ErrBadParameter, s, 0)
	}
	return i, nil
}

func (h *Handler) alarms() []Alarm {
	out := []Alarm{}
	if h.Monitor == nil {
		return out
	}
	for i := 0; i < h.Bank.Count(); i++ {
		if h.Monitor.Alarmed(i) {
			t, _ := h.Bank.Fan(i)
			out = append(out, Alarm{Fan: i, Name: t.Name()})
		}
	}
	return out
}

func (h *Handler) summary() Summary {
	s := Summary{
		Model:   version.Model,
		Uptime:  util.UptimeInString(),
		Elapsed: util.SystemUptimeInSec(),
		Fans:    h.Bank.Count(),
		Version: version.Version,
		MinRPM:  -1,
		MaxRPM:  -1,
	}
	if h.Monitor != nil {
		s.Alarm = h.Monitor.AnyAlarm()
	}
	for _, r := range h.Bank.Readings() {
		if !r.Valid {
			continue
		}
		rpm := int(r.Filtered)
		if s.Measured == 0 || rpm < s.MinRPM {
			s.MinRPM = rpm
		}
		if s.Measured == 0 || rpm > s.MaxRPM {
			s.MaxRPM = rpm
		}
		s.Measured++
	}
	return s
}
