package config

import (
	"encoding/json"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/go-errors/errors"

	"fantach/log"
)

const (
	DefaultConfigFile = "fantach.json"

	SourceGpiod  = "gpiod"
	SourcePeriph = "periph"
	SourceSysfs  = "sysfs"
	SourceSim    = "sim"

	MaxHistorySize = 64
)

var ErrInvalidConfig = errors.Errorf("invalid configuration")

// WindowConfig describes the measurement window timer the way the board
// programs it: a prescaled controller clock counting up to Top.
type WindowConfig struct {
	ClockHz    uint32 `json:"clock_hz"`
	Prescaler  uint32 `json:"prescaler"`
	Top        uint32 `json:"top"`
	IntervalMs uint32 `json:"interval_ms,omitempty"`
}

// Interval is the window length. IntervalMs, when set, wins over the
// clock/prescaler/top derivation.
func (w WindowConfig) Interval() time.Duration {
	if w.IntervalMs > 0 {
		return time.Duration(w.IntervalMs) * time.Millisecond
	}
	if w.ClockHz == 0 {
		return 0
	}
	ns := uint64(w.Prescaler) * (uint64(w.Top) + 1) * uint64(time.Second) / uint64(w.ClockHz)
	return time.Duration(ns)
}

// TickPeriod is the period of the free-running counter used for debounce.
func (w WindowConfig) TickPeriod() time.Duration {
	if w.ClockHz == 0 {
		return 0
	}
	return time.Duration(uint64(w.Prescaler) * uint64(time.Second) / uint64(w.ClockHz))
}

type SourceConfig struct {
	Kind      string `json:"kind"`
	Chip      string `json:"chip,omitempty"`
	Line      int    `json:"line,omitempty"`
	Pin       string `json:"pin,omitempty"`
	SysfsPin  int    `json:"sysfs_pin,omitempty"`
	PollUs    uint32 `json:"poll_us,omitempty"`
	SimRPM    uint32 `json:"sim_rpm,omitempty"`
	SimBounce bool   `json:"sim_bounce,omitempty"`
}

type PWMConfig struct {
	Chip           int    `json:"chip"`
	Channel        int    `json:"channel"`
	PeriodNs       uint32 `json:"period_ns"`
	DefaultPercent uint32 `json:"default_percent"`
}

type FanEntryConfig struct {
	Name   string       `json:"name"`
	Source SourceConfig `json:"source"`
	PWM    *PWMConfig   `json:"pwm,omitempty"`
}

type MonitorConfig struct {
	MinRPM        uint32 `json:"min_rpm"`
	StallWindows  int    `json:"stall_windows"`
	AlarmRepeatMs uint32 `json:"alarm_repeat_ms"`
}

type ReportConfig struct {
	Dir        string `json:"dir,omitempty"`
	SerialPort string `json:"serial_port,omitempty"`
	SerialBaud int    `json:"serial_baud,omitempty"`
}

type APIConfig struct {
	Listen    string `json:"listen,omitempty"`
	KeepAlive bool   `json:"keep_alive"`
}

type Config struct {
	Fans          []FanEntryConfig `json:"fans"`
	PulsesPerRev  uint32           `json:"pulses_per_rev"`
	DebounceTicks uint32           `json:"debounce_ticks"`
	HistorySize   int              `json:"history_size"`
	Window        WindowConfig     `json:"window"`
	Monitor       MonitorConfig    `json:"monitor"`
	Report        ReportConfig     `json:"report"`
	API           APIConfig        `json:"api"`
	Debug         bool             `json:"debug"`
}

// Default returns the reference board setup: one fan on the INT6 line,
// 2 pulses per revolution, 16 MHz clock prescaled by 1024 with a 1 s window.
func Default() *Config {
	return &Config{
		Fans: []FanEntryConfig{
			{
				Name:   "fan0",
				Source: SourceConfig{Kind: SourceGpiod, Chip: "gpiochip0", Line: 6},
			},
		},
		PulsesPerRev:  2,
		DebounceTicks: 10,
		HistorySize:   5,
		Window: WindowConfig{
			ClockHz:   16000000,
			Prescaler: 1024,
			Top:       15624,
		},
		Monitor: MonitorConfig{
			MinRPM:        0,
			StallWindows:  3,
			AlarmRepeatMs: 60000,
		},
		Report: ReportConfig{
			Dir:        "/tmp/fan/",
			SerialBaud: 57600,
		},
		API: APIConfig{
			Listen: "127.0.0.1:4028",
		},
	}
}

func (c *Config) Validate() error {
	if len(c.Fans) == 0 {
		return errors.WrapPrefix(ErrInvalidConfig, "no fans configured", 0)
	}
	if c.PulsesPerRev == 0 {
		return errors.WrapPrefix(ErrInvalidConfig, "pulses_per_rev must be positive", 0)
	}
	if c.HistorySize < 1 || c.HistorySize > MaxHistorySize {
		return errors.WrapPrefix(ErrInvalidConfig, "history_size out of range", 0)
	}
	if c.Window.IntervalMs == 0 && (c.Window.ClockHz == 0 || c.Window.Prescaler == 0) {
		return errors.WrapPrefix(ErrInvalidConfig, "window needs clock_hz and prescaler or interval_ms", 0)
	}
	if c.Window.Interval() < time.Millisecond {
		return errors.WrapPrefix(ErrInvalidConfig, "window interval below 1ms", 0)
	}
	if c.DebounceTicks > 0 && c.Window.TickPeriod() == 0 {
		return errors.WrapPrefix(ErrInvalidConfig, "debounce_ticks needs clock_hz and prescaler", 0)
	}
	if c.Monitor.StallWindows < 1 {
		return errors.WrapPrefix(ErrInvalidConfig, "monitor.stall_windows must be at least 1", 0)
	}
	for i := range c.Fans {
		if c.Fans[i].Name == "" {
			c.Fans[i].Name = "fan" + strconv.Itoa(i)
		}
		f := c.Fans[i]
		switch f.Source.Kind {
		case SourceGpiod, SourcePeriph, SourceSysfs, SourceSim:
		default:
			return errors.WrapPrefix(ErrInvalidConfig, "fan "+f.Name+": unknown source kind "+f.Source.Kind, 0)
		}
		if f.PWM != nil && f.PWM.DefaultPercent > 100 {
			return errors.WrapPrefix(ErrInvalidConfig, "fan "+f.Name+": pwm default_percent above 100", 0)
		}
	}
	return nil
}

// Load reads a JSON configuration on top of Default and validates it.
func Load(path string) (*Config, error) {
	cfg := Default()

	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, 0)
	}

	// replace the default fan list instead of merging into it
	cfg.Fans = nil
	if err := json.Unmarshal(buf, cfg); err != nil {
		return nil, errors.WrapPrefix(err, "parse "+path, 0)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var (
	loadOnce sync.Once
	loaded   *Config
	loadErr  error
)

// LoadOnce caches the first configuration read; a missing file falls back to
// Default.
func LoadOnce(path string) (*Config, error) {
	loadOnce.Do(func() {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			log.Infof("config %s not found, using defaults", path)
			loaded = Default()
			return
		}
		loaded, loadErr = Load(path)
	})
	return loaded, loadErr
}
