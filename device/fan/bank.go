package fan

import (
	"context"
	"time"

	"github.com/go-errors/errors"

	"fantach/config"
	"fantach/device/edge"
	"fantach/device/pwm"
	"fantach/device/tick"
	"fantach/log"
)

// Bank is the set of fan headers on the board, addressed by index.
type Bank struct {
	fans   []*Tachometer
	drives []*pwm.PWMPin // nil where the fan has no pwm control
	pwmCfg []*config.PWMConfig
}

// NewSource builds the edge input a fan entry describes.
func NewSource(sc config.SourceConfig, ppr uint32, period time.Duration) (edge.Source, error) {
	switch sc.Kind {
	case config.SourceGpiod:
		return edge.NewGpiod(sc.Chip, sc.Line, period), nil
	case config.SourcePeriph:
		return edge.NewPeriph(sc.Pin, tick.NewMonotonic(period)), nil
	case config.SourceSysfs:
		poll := time.Duration(sc.PollUs) * time.Microsecond
		return edge.NewSysfs(sc.SysfsPin, poll, tick.NewMonotonic(period)), nil
	case config.SourceSim:
		return edge.NewSim(sc.SimRPM, ppr, period, sc.SimBounce), nil
	}
	return nil, errors.WrapPrefix(config.ErrInvalidConfig, "unknown source kind "+sc.Kind, 0)
}

func NewBank(cfg *config.Config) (*Bank, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	period := cfg.Window.TickPeriod()
	b := &Bank{}
	for i, fc := range cfg.Fans {
		src, err := NewSource(fc.Source, cfg.PulsesPerRev, period)
		if err != nil {
			return nil, err
		}
		t := New(Options{
			Index:         i,
			Name:          fc.Name,
			PulsesPerRev:  cfg.PulsesPerRev,
			DebounceTicks: cfg.DebounceTicks,
			HistorySize:   cfg.HistorySize,
			Window:        cfg.Window.Interval(),
		}, src)
		b.add(t, fc.PWM)
	}
	return b, nil
}

// NewBankOf wraps already built tachometers.
func NewBankOf(fans ...*Tachometer) *Bank {
	b := &Bank{}
	for _, t := range fans {
		b.add(t, nil)
	}
	return b
}

func (b *Bank) add(t *Tachometer, pc *config.PWMConfig) {
	b.fans = append(b.fans, t)
	b.pwmCfg = append(b.pwmCfg, pc)
	if pc != nil {
		b.drives = append(b.drives, pwm.NewPin(pc.Chip, pc.Channel))
	} else {
		b.drives = append(b.drives, nil)
	}
}

func (b *Bank) Count() int {
	return len(b.fans)
}

func (b *Bank) Fan(index int) (*Tachometer, error) {
	if index < 0 || index >= len(b.fans) {
		return nil, ErrInvalidIndex
	}
	return b.fans[index], nil
}

// Register adds l to every fan.
func (b *Bank) Register(l WindowListener) error {
	for _, t := range b.fans {
		if err := t.Register(l); err != nil {
			return err
		}
	}
	return nil
}

// Start brings up the pwm drives and the tachometers. A fan that fails to
// start is logged and skipped; Start only fails when no fan could start.
func (b *Bank) Start(ctx context.Context) error {
	var firstErr error
	started := 0

	for i, t := range b.fans {
		if d := b.drives[i]; d != nil {
			pc := b.pwmCfg[i]
			if err := d.Setup(pc.PeriodNs, pc.DefaultPercent); err != nil {
				log.Errorf("err init fan %d drive %v: %s", i, d, err)
			}
		}

		if err := t.Start(ctx); err != nil {
			log.Errorf("err init fan %d: %s", i, err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		started++
	}

	if started == 0 && firstErr != nil {
		return firstErr
	}
	return nil
}

// Wait blocks until every started fan has shut down.
func (b *Bank) Wait() {
	for _, t := range b.fans {
		t.Wait()
	}
}

// GetRPM returns the raw RPM of a fan, or -1 for an unknown index.
func (b *Bank) GetRPM(index int) int {
	t, err := b.Fan(index)
	if err != nil {
		return -1
	}
	return int(t.Recent())
}

// GetFilteredRPM returns the median RPM of a fan, or -1 for an unknown index.
func (b *Bank) GetFilteredRPM(index int) int {
	t, err := b.Fan(index)
	if err != nil {
		return -1
	}
	return int(t.Filtered())
}

func (b *Bank) Reading(index int) (Reading, error) {
	t, err := b.Fan(index)
	if err != nil {
		return Reading{}, err
	}
	return t.Reading(), nil
}

func (b *Bank) Readings() []Reading {
	out := make([]Reading, 0, len(b.fans))
	for _, t := range b.fans {
		out = append(out, t.Reading())
	}
	return out
}

// SetSpeed sets the pwm duty of a fan in percent of full speed.
func (b *Bank) SetSpeed(index int, percent uint32) error {
	if _, err := b.Fan(index); err != nil {
		return err
	}
	d := b.drives[index]
	if d == nil {
		return ErrNoDrive
	}
	return d.SetDutyCyclePercent(percent)
}

func (b *Bank) GetSpeed(index int) (uint32, error) {
	if _, err := b.Fan(index); err != nil {
		return 0, err
	}
	d := b.drives[index]
	if d == nil {
		return 0, ErrNoDrive
	}
	return d.GetDutyCyclePercent()
}
