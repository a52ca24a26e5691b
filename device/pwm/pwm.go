package pwm

import (
	"bytes"
	"os"
	"strconv"
	"syscall"
	"time"

	"github.com/go-errors/errors"
)

const (
	SysfsRoot = "/sys/class/pwm"

	// 4-wire fans expect a 25kHz control signal
	FanPeriodNs uint32 = 40000
)

var ErrPercentRange = errors.Errorf("duty cycle percent above 100")

// PWMPin drives one channel of a sysfs pwm chip.
type PWMPin struct {
	chipPath    string
	channel     string
	enabled     bool
	exportDelay time.Duration
}

func NewPin(pwmChipID int, channel int) *PWMPin {
	return NewPinAt(SysfsRoot, pwmChipID, channel)
}

// NewPinAt is NewPin below a different sysfs root.
func NewPinAt(root string, pwmChipID int, channel int) *PWMPin {
	return &PWMPin{
		chipPath:    root + "/pwmchip" + strconv.Itoa(pwmChipID),
		channel:     strconv.Itoa(channel),
		exportDelay: 200 * time.Millisecond,
	}
}

func (p *PWMPin) String() string {
	return p.pinDir()
}

func (p *PWMPin) Export() error {
	err := os.WriteFile(p.chipPath+"/export", []byte(p.channel), 0644)
	if err != nil {
		e, ok := err.(*os.PathError)
		if !ok || e.Err != syscall.EBUSY {
			return errors.Wrap(err, 0)
		}
	}

	// udev needs a moment to fix up permissions on the new channel
	time.Sleep(p.exportDelay)

	return nil
}

func (p *PWMPin) Unexport() error {
	return os.WriteFile(p.chipPath+"/unexport", []byte(p.channel), 0644)
}

func (p *PWMPin) pinDir() string {
	return p.chipPath + "/pwm" + p.channel
}

func (p *PWMPin) Enable(enable bool) error {
	if p.enabled == enable {
		return nil
	}
	v := "0"
	if enable {
		v = "1"
	}
	if err := os.WriteFile(p.pinDir()+"/enable", []byte(v), 0644); err != nil {
		return err
	}
	p.enabled = enable
	return nil
}

func (p *PWMPin) readUint(name string) (uint32, error) {
	buf, err := os.ReadFile(p.pinDir() + "/" + name)
	if err != nil {
		return 0, err
	}
	v := bytes.TrimSpace(buf)
	if len(v) == 0 {
		return 0, nil
	}
	val, err := strconv.ParseUint(string(v), 10, 32)
	return uint32(val), err
}

func (p *PWMPin) writeUint(name string, v uint32) error {
	return os.WriteFile(p.pinDir()+"/"+name, []byte(strconv.FormatUint(uint64(v), 10)), 0644)
}

func (p *PWMPin) GetPeriod() (uint32, error) {
	return p.readUint("period")
}

func (p *PWMPin) SetPeriod(period uint32) error {
	return p.writeUint("period", period)
}

func (p *PWMPin) GetDutyCycle() (uint32, error) {
	return p.readUint("duty_cycle")
}

func (p *PWMPin) SetDutyCycle(duty uint32) error {
	return p.writeUint("duty_cycle", duty)
}

func (p *PWMPin) SetDutyCyclePercent(percent uint32) error {
	if percent > 100 {
		return ErrPercentRange
	}
	period, err := p.GetPeriod()
	if err != nil {
		return err
	}
	duty := uint64(period) * uint64(percent) / 100
	return p.SetDutyCycle(uint32(duty))
}

func (p *PWMPin) GetDutyCyclePercent() (uint32, error) {
	period, err := p.GetPeriod()
	if err != nil {
		return 0, err
	}
	if period == 0 {
		return 0, nil
	}
	dutyCycle, err := p.GetDutyCycle()
	if err != nil {
		return 0, err
	}

	return uint32(uint64(dutyCycle) * 100 / uint64(period)), nil
}

// Setup exports the channel and starts it at the given period and duty.
func (p *PWMPin) Setup(periodNs uint32, percent uint32) error {
	if err := p.Export(); err != nil {
		return err
	}
	if periodNs == 0 {
		periodNs = FanPeriodNs
	}
	if err := p.SetPeriod(periodNs); err != nil {
		return err
	}
	if err := p.SetDutyCyclePercent(percent); err != nil {
		return err
	}
	return p.Enable(true)
}
