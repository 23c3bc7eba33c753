package ld2410

import (
	"encoding/binary"
	"fmt"

	log "github.com/sirupsen/logrus"
)

// Sensitivity values and gate indices accepted by the radar.
const (
	GateMin = 0
	GateMax = 8
	SensMin = 0
	SensMax = 100
)

// BaudRate is the index the radar maps onto an actual serial rate.
type BaudRate uint16

const (
	Baud9600   BaudRate = 0x0001
	Baud19200  BaudRate = 0x0002
	Baud38400  BaudRate = 0x0003
	Baud57600  BaudRate = 0x0004
	Baud115200 BaudRate = 0x0005
	Baud230400 BaudRate = 0x0006
	Baud256000 BaudRate = 0x0007 // factory default
	Baud460800 BaudRate = 0x0008
)

// Parameters is the detection configuration as reported by ReadParameters.
type Parameters struct {
	MaxMovingGate int `json:"max_moving_gate"`
	MaxStaticGate int `json:"max_static_gate"`
	// EmptyTimeoutS is how long the radar keeps reporting presence after
	// the area empties, in seconds.
	EmptyTimeoutS int `json:"empty_timeout_s"`

	MovingSensitivity [NumGates]int `json:"moving_sensitivity"`
	StaticSensitivity [NumGates]int `json:"static_sensitivity"`
}

// FirmwareVersion as reported by the radar, e.g. "V1.07.22062416".
type FirmwareVersion struct {
	Major int    `json:"major"`
	Minor int    `json:"minor"`
	Patch string `json:"patch"`
}

func (v FirmwareVersion) String() string {
	return fmt.Sprintf("V%d.%02d.%s", v.Major, v.Minor, v.Patch)
}

func validateRange(name string, v, lower, upper int) error {
	if v < lower || v > upper {
		return fmt.Errorf("%s %d is not a valid setting, pick a value between %d and %d", name, v, lower, upper)
	}
	return nil
}

// EnterConfiguration puts the radar into configuration mode. Every other
// configuration command is only accepted by the device between a successful
// EnterConfiguration and ExitConfiguration. On failure or timeout the
// controller returns to idle and the error is surfaced; the controller does
// not retry on its own.
func (c *Controller) EnterConfiguration() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case idle, stopped:
	case running:
		return fmt.Errorf("%w: stop the radar before configuring", ErrInvalidState)
	default:
		return fmt.Errorf("%w: %v", ErrInvalidState, c.state)
	}

	c.state = awaitingConfigAck
	res, err := c.roundTrip(CommandRequest{Command: CmdEnterConfig, Payload: []byte{0x01, 0x00}})
	if err != nil {
		c.state = idle
		return err
	}
	if len(res.Data) >= 4 {
		log.Debugf("Configuration mode open, protocol version %d, buffer size %d",
			binary.LittleEndian.Uint16(res.Data[0:2]), binary.LittleEndian.Uint16(res.Data[2:4]))
	}
	c.state = configuring
	return nil
}

// ExitConfiguration leaves configuration mode; the radar resumes reporting.
func (c *Controller) ExitConfiguration() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != configuring {
		return fmt.Errorf("%w: %v", ErrInvalidState, c.state)
	}
	if _, err := c.roundTrip(CommandRequest{Command: CmdExitConfig}); err != nil {
		return err
	}
	c.state = idle
	return nil
}

// EnableEngineeringMode adds per-gate energies to the radar output. The
// controller's mode flag only flips after the device acknowledged success.
func (c *Controller) EnableEngineeringMode() error {
	log.Info("Enabling engineering mode")
	if _, err := c.command(CmdEnableEngineering, nil); err != nil {
		return err
	}
	c.mu.Lock()
	c.mode = Engineering
	c.mu.Unlock()
	return nil
}

// DisableEngineeringMode returns the radar to the standard report layout.
func (c *Controller) DisableEngineeringMode() error {
	log.Info("Disabling engineering mode")
	if _, err := c.command(CmdDisableEngineering, nil); err != nil {
		return err
	}
	c.mu.Lock()
	c.mode = Standard
	c.mu.Unlock()
	return nil
}

// SetGateSensitivity configures the moving and static energy thresholds of
// one gate. The device does not accept a nonzero static sensitivity for
// gates 1 and 2.
func (c *Controller) SetGateSensitivity(gate, moving, static int) error {
	log.Infof("Setting gate %d sensitivity to moving=%d static=%d", gate, moving, static)
	if err := validateRange("gate", gate, GateMin, GateMax); err != nil {
		return err
	}
	if err := validateRange("moving sensitivity", moving, SensMin, SensMax); err != nil {
		return err
	}
	if gate == 1 || gate == 2 {
		if err := validateRange("static sensitivity", static, 0, 0); err != nil {
			return err
		}
	} else if err := validateRange("static sensitivity", static, SensMin, SensMax); err != nil {
		return err
	}

	var p []byte
	p = paramValue(p, paramGateSelect, uint32(gate))
	p = paramValue(p, paramMovingSens, uint32(moving))
	p = paramValue(p, paramStaticSens, uint32(static))
	_, err := c.command(CmdSetGateSensitivity, p)
	return err
}

// SetDetectionParams configures the furthest gates considered for moving
// and static detection plus the empty timeout in seconds.
func (c *Controller) SetDetectionParams(maxMovingGate, maxStaticGate, emptyTimeoutS int) error {
	log.Info("Editing detection parameters")
	if err := validateRange("max moving gate", maxMovingGate, GateMin, GateMax); err != nil {
		return err
	}
	if err := validateRange("max static gate", maxStaticGate, GateMin, GateMax); err != nil {
		return err
	}
	if err := validateRange("empty timeout", emptyTimeoutS, 0, 0xffff); err != nil {
		return err
	}

	var p []byte
	p = paramValue(p, paramMaxMovingGate, uint32(maxMovingGate))
	p = paramValue(p, paramMaxStaticGate, uint32(maxStaticGate))
	p = paramValue(p, paramEmptyDuration, uint32(emptyTimeoutS))
	_, err := c.command(CmdSetDetectionParams, p)
	return err
}

// readParametersHead marks the start of the ReadParameters response body.
const readParametersHead = 0xaa

// ReadParameters queries the currently configured detection parameters.
func (c *Controller) ReadParameters() (Parameters, error) {
	log.Info("Reading detection parameters")
	var params Parameters

	res, err := c.command(CmdReadParameters, nil)
	if err != nil {
		return params, err
	}
	// head(1) maxGate(1) maxMoving(1) maxStatic(1) 9+9 sensitivities, u16 timeout
	if len(res.Data) < 4+2*NumGates+2 {
		return params, fmt.Errorf("%w: parameter response is %d bytes", ErrMalformed, len(res.Data))
	}
	if res.Data[0] != readParametersHead {
		return params, fmt.Errorf("%w: parameter response head 0x%02x", ErrMalformed, res.Data[0])
	}

	params.MaxMovingGate = int(res.Data[2])
	params.MaxStaticGate = int(res.Data[3])
	for i := 0; i < NumGates; i++ {
		params.MovingSensitivity[i] = int(res.Data[4+i])
		params.StaticSensitivity[i] = int(res.Data[4+NumGates+i])
	}
	params.EmptyTimeoutS = int(binary.LittleEndian.Uint16(res.Data[4+2*NumGates:]))
	return params, nil
}

// ReadFirmwareVersion queries the radar firmware version.
func (c *Controller) ReadFirmwareVersion() (FirmwareVersion, error) {
	log.Info("Reading firmware version")
	var v FirmwareVersion

	res, err := c.command(CmdReadFirmware, nil)
	if err != nil {
		return v, err
	}
	// fwType(2) major(2 LE) minor(4 LE)
	if len(res.Data) < 8 {
		return v, fmt.Errorf("%w: firmware response is %d bytes", ErrMalformed, len(res.Data))
	}
	major := binary.LittleEndian.Uint16(res.Data[2:4])
	v.Major = int(major >> 8)
	v.Minor = int(major & 0xff)
	v.Patch = fmt.Sprintf("%02x%02x%02x%02x", res.Data[7], res.Data[6], res.Data[5], res.Data[4])
	return v, nil
}

// SetBaudRate selects the serial rate the radar uses after its next restart.
func (c *Controller) SetBaudRate(rate BaudRate) error {
	if rate < Baud9600 || rate > Baud460800 {
		return fmt.Errorf("baud rate index 0x%04x is not a valid setting", uint16(rate))
	}
	log.Infof("Setting baud rate index to 0x%04x", uint16(rate))
	p := binary.LittleEndian.AppendUint16(nil, uint16(rate))
	_, err := c.command(CmdSetBaudRate, p)
	return err
}

// FactoryReset restores all configuration values to factory settings.
// They take effect after the module restarts.
func (c *Controller) FactoryReset() error {
	log.Warn("Module will now be factory reset")
	_, err := c.command(CmdFactoryReset, nil)
	return err
}

// Restart reboots the module after the ack is sent. The device comes back
// in standard mode, so the controller's mode flag is reset as well.
func (c *Controller) Restart() error {
	log.Info("Restarting module")
	if _, err := c.command(CmdRestart, nil); err != nil {
		return err
	}
	c.mu.Lock()
	c.mode = Standard
	c.mu.Unlock()
	return nil
}

// SetBluetooth switches the radar's bluetooth radio on or off.
func (c *Controller) SetBluetooth(enable bool) error {
	p := []byte{0x00, 0x00}
	if enable {
		log.Info("Enabling Bluetooth")
		p = []byte{0x00, 0x01}
	} else {
		log.Info("Disabling Bluetooth")
	}
	_, err := c.command(CmdSetBluetooth, p)
	return err
}

// BluetoothMAC queries the bluetooth address, formatted xx:xx:xx:xx:xx:xx.
func (c *Controller) BluetoothMAC() (string, error) {
	log.Info("Getting Bluetooth address")
	res, err := c.command(CmdBluetoothMAC, []byte{0x01, 0x00})
	if err != nil {
		return "", err
	}
	if len(res.Data) < 6 {
		return "", fmt.Errorf("%w: MAC response is %d bytes", ErrMalformed, len(res.Data))
	}
	mac := fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x",
		res.Data[0], res.Data[1], res.Data[2], res.Data[3], res.Data[4], res.Data[5])
	log.Debugf("Bluetooth address is %v", mac)
	return mac, nil
}
