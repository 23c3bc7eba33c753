package ld2410

import (
	"encoding/binary"
	"fmt"
)

// NumGates is the number of distance gates the radar reports on. Gate N
// covers the band [N*75, (N+1)*75) cm from the sensor.
const NumGates = 9

// Mode selects the data-frame layout the radar is reporting in. It is
// tracked by the session controller and changes only on an acknowledged
// enable/disable engineering command, never inferred from data frames.
type Mode byte

const (
	// Standard reports the six basic target fields.
	Standard Mode = iota
	// Engineering additionally reports per-gate energies.
	Engineering
)

func (m Mode) String() string {
	if m == Engineering {
		return "engineering"
	}
	return "standard"
}

// Data-type discriminator, first byte of every data-frame payload.
const (
	typeEngineering byte = 0x01
	typeStandard    byte = 0x02
)

// TargetState classifies what the radar currently sees.
type TargetState byte

const (
	TargetNone         TargetState = 0x00
	TargetMoving       TargetState = 0x01
	TargetStatic       TargetState = 0x02
	TargetMovingStatic TargetState = 0x03
)

func (t TargetState) String() string {
	switch t {
	case TargetNone:
		return "none"
	case TargetMoving:
		return "moving"
	case TargetStatic:
		return "static"
	case TargetMovingStatic:
		return "moving+static"
	default:
		return fmt.Sprintf("invalid(0x%02x)", byte(t))
	}
}

// Measurement is one decoded radar report. MovingGateEnergies and
// StaticGateEnergies are nil in standard mode and NumGates long in
// engineering mode; they are always both present or both absent.
type Measurement struct {
	TargetState         TargetState `json:"target_state"`
	MovingDistanceCm    int         `json:"moving_distance_cm"`
	MovingEnergy        int         `json:"moving_energy"`
	StaticDistanceCm    int         `json:"static_distance_cm"`
	StaticEnergy        int         `json:"static_energy"`
	DetectionDistanceCm int         `json:"detection_distance_cm"`

	MovingGateEnergies []int `json:"moving_gate_energies,omitempty"`
	StaticGateEnergies []int `json:"static_gate_energies,omitempty"`
}

// Payload lengths required by each layout: discriminator, target state,
// three little-endian distances and two energies, plus 2*NumGates gate
// energy bytes in engineering mode. Trailing bytes beyond these are ignored.
const (
	standardLen    = 1 + 1 + 2 + 1 + 2 + 1 + 2
	engineeringLen = standardLen + 2*NumGates
)

// decodeMeasurement interprets a data-frame payload according to mode. A
// discriminator that disagrees with mode means the controller's mode
// tracking has drifted from the device and is reported as malformed rather
// than being silently tolerated.
func decodeMeasurement(payload []byte, mode Mode) (Measurement, error) {
	var m Measurement
	if len(payload) < 1 {
		return m, fmt.Errorf("%w: empty data payload", ErrMalformed)
	}

	want := typeStandard
	need := standardLen
	if mode == Engineering {
		want = typeEngineering
		need = engineeringLen
	}
	if payload[0] != want {
		return m, fmt.Errorf("%w: data type 0x%02x does not match %v mode", ErrMalformed, payload[0], mode)
	}
	if len(payload) < need {
		return m, fmt.Errorf("%w: %v payload is %d bytes, need %d", ErrMalformed, mode, len(payload), need)
	}

	m.TargetState = TargetState(payload[1])
	m.MovingDistanceCm = int(binary.LittleEndian.Uint16(payload[2:4]))
	m.MovingEnergy = int(payload[4])
	m.StaticDistanceCm = int(binary.LittleEndian.Uint16(payload[5:7]))
	m.StaticEnergy = int(payload[7])
	m.DetectionDistanceCm = int(binary.LittleEndian.Uint16(payload[8:10]))

	if mode == Engineering {
		m.MovingGateEnergies = make([]int, NumGates)
		m.StaticGateEnergies = make([]int, NumGates)
		for i := 0; i < NumGates; i++ {
			m.MovingGateEnergies[i] = int(payload[10+i])
			m.StaticGateEnergies[i] = int(payload[10+NumGates+i])
		}
	}
	return m, nil
}
