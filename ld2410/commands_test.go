package ld2410

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

// configured returns a controller already in configuration mode, talking to
// a scripted radar that acks everything with the given response payloads.
func configured(t *testing.T, data map[Command][]byte) (*Controller, *fakeStream) {
	t.Helper()
	s := &fakeStream{onWrite: ackAll(data)}
	c := newTestController(s)
	require.NoError(t, c.EnterConfiguration())
	return c, s
}

func TestSetGateSensitivityWireFormat(t *testing.T) {
	c, s := configured(t, nil)

	require.NoError(t, c.SetGateSensitivity(3, 50, 40))

	// Last written frame: header(4) len(2) cmd(2) then three word/value pairs.
	out := s.written()
	frame := out[len(out)-(4+2+2+18+4):]
	require.Equal(t, cmdHeader, frame[:4])
	require.Equal(t, uint16(CmdSetGateSensitivity), binary.LittleEndian.Uint16(frame[6:8]))

	values := frame[8 : 8+18]
	require.Equal(t, paramGateSelect, binary.LittleEndian.Uint16(values[0:2]))
	require.Equal(t, uint32(3), binary.LittleEndian.Uint32(values[2:6]))
	require.Equal(t, paramMovingSens, binary.LittleEndian.Uint16(values[6:8]))
	require.Equal(t, uint32(50), binary.LittleEndian.Uint32(values[8:12]))
	require.Equal(t, paramStaticSens, binary.LittleEndian.Uint16(values[12:14]))
	require.Equal(t, uint32(40), binary.LittleEndian.Uint32(values[14:18]))
}

func TestSetGateSensitivityValidation(t *testing.T) {
	c, _ := configured(t, nil)

	require.Error(t, c.SetGateSensitivity(9, 50, 40))
	require.Error(t, c.SetGateSensitivity(3, 101, 40))
	require.Error(t, c.SetGateSensitivity(3, 50, -1))
	// Gates 1 and 2 only accept a zero static sensitivity.
	require.Error(t, c.SetGateSensitivity(1, 50, 40))
	require.NoError(t, c.SetGateSensitivity(1, 50, 0))
}

func TestSetDetectionParams(t *testing.T) {
	c, s := configured(t, nil)

	require.NoError(t, c.SetDetectionParams(2, 3, 1))

	out := s.written()
	frame := out[len(out)-(4+2+2+18+4):]
	require.Equal(t, uint16(CmdSetDetectionParams), binary.LittleEndian.Uint16(frame[6:8]))
	require.Equal(t, uint32(2), binary.LittleEndian.Uint32(frame[10:14]))

	require.Error(t, c.SetDetectionParams(9, 3, 1))
	require.Error(t, c.SetDetectionParams(2, 3, 0x10000))
}

func TestReadParameters(t *testing.T) {
	resp := []byte{readParametersHead, 0x08, 0x02, 0x03}
	resp = append(resp, 50, 50, 40, 30, 20, 15, 15, 15, 15) // moving sensitivities
	resp = append(resp, 0, 0, 40, 40, 30, 30, 20, 20, 20)   // static sensitivities
	resp = binary.LittleEndian.AppendUint16(resp, 5)

	c, _ := configured(t, map[Command][]byte{CmdReadParameters: resp})

	params, err := c.ReadParameters()
	require.NoError(t, err)
	require.Equal(t, 2, params.MaxMovingGate)
	require.Equal(t, 3, params.MaxStaticGate)
	require.Equal(t, 5, params.EmptyTimeoutS)
	require.Equal(t, 50, params.MovingSensitivity[0])
	require.Equal(t, 15, params.MovingSensitivity[8])
	require.Equal(t, 0, params.StaticSensitivity[0])
	require.Equal(t, 20, params.StaticSensitivity[8])
}

func TestReadParametersMalformed(t *testing.T) {
	c, _ := configured(t, map[Command][]byte{CmdReadParameters: {0x00, 0x01}})
	_, err := c.ReadParameters()
	require.ErrorIs(t, err, ErrMalformed)
}

func TestReadFirmwareVersion(t *testing.T) {
	// fw type 0x2410, version V1.07.22062416
	resp := []byte{0x10, 0x24, 0x07, 0x01, 0x16, 0x24, 0x06, 0x22}
	c, _ := configured(t, map[Command][]byte{CmdReadFirmware: resp})

	v, err := c.ReadFirmwareVersion()
	require.NoError(t, err)
	require.Equal(t, 1, v.Major)
	require.Equal(t, 7, v.Minor)
	require.Equal(t, "V1.07.22062416", v.String())
}

func TestBluetoothMAC(t *testing.T) {
	resp := []byte{0x8f, 0x27, 0x2e, 0xb8, 0x0f, 0x65}
	c, _ := configured(t, map[Command][]byte{CmdBluetoothMAC: resp})

	mac, err := c.BluetoothMAC()
	require.NoError(t, err)
	require.Equal(t, "8f:27:2e:b8:0f:65", mac)
}

func TestSetBaudRateValidation(t *testing.T) {
	c, _ := configured(t, nil)
	require.Error(t, c.SetBaudRate(0))
	require.Error(t, c.SetBaudRate(9))
	require.NoError(t, c.SetBaudRate(Baud115200))
}

func TestDeviceRejection(t *testing.T) {
	s := &fakeStream{onWrite: func(frame []byte) []byte {
		cmd := Command(binary.LittleEndian.Uint16(frame[6:8]))
		if cmd == CmdFactoryReset {
			return buildAck(cmd, 1)
		}
		return buildAck(cmd, 0)
	}}
	c := newTestController(s)
	require.NoError(t, c.EnterConfiguration())

	err := c.FactoryReset()
	require.Error(t, err)
	require.True(t, IsDeviceError(err))

	var de *DeviceError
	require.ErrorAs(t, err, &de)
	require.Equal(t, CmdFactoryReset, de.Command)
	require.Equal(t, uint16(1), de.Status)

	// The session stays usable after a rejection.
	require.NoError(t, c.ExitConfiguration())
}

func TestRestartResetsMode(t *testing.T) {
	c, _ := configured(t, nil)

	require.NoError(t, c.EnableEngineeringMode())
	require.Equal(t, Engineering, c.Mode())

	require.NoError(t, c.Restart())
	require.Equal(t, Standard, c.Mode())
}

func TestRoundTripDiscardsInFlightDataFrames(t *testing.T) {
	// A data frame still in the pipe when the ack arrives must not confuse
	// the command path.
	s := &fakeStream{onWrite: func(frame []byte) []byte {
		cmd := Command(binary.LittleEndian.Uint16(frame[6:8]))
		b := buildData(stdPayload(0x02, 1, 2, 3, 4, 5))
		return append(b, buildAck(cmd, 0, 0x01, 0x00, 0x40, 0x00)...)
	}}
	c := newTestController(s)

	require.NoError(t, c.EnterConfiguration())
}
