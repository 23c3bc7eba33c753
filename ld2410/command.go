package ld2410

import (
	"encoding/binary"
	"fmt"
)

// Command is a 2-byte LD2410 command word, sent little-endian.
type Command uint16

// Command words understood by the radar. Configuration commands other than
// CmdEnterConfig are only accepted while the device is in configuration mode.
const (
	CmdEnterConfig        Command = 0x00ff
	CmdExitConfig         Command = 0x00fe
	CmdSetDetectionParams Command = 0x0060
	CmdReadParameters     Command = 0x0061
	CmdEnableEngineering  Command = 0x0062
	CmdDisableEngineering Command = 0x0063
	CmdSetGateSensitivity Command = 0x0064
	CmdReadFirmware       Command = 0x00a0
	CmdSetBaudRate        Command = 0x00a1
	CmdFactoryReset       Command = 0x00a2
	CmdRestart            Command = 0x00a3
	CmdSetBluetooth       Command = 0x00a4
	CmdBluetoothMAC       Command = 0x00a5
)

func (c Command) String() string {
	return fmt.Sprintf("0x%04x", uint16(c))
}

// ackReplyBit is set in the mirrored command word of every ack frame.
const ackReplyBit = 0x0100

// Parameter words used in the value part of CmdSetDetectionParams and
// CmdSetGateSensitivity. Each is followed by a 4-byte little-endian value.
const (
	paramMaxMovingGate uint16 = 0x0000
	paramMaxStaticGate uint16 = 0x0001
	paramEmptyDuration uint16 = 0x0002

	paramGateSelect uint16 = 0x0000
	paramMovingSens uint16 = 0x0001
	paramStaticSens uint16 = 0x0002
)

// CommandRequest is one outbound command plus its raw parameter bytes.
type CommandRequest struct {
	Command Command
	Payload []byte
}

// CommandResult is the device's answer to exactly one CommandRequest.
// Status 0 means success; any other value is a device-side rejection.
type CommandResult struct {
	Command Command
	Status  uint16
	Data    []byte
}

// Ok reports whether the device accepted the command.
func (r CommandResult) Ok() bool { return r.Status == 0 }

// encodeCommand builds the complete wire frame for a request:
// header, little-endian length, command word, payload, footer.
func encodeCommand(req CommandRequest) []byte {
	n := 2 + len(req.Payload)
	frame := make([]byte, 0, 4+2+n+4)
	frame = append(frame, cmdHeader...)
	frame = binary.LittleEndian.AppendUint16(frame, uint16(n))
	frame = binary.LittleEndian.AppendUint16(frame, uint16(req.Command))
	frame = append(frame, req.Payload...)
	frame = append(frame, cmdFooter...)
	return frame
}

// decodeAck parses an ack frame payload and checks that it answers want.
// A command-word mismatch is protocol confusion (malformed), distinct from
// a legitimate device rejection, which is reported via the Status field.
func decodeAck(raw RawFrame, want Command) (CommandResult, error) {
	var res CommandResult
	if raw.Kind != FrameAck {
		return res, fmt.Errorf("%w: %v frame is not an ack", ErrMalformed, raw.Kind)
	}
	if len(raw.Payload) < 4 {
		return res, fmt.Errorf("%w: ack payload is %d bytes, need at least 4", ErrMalformed, len(raw.Payload))
	}
	word := binary.LittleEndian.Uint16(raw.Payload[0:2])
	res.Command = Command(word &^ ackReplyBit)
	res.Status = binary.LittleEndian.Uint16(raw.Payload[2:4])
	if word != uint16(want)|ackReplyBit {
		return res, fmt.Errorf("%w: ack for command %v, expected %v", ErrMalformed, res.Command, want)
	}
	if len(raw.Payload) > 4 {
		res.Data = append([]byte(nil), raw.Payload[4:]...)
	}
	return res, nil
}

// paramValue appends a parameter word and its 4-byte little-endian value.
func paramValue(b []byte, word uint16, value uint32) []byte {
	b = binary.LittleEndian.AppendUint16(b, word)
	return binary.LittleEndian.AppendUint32(b, value)
}
