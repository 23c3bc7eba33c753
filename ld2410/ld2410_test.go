package ld2410

import (
	"encoding/binary"
	"io"
	"sync"
	"testing"
	"time"
)

// fakeStream stands in for the serial port. Reads drain the in buffer and
// behave like a tarm/serial read timeout (0, io.EOF) when it is empty.
// An optional onWrite hook lets tests script the radar's ack responses.
type fakeStream struct {
	mu      sync.Mutex
	in      []byte
	out     []byte
	onWrite func(frame []byte) []byte
}

func (s *fakeStream) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.in) == 0 {
		return 0, io.EOF
	}
	n := copy(p, s.in)
	s.in = s.in[n:]
	return n, nil
}

func (s *fakeStream) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.out = append(s.out, p...)
	if s.onWrite != nil {
		frame := append([]byte(nil), p...)
		s.in = append(s.in, s.onWrite(frame)...)
	}
	return len(p), nil
}

func (s *fakeStream) feed(chunks ...[]byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range chunks {
		s.in = append(s.in, c...)
	}
}

func (s *fakeStream) written() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.out...)
}

// ackAll responds to every command frame with a success ack, using the data
// payloads from the given map where present.
func ackAll(data map[Command][]byte) func([]byte) []byte {
	return func(frame []byte) []byte {
		cmd := Command(binary.LittleEndian.Uint16(frame[6:8]))
		return buildAck(cmd, 0, data[cmd]...)
	}
}

func buildFrame(header, footer, payload []byte) []byte {
	f := append([]byte(nil), header...)
	f = binary.LittleEndian.AppendUint16(f, uint16(len(payload)))
	f = append(f, payload...)
	return append(f, footer...)
}

func buildData(payload []byte) []byte {
	return buildFrame(dataHeader, dataFooter, payload)
}

func buildAck(cmd Command, status uint16, data ...byte) []byte {
	p := binary.LittleEndian.AppendUint16(nil, uint16(cmd)|ackReplyBit)
	p = binary.LittleEndian.AppendUint16(p, status)
	p = append(p, data...)
	return buildFrame(cmdHeader, cmdFooter, p)
}

func stdPayload(state byte, movDist uint16, movEnergy byte, statDist uint16, statEnergy byte, detDist uint16) []byte {
	p := []byte{typeStandard, state}
	p = binary.LittleEndian.AppendUint16(p, movDist)
	p = append(p, movEnergy)
	p = binary.LittleEndian.AppendUint16(p, statDist)
	p = append(p, statEnergy)
	return binary.LittleEndian.AppendUint16(p, detDist)
}

func engPayload(state byte, movDist uint16, movEnergy byte, statDist uint16, statEnergy byte, detDist uint16, moving, static [NumGates]byte) []byte {
	p := stdPayload(state, movDist, movEnergy, statDist, statEnergy, detDist)
	p[0] = typeEngineering
	p = append(p, moving[:]...)
	return append(p, static[:]...)
}

// waitFor polls cond until it holds or the test deadline expires.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}
