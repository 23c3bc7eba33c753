package ld2410

import (
	"fmt"
	"io"
	"net"
	"net/url"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tarm/serial"
)

// DefaultBaud is the factory baud rate of the LD2410.
const DefaultBaud = 256000

// Device is the basic ReadWriteCloser representation of a physical LD2410
// module, attached either directly via serial or through a tcp socket.
type Device struct {
	conn         io.ReadWriteCloser
	rlock, wlock sync.Mutex

	connected bool

	// Baud is used for serial connections. Defaults to DefaultBaud.
	Baud int
	// ReadTimeout bounds a single serial read poll.
	ReadTimeout time.Duration
}

// NewDevice returns an unconnected Device with default port settings.
func NewDevice() *Device {
	return &Device{Baud: DefaultBaud, ReadTimeout: 100 * time.Millisecond}
}

// Connect attaches to the radar via a serial device or a tcp socket.
// Accepted forms are a plain serial device path, file://<path>, or
// socket://host:port (alias tcp://).
func (d *Device) Connect(link string) error {
	d.rlock.Lock()
	d.wlock.Lock()
	defer d.rlock.Unlock()
	defer d.wlock.Unlock()

	u, err := url.Parse(link)
	if err != nil {
		d.connected = false
		return err
	}

	if (u.Scheme == "socket") || (u.Scheme == "tcp") {
		conn, err := net.Dial("tcp", u.Host)
		if err != nil {
			return err
		}
		conn.(*net.TCPConn).SetKeepAlive(true)
		conn.(*net.TCPConn).SetKeepAlivePeriod(30 * time.Second)
		d.conn = conn
	} else if (u.Scheme == "file") || (u.Scheme == "") {
		d.conn, err = serial.OpenPort(&serial.Config{
			Name:        u.Path,
			Baud:        d.Baud,
			Size:        8,
			Parity:      serial.ParityNone,
			StopBits:    serial.Stop1,
			ReadTimeout: d.ReadTimeout,
		})
		if err != nil {
			return err
		}
	} else {
		d.connected = false
		return fmt.Errorf("can not find a valid connection string in %q", link)
	}
	d.connected = true
	log.Infof("Connected to %v (baud %v)", link, d.Baud)
	return nil
}

// Close closes the underlying serial or network connection.
func (d *Device) Close() error {
	d.rlock.Lock()
	d.wlock.Lock()
	defer d.rlock.Unlock()
	defer d.wlock.Unlock()

	if !d.connected {
		return io.ErrClosedPipe
	}
	d.connected = false
	return d.conn.Close()
}

func (d *Device) Read(b []byte) (int, error) {
	d.rlock.Lock()
	defer d.rlock.Unlock()
	if !d.connected {
		return 0, io.EOF
	}
	n, err := d.conn.Read(b)
	if n > 0 {
		log.Debugf("Read b='%# x', n=%v, err=%v", b[0:n], n, err)
	}
	return n, err
}

func (d *Device) Write(b []byte) (int, error) {
	d.wlock.Lock()
	defer d.wlock.Unlock()
	if !d.connected {
		return 0, io.EOF
	}
	n, err := d.conn.Write(b)
	log.Debugf("Write b='%# x', n=%v, err=%v", b, n, err)
	return n, err
}

// Flush discards unread input on transports that support it.
func (d *Device) Flush() error {
	d.rlock.Lock()
	defer d.rlock.Unlock()
	if !d.connected {
		return io.ErrClosedPipe
	}
	if p, ok := d.conn.(*serial.Port); ok {
		return p.Flush()
	}
	return nil
}
