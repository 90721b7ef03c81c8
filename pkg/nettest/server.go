// Package nettest implements the raw TCP throughput and latency test
// endpoint the launcher's network check dials. The framing is four
// ASCII command bytes followed by big-endian binary fields, so it
// stays trivial to speak from any client language.
package nettest

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"time"

	"github.com/op/go-logging"
)

var log = logging.MustGetLogger("NETTEST")

const (
	maxConcurrent = 10
	chunkSize     = 64 * 1024

	// A client gets this long to state what it wants.
	handshakeTimeout = 30 * time.Second

	maxTestSeconds    = 30
	maxEchoPackets    = 1000
	maxEchoPacketSize = 8192

	ioTimeout   = 5 * time.Second
	echoTimeout = 3 * time.Second
)

type Server struct {
	addr string
	sem  chan struct{}
}

func NewServer(addr string) *Server {
	return &Server{
		addr: addr,
		sem:  make(chan struct{}, maxConcurrent),
	}
}

// Run listens on the configured address and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	log.Infof("network test server listening on %s", ln.Addr())
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done. Split from Run so
// tests can bind an ephemeral port themselves.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			log.Errorf("accept: %v", err)
			continue
		}
		go s.handle(conn)
	}
}

func (s *Server) handle(conn net.Conn) {
	s.sem <- struct{}{}
	defer func() { <-s.sem }()
	defer conn.Close()

	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetKeepAlive(true)
		_ = tc.SetNoDelay(true)
	}

	var cmd [4]byte
	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	if _, err := io.ReadFull(conn, cmd[:]); err != nil {
		log.Warningf("read test type from %s: %v", conn.RemoteAddr(), err)
		return
	}

	var err error
	switch string(cmd[:]) {
	case "DOWN":
		err = s.download(conn)
	case "UPLD":
		err = s.upload(conn)
	case "ECHO":
		err = s.echo(conn)
	default:
		log.Warningf("unknown test type %q from %s", cmd[:], conn.RemoteAddr())
		return
	}
	if err != nil {
		log.Warningf("test connection from %s: %v", conn.RemoteAddr(), err)
	}
}

// readWindow reads the 4-byte big-endian test duration and caps it.
func readWindow(conn net.Conn) (time.Duration, error) {
	var b [4]byte
	if _, err := io.ReadFull(conn, b[:]); err != nil {
		return 0, err
	}
	secs := binary.BigEndian.Uint32(b[:])
	if secs > maxTestSeconds {
		secs = maxTestSeconds
	}
	return time.Duration(secs) * time.Second, nil
}

func ack(conn net.Conn) error {
	_ = conn.SetWriteDeadline(time.Now().Add(ioTimeout))
	_, err := conn.Write([]byte("OK"))
	return err
}

// download streams random chunks at the client for the requested
// window. Bytes on the wire are what the client measures; we only log
// our side of the count.
func (s *Server) download(conn net.Conn) error {
	window, err := readWindow(conn)
	if err != nil {
		return err
	}
	if err := ack(conn); err != nil {
		return err
	}
	chunk := make([]byte, chunkSize)
	if _, err := rand.Read(chunk); err != nil {
		return err
	}
	deadline := time.Now().Add(window)
	var sent uint64
	for time.Now().Before(deadline) {
		_ = conn.SetWriteDeadline(time.Now().Add(ioTimeout))
		n, werr := conn.Write(chunk)
		sent += uint64(n)
		if werr != nil {
			break
		}
	}
	log.Infof("download test for %s done: %d bytes sent", conn.RemoteAddr(), sent)
	return nil
}

// upload counts what the client manages to push in its window, then
// reports the count back as 8 bytes big-endian.
func (s *Server) upload(conn net.Conn) error {
	window, err := readWindow(conn)
	if err != nil {
		return err
	}
	if err := ack(conn); err != nil {
		return err
	}
	buf := make([]byte, chunkSize)
	deadline := time.Now().Add(window)
	var received uint64
	for time.Now().Before(deadline) {
		_ = conn.SetReadDeadline(time.Now().Add(ioTimeout))
		n, rerr := conn.Read(buf)
		received += uint64(n)
		if rerr != nil {
			// Timeout here just means the client's window closed first.
			break
		}
	}
	var out [8]byte
	binary.BigEndian.PutUint64(out[:], received)
	_ = conn.SetWriteDeadline(time.Now().Add(ioTimeout))
	if _, err := conn.Write(out[:]); err != nil {
		return err
	}
	// Let the client read the count before the close lands.
	time.Sleep(100 * time.Millisecond)
	log.Infof("upload test for %s done: %d bytes received", conn.RemoteAddr(), received)
	return nil
}

// echo bounces length-prefixed packets back for latency and loss
// measurement. Frame is 2 bytes big-endian size then payload.
func (s *Server) echo(conn net.Conn) error {
	var b [4]byte
	if _, err := io.ReadFull(conn, b[:]); err != nil {
		return err
	}
	count := binary.BigEndian.Uint32(b[:])
	if count > maxEchoPackets {
		count = maxEchoPackets
	}
	if err := ack(conn); err != nil {
		return err
	}
	var sizeBytes [2]byte
	packet := make([]byte, maxEchoPacketSize)
	var echoed uint32
	for i := uint32(0); i < count; i++ {
		_ = conn.SetReadDeadline(time.Now().Add(echoTimeout))
		if _, err := io.ReadFull(conn, sizeBytes[:]); err != nil {
			break
		}
		size := int(binary.BigEndian.Uint16(sizeBytes[:]))
		if size > maxEchoPacketSize {
			log.Warningf("echo packet too large from %s: %d", conn.RemoteAddr(), size)
			break
		}
		if _, err := io.ReadFull(conn, packet[:size]); err != nil {
			break
		}
		_ = conn.SetWriteDeadline(time.Now().Add(echoTimeout))
		if _, err := conn.Write(sizeBytes[:]); err != nil {
			return err
		}
		if _, err := conn.Write(packet[:size]); err != nil {
			return err
		}
		echoed++
	}
	log.Infof("echo test for %s done: %d packets echoed", conn.RemoteAddr(), echoed)
	return nil
}
