package drpc

import (
	"encoding/gob"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/mhodder/driftfs/driftfs"
)

// Handler invokes one method on a server object: it decodes the request
// body, calls the implementation, and returns the encoded response or the
// application error the call raised.
type Handler func(body []byte) ([]byte, error)

// DispatchTable maps method names of one remote interface to handlers bound
// to a server object. Building a table is how an interface is declared
// remote-capable: every driftfs service method carries a trailing error, and
// only such methods can be wrapped as Handlers.
type DispatchTable map[string]Handler

const (
	stateUnstarted = iota
	stateRunning
	stateStopped
)

// anonymous skeletons draw ports from an advancing sequence
var anonPort uint32 = 7500 - 1

func nextAnonAddr() string {
	return fmt.Sprintf("127.0.0.1:%d", atomic.AddUint32(&anonPort, 1))
}

// Skeleton is the server half of the invocation layer: a multithreaded TCP
// listener bound to one address, dispatching decoded calls against one
// server object through a dispatch table. The lifecycle is
// Unstarted -> Running -> Stopped, with no restart.
type Skeleton struct {
	iface string
	disp  DispatchTable
	addr  string

	mu       sync.Mutex
	state    int
	lis      *net.TCPListener
	workers  sync.WaitGroup
	done     bool
	stopErr  error
	stopOnce sync.Once
	closed   *sync.Cond

	// OnStopped runs exactly once after the skeleton stops, carrying nil on
	// a clean stop or the error that terminated the listener.
	OnStopped func(cause error)
	// OnListenError decides whether the accept loop survives a top-level
	// error. Default policy is to stop.
	OnListenError func(err error) bool
	// OnServiceError observes failures inside a service worker; the worker's
	// connection is closed afterwards.
	OnServiceError func(err error)
}

// NewSkeleton builds a skeleton for the named remote interface around a
// dispatch table bound to the server object. An empty addr assigns the next
// address in the anonymous port sequence. Nil or empty arguments are
// programmer errors.
func NewSkeleton(iface string, disp DispatchTable, addr string) (*Skeleton, error) {
	if iface == "" {
		return nil, errors.Wrap(driftfs.E_INVAL, "skeleton needs an interface name")
	}
	if len(disp) == 0 {
		return nil, errors.Wrap(driftfs.E_INVAL, "skeleton needs a dispatch table")
	}
	if addr == "" {
		addr = nextAnonAddr()
	}
	s := &Skeleton{
		iface: iface,
		disp:  disp,
		addr:  addr,
	}
	s.closed = sync.NewCond(&s.mu)
	return s, nil
}

// Addr returns the currently configured address. Before Start this is the
// configured or assigned bind address; after Start it is the bound address.
func (s *Skeleton) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Iface returns the remote interface name this skeleton serves.
func (s *Skeleton) Iface() string {
	return s.iface
}

// Running reports whether the skeleton is accepting connections.
func (s *Skeleton) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == stateRunning
}

// SetHostname replaces the host part of the bind address. Only legal before
// Start.
func (s *Skeleton) SetHostname(host string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != stateUnstarted {
		return errors.Wrap(driftfs.E_INVAL, "cannot rebind a started skeleton")
	}
	_, port, err := net.SplitHostPort(s.addr)
	if err != nil {
		return errors.Wrap(err, "bad skeleton address")
	}
	s.addr = net.JoinHostPort(host, port)
	return nil
}

// Start binds the listening socket and spawns the accept loop, returning
// immediately. Fails with a transport error if the skeleton is not
// Unstarted or the socket cannot be bound.
func (s *Skeleton) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != stateUnstarted {
		return transportErr("start", s.addr, errors.New("skeleton already started"))
	}
	tcpAddr, err := net.ResolveTCPAddr("tcp", s.addr)
	if err != nil {
		return transportErr("resolve", s.addr, err)
	}
	lis, err := net.ListenTCP("tcp", tcpAddr)
	if err != nil {
		return transportErr("bind", s.addr, err)
	}
	s.lis = lis
	s.addr = lis.Addr().String()
	s.state = stateRunning
	registerSkeleton(s)
	go s.acceptLoop()
	logrus.WithFields(logrus.Fields{"iface": s.iface, "addr": s.addr}).Info("skeleton listening")
	return nil
}

// Stop closes the listening socket. Workers already servicing connections
// run to completion; the stopped hook fires once the listener has exited.
func (s *Skeleton) Stop() error {
	s.mu.Lock()
	if s.state != stateRunning {
		s.mu.Unlock()
		return nil
	}
	s.state = stateStopped
	lis := s.lis
	s.mu.Unlock()
	return lis.Close()
}

// WaitClosed blocks until the listener has exited and in-flight workers
// have drained, returning the cause of a premature stop if there was one.
func (s *Skeleton) WaitClosed() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for !s.done {
		s.closed.Wait()
	}
	return s.stopErr
}

func (s *Skeleton) acceptLoop() {
	var cause error
	for {
		conn, err := s.lis.AcceptTCP()
		if err != nil {
			s.mu.Lock()
			stopping := s.state != stateRunning
			s.mu.Unlock()
			if stopping {
				// clean stop
				break
			}
			if s.OnListenError != nil && s.OnListenError(err) {
				continue
			}
			logrus.WithFields(logrus.Fields{"iface": s.iface, "addr": s.addr}).
				WithError(err).Error("accept failed, stopping skeleton")
			cause = err
			s.lis.Close()
			break
		}
		conn.SetNoDelay(true)
		s.workers.Add(1)
		go s.serveConn(conn)
	}
	s.workers.Wait()
	s.finish(cause)
}

func (s *Skeleton) finish(cause error) {
	s.mu.Lock()
	s.state = stateStopped
	s.done = true
	s.stopErr = cause
	unregisterSkeleton(s)
	s.closed.Broadcast()
	s.mu.Unlock()
	s.stopOnce.Do(func() {
		if s.OnStopped != nil {
			s.OnStopped(cause)
		}
	})
}

// serveConn handles one client connection: frames arrive strictly serially,
// one reply per call, until the peer hangs up or a worker-level failure
// closes the connection.
func (s *Skeleton) serveConn(conn *net.TCPConn) {
	defer s.workers.Done()
	defer conn.Close()
	dec := gob.NewDecoder(conn)
	enc := gob.NewEncoder(conn)
	for {
		var call callFrame
		if err := dec.Decode(&call); err != nil {
			// EOF is the normal end of a connection; anything else is a
			// protocol failure worth reporting
			if err != io.EOF {
				s.serviceError(errors.Wrap(err, "decoding call frame"))
			}
			return
		}
		if call.Iface != s.iface {
			s.serviceError(fmt.Errorf("call for interface %q on skeleton %q", call.Iface, s.iface))
			return
		}
		handler, ok := s.disp[call.Method]
		if !ok {
			s.serviceError(fmt.Errorf("no method %s on interface %s", call.Method, s.iface))
			return
		}
		respBody, appErr := s.invoke(handler, call.Body)
		reply := replyFrame{Body: respBody, Fault: faultOf(appErr)}
		if err := enc.Encode(&reply); err != nil {
			s.serviceError(errors.Wrap(err, "writing reply frame"))
			return
		}
	}
}

// invoke runs one handler, converting a panic in the server object into an
// application failure rather than killing the worker.
func (s *Skeleton) invoke(h Handler, body []byte) (resp []byte, appErr error) {
	defer func() {
		if x := recover(); x != nil {
			appErr = fmt.Errorf("panic in server object: %v", x)
		}
	}()
	return h(body)
}

func (s *Skeleton) serviceError(err error) {
	if s.OnServiceError != nil {
		s.OnServiceError(err)
		return
	}
	logrus.WithFields(logrus.Fields{"iface": s.iface, "addr": s.addr}).
		WithError(err).Warn("service worker error")
}
