package drpc

import (
	"encoding/gob"
	"net"
	"time"

	"github.com/pkg/errors"

	"github.com/mhodder/driftfs/driftfs"
)

const dialTimeout = 10 * time.Second

// call ships one invocation to the handle's address and decodes the reply
// into resp. Stubs reconnect per call; a connection carries exactly one
// outstanding request. Failures of the layer itself come back as
// *TransportError, application failures as the error the server raised.
func call(h driftfs.Handle, method string, req interface{}, resp interface{}) error {
	if h.IsZero() {
		return transportErr("call", "", errors.New("zero handle"))
	}
	body, err := encodeBody(req)
	if err != nil {
		return transportErr("encode", h.Addr, err)
	}
	conn, err := net.DialTimeout("tcp", h.Addr, dialTimeout)
	if err != nil {
		return transportErr("dial", h.Addr, err)
	}
	defer conn.Close()
	if tc, ok := conn.(*net.TCPConn); ok {
		tc.SetNoDelay(true)
	}
	enc := gob.NewEncoder(conn)
	dec := gob.NewDecoder(conn)
	if err := enc.Encode(&callFrame{Iface: h.Iface, Method: method, Body: body}); err != nil {
		return transportErr("send", h.Addr, err)
	}
	var reply replyFrame
	if err := dec.Decode(&reply); err != nil {
		return transportErr("recv", h.Addr, err)
	}
	if reply.Fault != nil {
		return reply.Fault.err()
	}
	if resp != nil {
		if err := decodeBody(reply.Body, resp); err != nil {
			return transportErr("decode", h.Addr, err)
		}
	}
	return nil
}

// HandleFromSkeleton builds a handle referring to a running skeleton. The
// skeleton must be Running and reachable; the handle inherits its address.
func HandleFromSkeleton(sk *Skeleton) (driftfs.Handle, error) {
	if sk == nil {
		return driftfs.Handle{}, errors.Wrap(driftfs.E_INVAL, "nil skeleton")
	}
	if !sk.Running() {
		return driftfs.Handle{}, errors.Wrap(driftfs.E_INVAL, "skeleton is not running")
	}
	addr := sk.Addr()
	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return driftfs.Handle{}, transportErr("probe", addr, err)
	}
	conn.Close()
	return driftfs.Handle{Iface: sk.Iface(), Addr: addr}, nil
}

// HandleFromSkeletonHost builds a handle carrying the skeleton's port under
// an externally-routable hostname that overrides the skeleton's own. The
// skeleton must have an assigned port.
func HandleFromSkeletonHost(sk *Skeleton, hostname string) (driftfs.Handle, error) {
	if sk == nil || hostname == "" {
		return driftfs.Handle{}, errors.Wrap(driftfs.E_INVAL, "nil skeleton or empty hostname")
	}
	_, port, err := net.SplitHostPort(sk.Addr())
	if err != nil || port == "" || port == "0" {
		return driftfs.Handle{}, errors.Wrap(driftfs.E_INVAL, "skeleton has no assigned port")
	}
	return driftfs.Handle{Iface: sk.Iface(), Addr: net.JoinHostPort(hostname, port)}, nil
}

// checkHandle validates a handle at client construction: it must be
// non-zero and name the interface the client speaks.
func checkHandle(h driftfs.Handle, iface string) error {
	if h.IsZero() {
		return errors.Wrap(driftfs.E_INVAL, "zero handle")
	}
	if h.Iface != iface {
		return errors.Wrapf(driftfs.E_INVAL, "handle for %s used as %s", h.Iface, iface)
	}
	return nil
}
