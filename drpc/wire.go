package drpc

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"

	"github.com/mhodder/driftfs/driftfs"
)

// callFrame is one request on the wire: the interface and method being
// invoked plus the gob-encoded request struct for that method. Connections
// carry frames strictly serially, one reply per call.
type callFrame struct {
	Iface  string
	Method string
	Body   []byte
}

// replyFrame carries either the gob-encoded response struct or a fault
// descriptor for an application failure raised by the server object.
type replyFrame struct {
	Body  []byte
	Fault *Fault
}

// Fault describes an application failure well enough for the client to
// rebuild an equivalent error locally. Transport failures of the connection
// carrying the call never travel as faults; a transport error the server
// object itself returned travels with kind transportFaultKind.
type Fault struct {
	Kind string
	Msg  string
}

// transportFaultKind marks a failure that was a transport error on the
// server side (a remote call the server itself made); it must stay a
// transport error after crossing back to the client.
const transportFaultKind = "TRANSPORT"

func faultOf(err error) *Fault {
	if err == nil {
		return nil
	}
	if IsTransport(err) {
		return &Fault{Kind: transportFaultKind, Msg: err.Error()}
	}
	return &Fault{Kind: driftfs.FaultKind(err), Msg: err.Error()}
}

func (f *Fault) err() error {
	if f == nil {
		return nil
	}
	if f.Kind == transportFaultKind {
		return &TransportError{Op: "remote", Err: errors.New(f.Msg)}
	}
	return driftfs.KindError(f.Kind, f.Msg)
}

// TransportError is any failure of the invocation layer itself: refused
// connections, codec failures, protocol violations, premature close. It is
// distinguishable by type from application failures.
type TransportError struct {
	Op   string
	Addr string
	Err  error
}

func (e *TransportError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("transport: %s %s", e.Op, e.Addr)
	}
	return fmt.Sprintf("transport: %s %s: %s", e.Op, e.Addr, e.Err.Error())
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsTransport reports whether err originated in the invocation layer rather
// than in a server object.
func IsTransport(err error) bool {
	for err != nil {
		if _, ok := err.(*TransportError); ok {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

func transportErr(op, addr string, err error) *TransportError {
	return &TransportError{Op: op, Addr: addr, Err: err}
}

// encodeBody gobs a request or response struct into a frame body.
func encodeBody(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeBody(b []byte, v interface{}) error {
	return gob.NewDecoder(bytes.NewReader(b)).Decode(v)
}
