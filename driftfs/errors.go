package driftfs

import (
	"errors"
)

var (
	E_NOENT             = errors.New("E_NOENT")
	E_EXISTS            = errors.New("E_EXISTS")
	E_NOTDIR            = errors.New("E_NOTDIR")
	E_ISDIR             = errors.New("E_ISDIR")
	E_OUTOFRANGE        = errors.New("E_OUTOFRANGE")
	E_ALREADYREGISTERED = errors.New("E_ALREADYREGISTERED")
	E_INVAL             = errors.New("E_INVAL")
)

// fault kinds used in reply frames, one per sentinel
const (
	FaultNone              = ""
	FaultNotFound          = "NOENT"
	FaultExists            = "EXISTS"
	FaultNotDir            = "NOTDIR"
	FaultIsDir             = "ISDIR"
	FaultOutOfRange        = "OUTOFRANGE"
	FaultAlreadyRegistered = "ALREADYREGISTERED"
	FaultInval             = "INVAL"
	FaultApp               = "APP"
)

// FaultKind classifies an application error for the wire. Transport errors
// never pass through here; the rpc layer reports those on its own channel.
func FaultKind(err error) string {
	switch {
	case err == nil:
		return FaultNone
	case errors.Is(err, E_NOENT):
		return FaultNotFound
	case errors.Is(err, E_EXISTS):
		return FaultExists
	case errors.Is(err, E_NOTDIR):
		return FaultNotDir
	case errors.Is(err, E_ISDIR):
		return FaultIsDir
	case errors.Is(err, E_OUTOFRANGE):
		return FaultOutOfRange
	case errors.Is(err, E_ALREADYREGISTERED):
		return FaultAlreadyRegistered
	case errors.Is(err, E_INVAL):
		return FaultInval
	default:
		return FaultApp
	}
}

// KindError rebuilds the local equivalent of a remote application failure
// from its fault descriptor.
func KindError(kind string, msg string) error {
	var base error
	switch kind {
	case FaultNone:
		return nil
	case FaultNotFound:
		base = E_NOENT
	case FaultExists:
		base = E_EXISTS
	case FaultNotDir:
		base = E_NOTDIR
	case FaultIsDir:
		base = E_ISDIR
	case FaultOutOfRange:
		base = E_OUTOFRANGE
	case FaultAlreadyRegistered:
		base = E_ALREADYREGISTERED
	case FaultInval:
		base = E_INVAL
	default:
		return errors.New(msg)
	}
	if msg == "" || msg == base.Error() {
		return base
	}
	return &kindError{base: base, msg: msg}
}

type kindError struct {
	base error
	msg  string
}

func (e *kindError) Error() string { return e.msg }
func (e *kindError) Unwrap() error { return e.base }
