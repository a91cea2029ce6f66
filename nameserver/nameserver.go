package nameserver

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/mhodder/driftfs/driftfs"
	"github.com/mhodder/driftfs/drpc"
)

// registrant is one storage server known to the cluster: the handle pair it
// announced at registration. Membership is monotonic; nothing is ever
// removed.
type registrant struct {
	storage driftfs.Handle
	command driftfs.Handle
}

// NamingServer owns the namespace and mediates every mutation of it. It
// exposes the client-facing NameService on one skeleton and Registration on
// another, both at well-known ports.
type NamingServer struct {
	ns          *Namespace
	registrants []registrant
	regLock     sync.Mutex // serializes registration and placement decisions

	serviceAddr string
	regAddr     string
	serviceSkel *drpc.Skeleton
	regSkel     *drpc.Skeleton

	clos    *sync.Cond
	closed  bool
	done    bool
	started bool

	// OnStopped runs once after Stop, carrying nil on a clean shutdown.
	OnStopped func(cause error)
}

// NewNamingServer creates a naming server bound to the given service and
// registration addresses. Empty addresses take the well-known ports on the
// local host. The server is not started.
func NewNamingServer(serviceAddr, regAddr string) *NamingServer {
	if serviceAddr == "" {
		serviceAddr = fmt.Sprintf("127.0.0.1:%d", driftfs.NamingServicePort)
	}
	if regAddr == "" {
		regAddr = fmt.Sprintf("127.0.0.1:%d", driftfs.NamingRegistrationPort)
	}
	n := &NamingServer{
		ns:          NewNamespace(),
		registrants: make([]registrant, 0),
		serviceAddr: serviceAddr,
		regAddr:     regAddr,
	}
	n.clos = sync.NewCond(new(sync.Mutex))
	return n
}

// Start brings up both skeletons. After it returns, the client and
// registration interfaces are reachable remotely. The server cannot be
// restarted once stopped.
func (n *NamingServer) Start() error {
	n.clos.L.Lock()
	defer n.clos.L.Unlock()
	if n.started || n.closed {
		return errors.Wrap(driftfs.E_INVAL, "naming server already started")
	}
	var err error
	n.serviceSkel, err = drpc.NewNameServiceSkeleton(n, n.serviceAddr)
	if err != nil {
		return err
	}
	n.regSkel, err = drpc.NewRegistrationSkeleton(n, n.regAddr)
	if err != nil {
		return err
	}
	if err = n.serviceSkel.Start(); err != nil {
		return err
	}
	if err = n.regSkel.Start(); err != nil {
		n.serviceSkel.Stop()
		return err
	}
	n.started = true
	logrus.WithFields(logrus.Fields{
		"service":      n.serviceSkel.Addr(),
		"registration": n.regSkel.Addr(),
	}).Info("naming server up")
	return nil
}

// Stop closes both skeletons and fires the stopped hook. In-flight calls
// drain before WaitClosed unblocks.
func (n *NamingServer) Stop() error {
	n.clos.L.Lock()
	if n.closed {
		n.clos.L.Unlock()
		return nil
	}
	n.closed = true
	n.clos.L.Unlock()
	var retErr error
	if n.serviceSkel != nil {
		if err := n.serviceSkel.Stop(); err != nil {
			retErr = err
		}
		n.serviceSkel.WaitClosed()
	}
	if n.regSkel != nil {
		if err := n.regSkel.Stop(); err != nil && retErr == nil {
			retErr = err
		}
		n.regSkel.WaitClosed()
	}
	n.clos.L.Lock()
	n.done = true
	n.clos.Broadcast()
	n.clos.L.Unlock()
	if n.OnStopped != nil {
		n.OnStopped(nil)
	}
	return retErr
}

// WaitClosed blocks until Stop has stopped both skeletons and their
// in-flight calls have drained.
func (n *NamingServer) WaitClosed() error {
	n.clos.L.Lock()
	for !n.done {
		n.clos.Wait()
	}
	n.clos.L.Unlock()
	return nil
}

// ServiceAddr returns the bound address of the client-service skeleton.
func (n *NamingServer) ServiceAddr() string {
	return n.serviceSkel.Addr()
}

// RegistrationAddr returns the bound address of the registration skeleton.
func (n *NamingServer) RegistrationAddr() string {
	return n.regSkel.Addr()
}

// Namespace exposes the engine for in-process tests.
func (n *NamingServer) Namespace() *Namespace {
	return n.ns
}

// The following methods implement driftfs.NameService.

func (n *NamingServer) IsDirectory(p driftfs.Path) (bool, error) {
	if !n.ns.PathExists(p) {
		return false, errors.Wrap(driftfs.E_NOENT, p.String())
	}
	return n.ns.IsFolder(p), nil
}

func (n *NamingServer) List(dir driftfs.Path) ([]string, error) {
	return n.ns.List(dir)
}

func (n *NamingServer) CreateFile(p driftfs.Path) (bool, error) {
	n.regLock.Lock()
	defer n.regLock.Unlock()
	if p.IsRoot() {
		return false, nil
	}
	if !n.ns.ParentExists(p) {
		return false, errors.Wrap(driftfs.E_NOENT, "parent directory missing")
	}
	if n.ns.PathExists(p) {
		return false, nil
	}
	if len(n.registrants) == 0 {
		return false, &drpc.TransportError{Op: "createFile", Err: errors.New("no storage servers registered")}
	}
	// placement is deterministic: the first registrant in joining order
	reg := n.registrants[0]
	cmd, err := drpc.NewCommandClient(reg.command)
	if err != nil {
		return false, err
	}
	if _, err := cmd.Create(p); err != nil {
		return false, err
	}
	return n.ns.AddFile(p, reg.storage, reg.command)
}

func (n *NamingServer) CreateDirectory(p driftfs.Path) (bool, error) {
	n.regLock.Lock()
	defer n.regLock.Unlock()
	if p.IsRoot() {
		return false, nil
	}
	if !n.ns.ParentExists(p) {
		return false, errors.Wrap(driftfs.E_NOENT, "parent directory missing")
	}
	if n.ns.PathExists(p) {
		return false, nil
	}
	var storage, command driftfs.Handle
	if len(n.registrants) > 0 {
		storage = n.registrants[0].storage
		command = n.registrants[0].command
	}
	return n.ns.AddDirectory(p, storage, command)
}

// Delete removes p from the namespace after commanding the owning storage
// server to drop it from disk. A transport failure on the remote command
// surfaces as a false return and leaves the namespace untouched.
func (n *NamingServer) Delete(p driftfs.Path) (bool, error) {
	if !n.ns.PathExists(p) {
		return false, errors.Wrap(driftfs.E_NOENT, p.String())
	}
	if p.IsRoot() {
		return false, nil
	}
	h, err := n.ns.GetCommandHandle(p)
	if err != nil {
		return false, err
	}
	if !h.IsZero() {
		cmd, err := drpc.NewCommandClient(h)
		if err != nil {
			return false, err
		}
		if _, err := cmd.Delete(p); err != nil {
			if drpc.IsTransport(err) {
				// the owning storage server is unreachable; report failure
				// to the client without touching the namespace
				logrus.WithField("path", p.String()).WithError(err).
					Warn("storage server unreachable for delete")
				return false, nil
			}
			return false, err
		}
	}
	if err := n.ns.Delete(p); err != nil {
		return false, err
	}
	return true, nil
}

func (n *NamingServer) GetStorage(p driftfs.Path) (driftfs.Handle, error) {
	if !n.ns.PathExists(p) {
		return driftfs.Handle{}, errors.Wrap(driftfs.E_NOENT, p.String())
	}
	if n.ns.IsFolder(p) {
		return driftfs.Handle{}, errors.Wrap(driftfs.E_NOENT, "no storage handle for a directory")
	}
	return n.ns.GetStorageHandle(p)
}

// Register implements driftfs.Registration: the joining server announces its
// handle pair and pre-existing files, and receives back the paths it must
// delete because the namespace already binds them to an earlier registrant.
func (n *NamingServer) Register(storage driftfs.Handle, command driftfs.Handle, paths []driftfs.Path) ([]driftfs.Path, error) {
	if storage.IsZero() || command.IsZero() {
		return nil, errors.Wrap(driftfs.E_INVAL, "registration requires both handles")
	}
	n.regLock.Lock()
	defer n.regLock.Unlock()
	for _, r := range n.registrants {
		if r.storage == storage || r.command == command {
			return nil, errors.Wrap(driftfs.E_ALREADYREGISTERED, storage.Addr)
		}
	}
	toDelete := make([]driftfs.Path, 0)
	for _, p := range paths {
		if p.IsRoot() {
			continue
		}
		if n.ns.PathExists(p) {
			toDelete = append(toDelete, p)
		}
	}
	dup := make(map[driftfs.Path]bool, len(toDelete))
	for _, p := range toDelete {
		dup[p] = true
	}
	for _, p := range paths {
		if p.IsRoot() || dup[p] {
			continue
		}
		if _, err := n.ns.AddFile(p, storage, command); err != nil {
			return nil, err
		}
	}
	n.registrants = append(n.registrants, registrant{storage: storage, command: command})
	logrus.WithFields(logrus.Fields{
		"storage": storage.Addr,
		"files":   len(paths),
		"ceded":   len(toDelete),
	}).Info("storage server registered")
	return toDelete, nil
}
