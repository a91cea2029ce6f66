package storageserver

import (
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/mhodder/driftfs/driftfs"
	"github.com/mhodder/driftfs/drpc"
)

// StorageServer hosts one directory subtree on local disk and exposes it
// through two remote interfaces: bulk byte I/O (Storage) and mutation
// commands (Command). A file whose namespace path is /a/b/c lives at
// <root>/a/b/c; there is no sidecar metadata.
//
// One coarse lock serializes every remote operation, so any single read,
// write, size query, create or delete is atomic with respect to the others.
type StorageServer struct {
	root string

	lock sync.Mutex // guards all local filesystem state

	storageSkel *drpc.Skeleton
	commandSkel *drpc.Skeleton
	storageSelf driftfs.Handle
	commandSelf driftfs.Handle

	clos    *sync.Cond
	closed  bool
	done    bool
	started bool

	// OnStopped runs once after Stop, carrying nil on a clean shutdown.
	OnStopped func(cause error)
}

// NewStorageServer creates a storage server for the given local root. The
// server is not started and nothing is validated until Start.
func NewStorageServer(root string) *StorageServer {
	s := &StorageServer{root: root}
	s.clos = sync.NewCond(new(sync.Mutex))
	return s
}

// Start validates the root, brings up both skeletons on the
// externally-routable hostname, and registers with the naming server. Files
// the naming server reports as duplicates are deleted locally, and
// directories left empty by those deletions are pruned.
//
// storageAddr and commandAddr may be empty, in which case the skeletons
// draw anonymous ports.
func (s *StorageServer) Start(hostname string, storageAddr, commandAddr string, naming driftfs.Registration) error {
	s.clos.L.Lock()
	defer s.clos.L.Unlock()
	if s.started || s.closed {
		return errors.Wrap(driftfs.E_INVAL, "storage server already started")
	}
	if naming == nil {
		return errors.Wrap(driftfs.E_INVAL, "nil registration interface")
	}
	info, err := os.Stat(s.root)
	if err != nil {
		return errors.Wrap(driftfs.E_NOENT, s.root)
	}
	if !info.IsDir() {
		return errors.Wrap(driftfs.E_NOENT, s.root+" is not a directory")
	}

	s.storageSkel, err = drpc.NewStorageSkeleton(s, storageAddr)
	if err != nil {
		return err
	}
	s.commandSkel, err = drpc.NewCommandSkeleton(s, commandAddr)
	if err != nil {
		return err
	}
	if hostname != "" {
		if err = s.storageSkel.SetHostname(hostname); err != nil {
			return err
		}
		if err = s.commandSkel.SetHostname(hostname); err != nil {
			return err
		}
	}
	if err = s.storageSkel.Start(); err != nil {
		return err
	}
	if err = s.commandSkel.Start(); err != nil {
		s.storageSkel.Stop()
		return err
	}

	s.storageSelf, err = drpc.HandleFromSkeleton(s.storageSkel)
	if err != nil {
		return err
	}
	s.commandSelf, err = drpc.HandleFromSkeleton(s.commandSkel)
	if err != nil {
		return err
	}
	if hostname != "" {
		if s.storageSelf, err = drpc.HandleFromSkeletonHost(s.storageSkel, hostname); err != nil {
			return err
		}
		if s.commandSelf, err = drpc.HandleFromSkeletonHost(s.commandSkel, hostname); err != nil {
			return err
		}
	}

	files, err := driftfs.ListFiles(s.root)
	if err != nil {
		return err
	}
	toDelete, err := naming.Register(s.storageSelf, s.commandSelf, files)
	if err != nil {
		return err
	}
	for _, p := range toDelete {
		if _, err := s.Delete(p); err != nil {
			logrus.WithField("path", p.String()).WithError(err).
				Warn("failed to cede duplicate file")
		}
	}
	s.pruneEmptyDirs(s.root)
	s.started = true
	logrus.WithFields(logrus.Fields{
		"root":    s.root,
		"storage": s.storageSelf.Addr,
		"command": s.commandSelf.Addr,
		"files":   len(files),
		"ceded":   len(toDelete),
	}).Info("storage server up")
	return nil
}

// pruneEmptyDirs removes every empty directory under dir, including those
// emptied by ceding duplicates and any that were empty already. dir itself
// is never removed.
func (s *StorageServer) pruneEmptyDirs(dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, e := range entries {
		if e.IsDir() {
			child := filepath.Join(dir, e.Name())
			if s.pruneEmptyDirs(child) {
				os.Remove(child)
			}
		}
	}
	entries, err = os.ReadDir(dir)
	return err == nil && len(entries) == 0
}

// Stop closes both skeletons and fires the stopped hook. The server cannot
// be restarted.
func (s *StorageServer) Stop() error {
	s.clos.L.Lock()
	if s.closed {
		s.clos.L.Unlock()
		return nil
	}
	s.closed = true
	s.clos.L.Unlock()
	var retErr error
	if s.storageSkel != nil {
		if err := s.storageSkel.Stop(); err != nil {
			retErr = err
		}
		s.storageSkel.WaitClosed()
	}
	if s.commandSkel != nil {
		if err := s.commandSkel.Stop(); err != nil && retErr == nil {
			retErr = err
		}
		s.commandSkel.WaitClosed()
	}
	s.clos.L.Lock()
	s.done = true
	s.clos.Broadcast()
	s.clos.L.Unlock()
	if s.OnStopped != nil {
		s.OnStopped(nil)
	}
	return retErr
}

// WaitClosed blocks until Stop has stopped both skeletons and their
// in-flight calls have drained.
func (s *StorageServer) WaitClosed() error {
	s.clos.L.Lock()
	for !s.done {
		s.clos.Wait()
	}
	s.clos.L.Unlock()
	return nil
}

// StorageHandle returns the self-handle for the byte-I/O interface.
func (s *StorageServer) StorageHandle() driftfs.Handle { return s.storageSelf }

// CommandHandle returns the self-handle for the command interface.
func (s *StorageServer) CommandHandle() driftfs.Handle { return s.commandSelf }

// localPath maps a namespace path onto the local root.
func (s *StorageServer) localPath(p driftfs.Path) string {
	return filepath.Join(s.root, filepath.FromSlash(p.String()))
}

// The following methods implement driftfs.Storage.

func (s *StorageServer) Size(p driftfs.Path) (int64, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	info, err := os.Stat(s.localPath(p))
	if err != nil || info.IsDir() {
		return 0, errors.Wrap(driftfs.E_NOENT, p.String())
	}
	return info.Size(), nil
}

func (s *StorageServer) Read(p driftfs.Path, offset int64, length int) ([]byte, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	target := s.localPath(p)
	info, err := os.Stat(target)
	if err != nil || info.IsDir() {
		return nil, errors.Wrap(driftfs.E_NOENT, p.String())
	}
	if length < 0 || offset < 0 || offset+int64(length) > info.Size() {
		return nil, errors.Wrap(driftfs.E_OUTOFRANGE, p.String())
	}
	f, err := os.Open(target)
	if err != nil {
		return nil, errors.Wrap(err, "opening "+target)
	}
	defer f.Close()
	buf := make([]byte, length)
	if _, err := io.ReadFull(io.NewSectionReader(f, offset, int64(length)), buf); err != nil {
		return nil, errors.Wrap(err, "reading "+target)
	}
	return buf, nil
}

func (s *StorageServer) Write(p driftfs.Path, offset int64, data []byte) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	target := s.localPath(p)
	info, err := os.Stat(target)
	if err != nil || info.IsDir() {
		return errors.Wrap(driftfs.E_NOENT, p.String())
	}
	if offset < 0 {
		return errors.Wrap(driftfs.E_OUTOFRANGE, p.String())
	}
	f, err := os.OpenFile(target, os.O_RDWR, 0644)
	if err != nil {
		return errors.Wrap(err, "opening "+target)
	}
	defer f.Close()
	if _, err := f.WriteAt(data, offset); err != nil {
		return errors.Wrap(err, "writing "+target)
	}
	// the file's new length is exactly offset+len(data): offset 0 is a
	// truncating overwrite, and larger offsets keep only the prefix
	if err := f.Truncate(offset + int64(len(data))); err != nil {
		return errors.Wrap(err, "truncating "+target)
	}
	return nil
}

// The following methods implement driftfs.Command.

func (s *StorageServer) Create(p driftfs.Path) (bool, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if p.IsRoot() {
		return false, nil
	}
	target := s.localPath(p)
	if _, err := os.Stat(target); err == nil {
		return false, nil
	}
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return false, errors.Wrap(err, "creating parents for "+target)
	}
	f, err := os.Create(target)
	if err != nil {
		return false, errors.Wrap(err, "creating "+target)
	}
	f.Close()
	return true, nil
}

func (s *StorageServer) Delete(p driftfs.Path) (bool, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if p.IsRoot() {
		return false, nil
	}
	target := s.localPath(p)
	if _, err := os.Stat(target); err != nil {
		return false, nil
	}
	if err := os.RemoveAll(target); err != nil {
		return false, errors.Wrap(err, "deleting "+target)
	}
	return true, nil
}
