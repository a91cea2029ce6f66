package nameserver

import (
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/mhodder/driftfs/driftfs"
)

// node is one entry in the directory tree: a directory with children, or a
// file. Both kinds carry the handles of the storage server that produced
// them; the root carries none.
type node struct {
	isDir    bool
	children map[string]*node
	storage  driftfs.Handle
	command  driftfs.Handle
}

func newDirNode(storage, command driftfs.Handle) *node {
	return &node{isDir: true, children: make(map[string]*node), storage: storage, command: command}
}

func newFileNode(storage, command driftfs.Handle) *node {
	return &node{isDir: false, storage: storage, command: command}
}

// Namespace is the in-memory directory tree mapping paths to their kind and
// storage binding. It lives and dies with the naming server; nothing is
// persisted. A single reader-writer lock guards the whole tree.
type Namespace struct {
	mu   sync.RWMutex
	root *node
}

func NewNamespace() *Namespace {
	return &Namespace{root: newDirNode(driftfs.Handle{}, driftfs.Handle{})}
}

// resolve walks the tree to the node at p, or nil if any component is
// missing or the walk passes through a file. Callers hold the lock.
func (ns *Namespace) resolve(p driftfs.Path) *node {
	cur := ns.root
	for _, comp := range p.Components() {
		if !cur.isDir {
			return nil
		}
		next, ok := cur.children[comp]
		if !ok {
			return nil
		}
		cur = next
	}
	return cur
}

// PathExists reports whether p resolves to a node. The root always exists.
func (ns *Namespace) PathExists(p driftfs.Path) bool {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	return ns.resolve(p) != nil
}

// IsFolder reports whether the node at p is a directory. Missing paths are
// not folders.
func (ns *Namespace) IsFolder(p driftfs.Path) bool {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	n := ns.resolve(p)
	return n != nil && n.isDir
}

// ParentExists reports whether the parent of p exists and is a directory.
func (ns *Namespace) ParentExists(p driftfs.Path) bool {
	if p.IsRoot() {
		return false
	}
	parent, err := p.Parent()
	if err != nil {
		return false
	}
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	n := ns.resolve(parent)
	return n != nil && n.isDir
}

// List returns the child names of the directory at dir, sorted for a stable
// view. Fails with not-found if dir is absent or is a file.
func (ns *Namespace) List(dir driftfs.Path) ([]string, error) {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	n := ns.resolve(dir)
	if n == nil {
		return nil, errors.Wrap(driftfs.E_NOENT, dir.String())
	}
	if !n.isDir {
		return nil, errors.Wrap(driftfs.E_NOENT, "not a directory: "+dir.String())
	}
	names := make([]string, 0, len(n.children))
	for name := range n.children {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// AddFile inserts a file node at p bound to the given handles, creating
// intermediate directories as needed. Returns false if p is the root. A
// pre-existing file at p is overwritten by the last caller; a traversal
// through an existing file fails with E_NOTDIR.
func (ns *Namespace) AddFile(p driftfs.Path, storage, command driftfs.Handle) (bool, error) {
	return ns.add(p, storage, command, false)
}

// AddDirectory is AddFile with a directory leaf.
func (ns *Namespace) AddDirectory(p driftfs.Path, storage, command driftfs.Handle) (bool, error) {
	return ns.add(p, storage, command, true)
}

func (ns *Namespace) add(p driftfs.Path, storage, command driftfs.Handle, dir bool) (bool, error) {
	if p.IsRoot() {
		return false, nil
	}
	ns.mu.Lock()
	defer ns.mu.Unlock()
	comps := p.Components()
	cur := ns.root
	for _, comp := range comps[:len(comps)-1] {
		if !cur.isDir {
			return false, errors.Wrap(driftfs.E_NOTDIR, p.String())
		}
		next, ok := cur.children[comp]
		if !ok {
			next = newDirNode(storage, command)
			cur.children[comp] = next
		}
		cur = next
	}
	if !cur.isDir {
		return false, errors.Wrap(driftfs.E_NOTDIR, p.String())
	}
	last := comps[len(comps)-1]
	if dir {
		if existing, ok := cur.children[last]; ok && existing.isDir {
			// keep an existing directory and its children
			return true, nil
		}
		cur.children[last] = newDirNode(storage, command)
	} else {
		cur.children[last] = newFileNode(storage, command)
	}
	return true, nil
}

// Delete removes the node at p along with its subtree. The root cannot be
// deleted.
func (ns *Namespace) Delete(p driftfs.Path) error {
	if p.IsRoot() {
		return errors.Wrap(driftfs.E_INVAL, "cannot delete the root")
	}
	ns.mu.Lock()
	defer ns.mu.Unlock()
	parent, _ := p.Parent()
	last, _ := p.Last()
	pn := ns.resolve(parent)
	if pn == nil || !pn.isDir {
		return errors.Wrap(driftfs.E_NOENT, p.String())
	}
	if _, ok := pn.children[last]; !ok {
		return errors.Wrap(driftfs.E_NOENT, p.String())
	}
	delete(pn.children, last)
	return nil
}

// GetStorageHandle returns the storage binding of the file at p.
func (ns *Namespace) GetStorageHandle(p driftfs.Path) (driftfs.Handle, error) {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	n := ns.resolve(p)
	if n == nil {
		return driftfs.Handle{}, errors.Wrap(driftfs.E_NOENT, p.String())
	}
	return n.storage, nil
}

// GetCommandHandle returns the command binding of the node at p.
func (ns *Namespace) GetCommandHandle(p driftfs.Path) (driftfs.Handle, error) {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	n := ns.resolve(p)
	if n == nil {
		return driftfs.Handle{}, errors.Wrap(driftfs.E_NOENT, p.String())
	}
	return n.command, nil
}
