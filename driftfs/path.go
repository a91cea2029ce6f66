package driftfs

import (
	"encoding/gob"
	"hash/fnv"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// Path is the canonical name of a file or directory in the namespace.
// Paths are immutable values: the canonical string always starts with "/",
// components are separated by single slashes, and the root is exactly "/".
// The colon is reserved as a delimiter for application use and the slash is
// the component separator, so neither may appear inside a component.
type Path struct {
	str string
}

// RootPath is the distinguished root directory value.
var RootPath = Path{str: "/"}

// NewPath parses a path string. The string must begin with a forward slash
// and must not contain a colon. Empty components are dropped.
func NewPath(s string) (Path, error) {
	if s == "" {
		return Path{}, errors.Wrap(E_INVAL, "empty path string")
	}
	if !strings.HasPrefix(s, "/") {
		return Path{}, errors.Wrap(E_INVAL, "path must start with /")
	}
	if strings.Contains(s, ":") {
		return Path{}, errors.Wrap(E_INVAL, "path contains colon")
	}
	var b strings.Builder
	for _, comp := range strings.Split(s, "/") {
		if comp == "" {
			continue
		}
		b.WriteByte('/')
		b.WriteString(comp)
	}
	if b.Len() == 0 {
		return RootPath, nil
	}
	return Path{str: b.String()}, nil
}

// Join appends a single component to parent. The component must be non-empty
// and contain neither a slash nor a colon.
func Join(parent Path, component string) (Path, error) {
	if component == "" {
		return Path{}, errors.Wrap(E_INVAL, "empty component")
	}
	if strings.ContainsAny(component, "/:") {
		return Path{}, errors.Wrap(E_INVAL, "component contains / or :")
	}
	if parent.str == "" {
		parent = RootPath
	}
	if parent.IsRoot() {
		return Path{str: "/" + component}, nil
	}
	return Path{str: parent.str + "/" + component}, nil
}

func (p Path) IsRoot() bool {
	return p.str == "/" || p.str == ""
}

// Parent returns the path with the last component removed. The root has no
// parent.
func (p Path) Parent() (Path, error) {
	if p.IsRoot() {
		return Path{}, errors.Wrap(E_INVAL, "root has no parent")
	}
	i := strings.LastIndexByte(p.str, '/')
	if i == 0 {
		return RootPath, nil
	}
	return Path{str: p.str[:i]}, nil
}

// Last returns the final component. The root has no components.
func (p Path) Last() (string, error) {
	if p.IsRoot() {
		return "", errors.Wrap(E_INVAL, "root has no last component")
	}
	i := strings.LastIndexByte(p.str, '/')
	return p.str[i+1:], nil
}

// IsSubpath reports whether other is a prefix of p. Every path is a subpath
// of itself, and every path is a subpath extension of its parent.
func (p Path) IsSubpath(other Path) bool {
	this := p.canonical()
	prefix := other.canonical()
	if prefix == "/" {
		return true
	}
	if this == prefix {
		return true
	}
	return strings.HasPrefix(this, prefix+"/")
}

// Components returns the components of the path in order, in a fresh slice.
func (p Path) Components() []string {
	if p.IsRoot() {
		return []string{}
	}
	return strings.Split(p.str[1:], "/")
}

func (p Path) String() string {
	return p.canonical()
}

func (p Path) canonical() string {
	if p.str == "" {
		return "/"
	}
	return p.str
}

// Hash returns a stable hash agreeing with path equality.
func (p Path) Hash() uint64 {
	h := fnv.New64a()
	h.Write([]byte(p.canonical()))
	return h.Sum64()
}

// GobEncode serializes the canonical string so paths round-trip exactly on
// the wire.
func (p Path) GobEncode() ([]byte, error) {
	return []byte(p.canonical()), nil
}

func (p *Path) GobDecode(b []byte) error {
	parsed, err := NewPath(string(b))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// ListFiles enumerates all regular files under dir on the local filesystem,
// returning their paths relative to dir. Fails with E_NOENT if dir does not
// exist and E_NOTDIR if it is not a directory. Storage servers call this at
// registration time.
func ListFiles(dir string) ([]Path, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, errors.Wrap(E_NOENT, dir)
	}
	if !info.IsDir() {
		return nil, errors.Wrap(E_NOTDIR, dir)
	}
	paths := make([]Path, 0)
	err = filepath.WalkDir(dir, func(name string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, name)
		if err != nil {
			return err
		}
		p, err := NewPath("/" + filepath.ToSlash(rel))
		if err != nil {
			return err
		}
		paths = append(paths, p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return paths, nil
}

func init() {
	gob.Register(Path{})
}
