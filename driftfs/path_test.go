package driftfs

import (
	"bytes"
	"encoding/gob"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"gotest.tools/v3/assert"
)

func TestNewPathCanonicalizes(t *testing.T) {
	p, err := NewPath("/a//b///c/")
	assert.NilError(t, err)
	assert.Equal(t, "/a/b/c", p.String())

	p2, err := NewPath(p.String())
	assert.NilError(t, err)
	assert.Equal(t, p, p2)

	root, err := NewPath("////")
	assert.NilError(t, err)
	assert.Assert(t, root.IsRoot())
	assert.Equal(t, "/", root.String())
}

func TestNewPathRejectsIllegal(t *testing.T) {
	for _, bad := range []string{"", "a/b", "relative", "/a:b", "/:"} {
		_, err := NewPath(bad)
		assert.Assert(t, err != nil, "expected error for %q", bad)
		assert.Assert(t, errors.Is(err, E_INVAL))
	}
}

func TestJoin(t *testing.T) {
	p, err := Join(RootPath, "a")
	assert.NilError(t, err)
	assert.Equal(t, "/a", p.String())

	p, err = Join(p, "b")
	assert.NilError(t, err)
	assert.Equal(t, "/a/b", p.String())

	for _, bad := range []string{"", "x/y", "x:y"} {
		_, err = Join(p, bad)
		assert.Assert(t, errors.Is(err, E_INVAL), "expected E_INVAL for %q", bad)
	}
}

func TestParentAndLast(t *testing.T) {
	p, _ := NewPath("/a/b/c")
	parent, err := p.Parent()
	assert.NilError(t, err)
	assert.Equal(t, "/a/b", parent.String())

	last, err := p.Last()
	assert.NilError(t, err)
	assert.Equal(t, "c", last)

	top, _ := NewPath("/a")
	parent, err = top.Parent()
	assert.NilError(t, err)
	assert.Assert(t, parent.IsRoot())

	_, err = RootPath.Parent()
	assert.Assert(t, errors.Is(err, E_INVAL))
	_, err = RootPath.Last()
	assert.Assert(t, errors.Is(err, E_INVAL))
}

func TestIsSubpath(t *testing.T) {
	p, _ := NewPath("/a/b")
	parent, _ := p.Parent()
	other, _ := NewPath("/a/bc")

	assert.Assert(t, p.IsSubpath(p))
	assert.Assert(t, p.IsSubpath(parent))
	assert.Assert(t, p.IsSubpath(RootPath))
	// sibling with a shared string prefix is not a path prefix
	assert.Assert(t, !other.IsSubpath(p))
	assert.Assert(t, !parent.IsSubpath(p))
}

func TestComponentsIsolated(t *testing.T) {
	p, _ := NewPath("/a/b/c")
	comps := p.Components()
	assert.DeepEqual(t, comps, []string{"a", "b", "c"})
	comps[0] = "mutated"
	assert.Equal(t, "/a/b/c", p.String())
	assert.DeepEqual(t, p.Components(), []string{"a", "b", "c"})
}

func TestPathGobRoundTrip(t *testing.T) {
	for _, s := range []string{"/", "/a", "/a/b/c"} {
		p, _ := NewPath(s)
		var buf bytes.Buffer
		assert.NilError(t, gob.NewEncoder(&buf).Encode(p))
		var back Path
		assert.NilError(t, gob.NewDecoder(&buf).Decode(&back))
		assert.Equal(t, p, back)
		assert.Equal(t, s, back.String())
	}
}

func TestListFiles(t *testing.T) {
	dir := t.TempDir()
	mk := func(rel string) {
		full := filepath.Join(dir, filepath.FromSlash(rel))
		assert.NilError(t, os.MkdirAll(filepath.Dir(full), 0755))
		assert.NilError(t, os.WriteFile(full, []byte("x"), 0644))
	}
	mk("a")
	mk("b/c")
	mk("b/d")
	assert.NilError(t, os.MkdirAll(filepath.Join(dir, "empty"), 0755))

	paths, err := ListFiles(dir)
	assert.NilError(t, err)
	got := make([]string, len(paths))
	for i, p := range paths {
		got[i] = p.String()
	}
	sort.Strings(got)
	assert.DeepEqual(t, got, []string{"/a", "/b/c", "/b/d"})

	_, err = ListFiles(filepath.Join(dir, "missing"))
	assert.Assert(t, errors.Is(err, E_NOENT))
	_, err = ListFiles(filepath.Join(dir, "a"))
	assert.Assert(t, errors.Is(err, E_NOTDIR))
}

func TestHandleEqualityAndHash(t *testing.T) {
	h1 := Handle{Iface: IfaceStorage, Addr: "127.0.0.1:7500"}
	h2 := Handle{Iface: IfaceStorage, Addr: "127.0.0.1:7500"}
	h3 := Handle{Iface: IfaceCommand, Addr: "127.0.0.1:7500"}
	assert.Equal(t, h1, h2)
	assert.Equal(t, h1.Hash(), h2.Hash())
	assert.Assert(t, h1 != h3)
	assert.Assert(t, h1.Hash() != h3.Hash())
	assert.Assert(t, Handle{}.IsZero())
	assert.Assert(t, !h1.IsZero())
}

func TestFaultKindRoundTrip(t *testing.T) {
	for _, err := range []error{E_NOENT, E_EXISTS, E_NOTDIR, E_ISDIR, E_OUTOFRANGE, E_ALREADYREGISTERED, E_INVAL} {
		kind := FaultKind(err)
		back := KindError(kind, err.Error())
		assert.Assert(t, errors.Is(back, err), "kind %s", kind)
	}
	assert.Equal(t, FaultKind(nil), FaultNone)
	assert.Equal(t, FaultKind(errors.New("boom")), FaultApp)
	assert.Equal(t, KindError(FaultApp, "boom").Error(), "boom")
}
