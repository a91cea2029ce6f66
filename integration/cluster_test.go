package integration

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"gotest.tools/v3/assert"

	"github.com/mhodder/driftfs/driftfs"
	"github.com/mhodder/driftfs/drpc"
)

func mustPath(t *testing.T, s string) driftfs.Path {
	t.Helper()
	p, err := driftfs.NewPath(s)
	assert.NilError(t, err)
	return p
}

func seed(t *testing.T, baseDir, ssDir string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		full := filepath.Join(baseDir, ssDir, filepath.FromSlash(rel))
		assert.NilError(t, os.MkdirAll(filepath.Dir(full), 0755))
		assert.NilError(t, os.WriteFile(full, []byte(content), 0644))
	}
}

// startCluster seeds storage roots under a temp dir, then boots a naming
// server plus one storage server per seeded root.
func startCluster(t *testing.T, roots []map[string]string) (*SingleNodeCluster, string) {
	t.Helper()
	baseDir := t.TempDir()
	for i, files := range roots {
		seed(t, baseDir, "ss"+string(rune('0'+i)), files)
	}
	cl, err := NewSingleNodeCluster(len(roots), baseDir)
	assert.NilError(t, err)
	t.Cleanup(func() { cl.Close() })
	return cl, baseDir
}

func TestRegisterAndList(t *testing.T) {
	cl, _ := startCluster(t, []map[string]string{
		{"a": "x", "b/c": "y", "b/d": "z"},
	})

	names, err := cl.Names.List(driftfs.RootPath)
	assert.NilError(t, err)
	assert.DeepEqual(t, names, []string{"a", "b"})

	names, err = cl.Names.List(mustPath(t, "/b"))
	assert.NilError(t, err)
	assert.DeepEqual(t, names, []string{"c", "d"})

	isDir, err := cl.Names.IsDirectory(mustPath(t, "/b"))
	assert.NilError(t, err)
	assert.Assert(t, isDir)
	isDir, err = cl.Names.IsDirectory(mustPath(t, "/a"))
	assert.NilError(t, err)
	assert.Assert(t, !isDir)
}

func TestDuplicateRegistration(t *testing.T) {
	cl, baseDir := startCluster(t, []map[string]string{
		{"a": "first", "b/c": "y", "b/d": "z"},
	})
	ssA := cl.StorageServers[0]

	// second server arrives holding /a and /e; it must cede /a
	seed(t, baseDir, "ssB", map[string]string{"a": "second", "e": "w"})
	ssB, err := cl.AddStorageServer(filepath.Join(baseDir, "ssB"))
	assert.NilError(t, err)

	h, err := cl.Names.GetStorage(mustPath(t, "/a"))
	assert.NilError(t, err)
	assert.Equal(t, ssA.StorageHandle(), h)

	h, err = cl.Names.GetStorage(mustPath(t, "/e"))
	assert.NilError(t, err)
	assert.Equal(t, ssB.StorageHandle(), h)

	// B's local copy of /a is gone
	_, err = os.Stat(filepath.Join(baseDir, "ssB", "a"))
	assert.Assert(t, os.IsNotExist(err))
}

func TestCreateFileMissingParent(t *testing.T) {
	cl, _ := startCluster(t, []map[string]string{{}})

	_, err := cl.Names.CreateFile(mustPath(t, "/x/y"))
	assert.Assert(t, errors.Is(err, driftfs.E_NOENT))

	created, err := cl.Names.CreateDirectory(mustPath(t, "/x"))
	assert.NilError(t, err)
	assert.Assert(t, created)

	created, err = cl.Names.CreateFile(mustPath(t, "/x/y"))
	assert.NilError(t, err)
	assert.Assert(t, created)

	h, err := cl.Names.GetStorage(mustPath(t, "/x/y"))
	assert.NilError(t, err)
	assert.Assert(t, !h.IsZero())

	// idempotence: a second create returns false and changes nothing
	created, err = cl.Names.CreateFile(mustPath(t, "/x/y"))
	assert.NilError(t, err)
	assert.Assert(t, !created)
	h2, err := cl.Names.GetStorage(mustPath(t, "/x/y"))
	assert.NilError(t, err)
	assert.Equal(t, h, h2)
}

func TestCreateFileNoStorageServers(t *testing.T) {
	cl, err := NewSingleNodeCluster(0, t.TempDir())
	assert.NilError(t, err)
	defer cl.Close()

	_, err = cl.Names.CreateFile(mustPath(t, "/f"))
	assert.Assert(t, err != nil)
	assert.Assert(t, drpc.IsTransport(err))
}

func TestDeleteSubtree(t *testing.T) {
	cl, baseDir := startCluster(t, []map[string]string{
		{"a": "x", "b/c": "y", "b/d": "z"},
	})

	deleted, err := cl.Names.Delete(mustPath(t, "/b"))
	assert.NilError(t, err)
	assert.Assert(t, deleted)

	_, err = cl.Names.IsDirectory(mustPath(t, "/b"))
	assert.Assert(t, errors.Is(err, driftfs.E_NOENT))
	_, err = cl.Names.GetStorage(mustPath(t, "/b/c"))
	assert.Assert(t, errors.Is(err, driftfs.E_NOENT))

	// gone from the storage server's disk as well
	_, err = os.Stat(filepath.Join(baseDir, "ss0", "b"))
	assert.Assert(t, os.IsNotExist(err))

	_, err = cl.Names.Delete(mustPath(t, "/b"))
	assert.Assert(t, errors.Is(err, driftfs.E_NOENT))
}

func TestByteIOOverTheWire(t *testing.T) {
	cl, _ := startCluster(t, []map[string]string{{"f": "0123456789"}})

	h, err := cl.Names.GetStorage(mustPath(t, "/f"))
	assert.NilError(t, err)
	storage, err := drpc.NewStorageClient(h)
	assert.NilError(t, err)

	p := mustPath(t, "/f")
	data, err := storage.Read(p, 0, 10)
	assert.NilError(t, err)
	assert.DeepEqual(t, data, []byte("0123456789"))

	_, err = storage.Read(p, 0, 11)
	assert.Assert(t, errors.Is(err, driftfs.E_OUTOFRANGE))

	assert.NilError(t, storage.Write(p, 0, []byte{1, 2, 3}))
	size, err := storage.Size(p)
	assert.NilError(t, err)
	assert.Equal(t, int64(3), size)

	assert.NilError(t, storage.Write(p, 3, []byte{4, 5}))
	size, err = storage.Size(p)
	assert.NilError(t, err)
	assert.Equal(t, int64(5), size)
	data, err = storage.Read(p, 0, 5)
	assert.NilError(t, err)
	assert.DeepEqual(t, data, []byte{1, 2, 3, 4, 5})
}

func TestTransportErrorSurfacesDistinctly(t *testing.T) {
	cl, _ := startCluster(t, []map[string]string{{"f": "data"}})

	h, err := cl.Names.GetStorage(mustPath(t, "/f"))
	assert.NilError(t, err)
	storage, err := drpc.NewStorageClient(h)
	assert.NilError(t, err)

	// stop the storage server out from under the cluster
	assert.NilError(t, cl.StorageServers[0].Stop())
	cl.StorageServers[0].WaitClosed()

	// a direct byte-I/O call observes a transport error, never a not-found
	_, err = storage.Read(mustPath(t, "/f"), 0, 4)
	assert.Assert(t, err != nil)
	assert.Assert(t, drpc.IsTransport(err))
	assert.Assert(t, !errors.Is(err, driftfs.E_NOENT))

	// a namespace delete that must reach the dead server degrades to false
	// without raising not-found; the binding stays visible
	deleted, err := cl.Names.Delete(mustPath(t, "/f"))
	assert.NilError(t, err)
	assert.Assert(t, !deleted)
	_, err = cl.Names.GetStorage(mustPath(t, "/f"))
	assert.NilError(t, err)
}

func TestNamingServerLifecycle(t *testing.T) {
	cl, _ := startCluster(t, []map[string]string{{}})

	stopped := make(chan error, 1)
	cl.NameServer.OnStopped = func(cause error) { stopped <- cause }
	assert.NilError(t, cl.NameServer.Stop())
	assert.NilError(t, <-stopped)
	assert.NilError(t, cl.NameServer.WaitClosed())

	// remote calls now fail with a transport error
	_, err := cl.Names.List(driftfs.RootPath)
	assert.Assert(t, drpc.IsTransport(err))
}
