// package with dependencies on all packages, used to boot up in-process
// test instances of the cluster
package integration

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mhodder/driftfs/driftfs"
	"github.com/mhodder/driftfs/drpc"
	"github.com/mhodder/driftfs/nameserver"
	"github.com/mhodder/driftfs/storageserver"
)

// SingleNodeCluster runs a naming server and a set of storage servers over
// loopback inside one process. Used for testing.
type SingleNodeCluster struct {
	NameServer     *nameserver.NamingServer
	Names          driftfs.NameService
	Registration   driftfs.Registration
	StorageServers []*storageserver.StorageServer
}

// NewSingleNodeCluster boots a naming server on anonymous loopback ports
// and numSS storage servers rooted under baseDir (baseDir/ss0, baseDir/ss1,
// ...). Roots are created if missing, so they may be pre-populated before
// the call to exercise registration reconciliation.
func NewSingleNodeCluster(numSS int, baseDir string) (*SingleNodeCluster, error) {
	cl := &SingleNodeCluster{}
	// anonymous ports so concurrent test runs don't collide on the
	// well-known ones
	cl.NameServer = nameserver.NewNamingServer("127.0.0.1:0", "127.0.0.1:0")
	if err := cl.NameServer.Start(); err != nil {
		return nil, err
	}
	names, err := drpc.NewNameServiceClient(driftfs.Handle{
		Iface: driftfs.IfaceNameService,
		Addr:  cl.NameServer.ServiceAddr(),
	})
	if err != nil {
		return cl, err
	}
	cl.Names = names
	reg, err := drpc.NewRegistrationClient(driftfs.Handle{
		Iface: driftfs.IfaceRegistration,
		Addr:  cl.NameServer.RegistrationAddr(),
	})
	if err != nil {
		return cl, err
	}
	cl.Registration = reg
	cl.StorageServers = make([]*storageserver.StorageServer, 0, numSS)
	for i := 0; i < numSS; i++ {
		root := filepath.Join(baseDir, fmt.Sprintf("ss%d", i))
		if err := os.MkdirAll(root, 0755); err != nil {
			return cl, err
		}
		ss := storageserver.NewStorageServer(root)
		if err := ss.Start("127.0.0.1", "127.0.0.1:0", "127.0.0.1:0", reg); err != nil {
			return cl, err
		}
		cl.StorageServers = append(cl.StorageServers, ss)
	}
	return cl, nil
}

// AddStorageServer starts one more storage server over the given root,
// registering it with the cluster's naming server.
func (cl *SingleNodeCluster) AddStorageServer(root string) (*storageserver.StorageServer, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, err
	}
	ss := storageserver.NewStorageServer(root)
	if err := ss.Start("127.0.0.1", "127.0.0.1:0", "127.0.0.1:0", cl.Registration); err != nil {
		return nil, err
	}
	cl.StorageServers = append(cl.StorageServers, ss)
	return ss, nil
}

// Close stops every server in the cluster.
func (cl *SingleNodeCluster) Close() error {
	var retErr error
	for _, ss := range cl.StorageServers {
		if err := ss.Stop(); err != nil && retErr == nil {
			retErr = err
		}
	}
	if cl.NameServer != nil {
		if err := cl.NameServer.Stop(); err != nil && retErr == nil {
			retErr = err
		}
	}
	return retErr
}

// WaitClosed blocks until every server has stopped.
func (cl *SingleNodeCluster) WaitClosed() error {
	for _, ss := range cl.StorageServers {
		ss.WaitClosed()
	}
	if cl.NameServer != nil {
		return cl.NameServer.WaitClosed()
	}
	return nil
}
