package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/mhodder/driftfs/conf"
	"github.com/mhodder/driftfs/driftfs"
	"github.com/mhodder/driftfs/drpc"
	"github.com/mhodder/driftfs/storageserver"
)

var (
	configFile  string
	hostname    string
	namingAddr  string
	storageAddr string
	commandAddr string
	root        string
)

func main() {
	cmd := &cobra.Command{
		Use:   "driftstored",
		Short: "driftfs storage server",
		Long:  "Runs a driftfs storage server: serves one local directory and registers it with the naming server.",
		RunE:  run,
	}
	flags := cmd.Flags()
	flags.StringVarP(&configFile, "config", "c", "", "JSON config file")
	flags.StringVar(&hostname, "hostname", "", "externally-routable hostname carried in our handles")
	flags.StringVar(&namingAddr, "naming-addr", "", "address of the naming server's registration interface")
	flags.StringVar(&storageAddr, "storage-addr", "", "bind address for byte I/O (default: anonymous port)")
	flags.StringVar(&commandAddr, "command-addr", "", "bind address for commands (default: anonymous port)")
	flags.StringVarP(&root, "root", "r", "", "local directory to serve")
	if err := cmd.Execute(); err != nil {
		logrus.WithError(err).Fatal("storage server failed")
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg := conf.StorageConfig{}
	if configFile != "" {
		if err := cfg.ReadConfig(configFile); err != nil {
			return err
		}
	}
	cmd.Flags().Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "hostname":
			cfg.Hostname = hostname
		case "naming-addr":
			cfg.NamingAddr = namingAddr
		case "storage-addr":
			cfg.StorageBindAddr = storageAddr
		case "command-addr":
			cfg.CommandBindAddr = commandAddr
		case "root":
			cfg.Root = root
		}
	})
	if cfg.Root == "" {
		return fmt.Errorf("no storage root configured")
	}
	if cfg.NamingAddr == "" {
		cfg.NamingAddr = fmt.Sprintf("127.0.0.1:%d", driftfs.NamingRegistrationPort)
	}
	naming, err := drpc.NewRegistrationClient(driftfs.Handle{
		Iface: driftfs.IfaceRegistration,
		Addr:  cfg.NamingAddr,
	})
	if err != nil {
		return err
	}
	ss := storageserver.NewStorageServer(cfg.Root)
	if err := ss.Start(cfg.Hostname, cfg.StorageBindAddr, cfg.CommandBindAddr, naming); err != nil {
		return err
	}
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigs
	logrus.WithField("signal", sig.String()).Info("shutting down")
	if err := ss.Stop(); err != nil {
		return err
	}
	return ss.WaitClosed()
}
