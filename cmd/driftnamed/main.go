package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/mhodder/driftfs/conf"
	"github.com/mhodder/driftfs/nameserver"
)

var (
	configFile  string
	serviceAddr string
	regAddr     string
)

func main() {
	cmd := &cobra.Command{
		Use:   "driftnamed",
		Short: "driftfs naming server",
		Long:  "Runs the driftfs naming server: the directory namespace and the storage registration endpoint.",
		RunE:  run,
	}
	flags := cmd.Flags()
	flags.StringVarP(&configFile, "config", "c", "", "JSON config file")
	flags.StringVar(&serviceAddr, "service-addr", "", "bind address for the client service (default: well-known port)")
	flags.StringVar(&regAddr, "registration-addr", "", "bind address for storage registration (default: well-known port)")
	if err := cmd.Execute(); err != nil {
		logrus.WithError(err).Fatal("naming server failed")
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg := conf.NamingConfig{}
	if configFile != "" {
		if err := cfg.ReadConfig(configFile); err != nil {
			return err
		}
	}
	// flags override config
	cmd.Flags().Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "service-addr":
			cfg.ServiceBindAddr = serviceAddr
		case "registration-addr":
			cfg.RegistrationBindAddr = regAddr
		}
	})
	ns := nameserver.NewNamingServer(cfg.ServiceBindAddr, cfg.RegistrationBindAddr)
	if err := ns.Start(); err != nil {
		return err
	}
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigs
	logrus.WithField("signal", sig.String()).Info("shutting down")
	if err := ns.Stop(); err != nil {
		return err
	}
	return ns.WaitClosed()
}
