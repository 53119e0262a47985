// Command master runs a single node of the GFS-inspired master set.
package main

import (
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"gfs"
	"gfs/master"
)

func main() {
	var bindAddr string
	var configPath string

	root := &cobra.Command{
		Use:   "master",
		Short: "run a GFS master node",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := gfs.LoadConfig(configPath)
			if err != nil {
				return err
			}
			m := master.NewAndServe(gfs.ServerAddress(bindAddr), cfg)

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
			<-sig
			m.Shutdown()
			return nil
		},
	}
	root.Flags().StringVarP(&bindAddr, "address", "a", ":7777", "address to bind the master RPC listener")
	root.Flags().StringVarP(&configPath, "config", "c", "gfs.toml", "path to the cluster TOML config")

	if err := root.Execute(); err != nil {
		log.Fatal(err)
	}
}
