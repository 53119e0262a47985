// Command chunkserver runs a single chunk node.
package main

import (
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"gfs"
	"gfs/chunkserver"
)

func main() {
	var bindAddr string
	var configPath string

	root := &cobra.Command{
		Use:   "chunkserver",
		Short: "run a GFS chunk node",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := gfs.LoadConfig(configPath)
			if err != nil {
				return err
			}
			cs := chunkserver.NewAndServe(gfs.ServerAddress(bindAddr), cfg)

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
			<-sig
			cs.Shutdown()
			return nil
		},
	}
	root.Flags().StringVarP(&bindAddr, "address", "a", ":8888", "address to bind the chunkserver RPC listener")
	root.Flags().StringVarP(&configPath, "config", "c", "gfs.toml", "path to the cluster TOML config")

	if err := root.Execute(); err != nil {
		log.Fatal(err)
	}
}
