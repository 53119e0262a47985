// Command client is a thin CLI driver over the GFS client RPC surface.
package main

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"gfs"
	"gfs/client"
)

var (
	configPath string
	username   string
	password   string
)

func main() {
	root := &cobra.Command{Use: "client", Short: "GFS client CLI"}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "gfs.toml", "path to the cluster TOML config")
	root.PersistentFlags().StringVarP(&username, "user", "u", "", "username, when authentication is enabled")
	root.PersistentFlags().StringVarP(&password, "pass", "p", "", "password, when authentication is enabled")

	root.AddCommand(uploadCmd(), readCmd(), appendCmd(), deleteCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newClient() (*client.Client, error) {
	cfg, err := gfs.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	c := client.NewClient(cfg.MasterAddrs, cfg)
	if cfg.UseAuthentication {
		if username == "" || password == "" {
			return nil, gfs.Errorf(gfs.AuthFailed, "authentication is enabled; pass -u and -p")
		}
		if err := c.Authenticate(username, password); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}

func uploadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "upload <file>",
		Short: "upload a local file to the cluster",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			c, err := newClient()
			if err != nil {
				fail(err)
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				fail(err)
			}
			if err := c.Upload(args[0], data); err != nil {
				fail(err)
			}
			log.Infof("uploaded %v (%d bytes)", args[0], len(data))
		},
	}
}

func readCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "read <file>",
		Short: "read a file from the cluster and print it to stdout",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			c, err := newClient()
			if err != nil {
				fail(err)
			}
			data, err := c.Read(args[0])
			if err != nil {
				fail(err)
			}
			os.Stdout.Write(data)
		},
	}
}

func appendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "append <file> <data>",
		Short: "append data to a file in the cluster",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			c, err := newClient()
			if err != nil {
				fail(err)
			}
			if err := c.Append(args[0], []byte(args[1])); err != nil {
				fail(err)
			}
			log.Infof("appended %d bytes to %v", len(args[1]), args[0])
		},
	}
}

func deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <file>",
		Short: "delete a file from the cluster",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			c, err := newClient()
			if err != nil {
				fail(err)
			}
			success, err := c.Delete(args[0])
			if err != nil {
				fail(err)
			}
			if !success {
				fail(fmt.Errorf("delete failed"))
			}
		},
	}
}
