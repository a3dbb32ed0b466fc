package cmd

import (
	"os"

	"github.com/LanXuage/gzmap/core/mptcp"
	"github.com/LanXuage/gzmap/probe"
	"github.com/spf13/cobra"
)

var (
	rootCmd = &cobra.Command{
		Use:   "gzmap",
		Short: "A stateless Internet-scale port scanner. ",
		Long: `Gzmap
   ____ _____ _ __ ___   __ _ _ __  
  / _  |_  / '_ ' _ \ / _' | '_ \ 
 | (_| |/ /| | | | | | (_| | |_) |
  \__, /___|_| |_| |_|\__,_| .__/ 
  |___/                    |_|    
https://github.com/LanXuage/gzmap

A stateless Internet-scale port scanner. `,
		Version:      "0.1.0",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				os.Setenv("GZMAP_LOG_LEVEL", "development")
			} else {
				os.Setenv("GZMAP_LOG_LEVEL", "production")
			}
		},
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

// newRegistry lists every probe module the binary ships.
func newRegistry() (*probe.Registry, error) {
	return probe.NewRegistry(mptcp.New())
}

func init() {
	rootCmd.PersistentFlags().BoolP("debug", "D", false, "set debug log level")
	rootCmd.PersistentFlags().BoolP("help", "H", false, "help for this command")
	rootCmd.PersistentFlags().BoolP("version", "V", false, "version for gzmap")
}
