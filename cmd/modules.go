package cmd

import (
	"fmt"

	"github.com/LanXuage/gzmap/common"
	"github.com/LanXuage/gzmap/probe"

	"github.com/spf13/cobra"
)

var (
	modulesCmd = &cobra.Command{
		Use:   "modules",
		Short: "List probe modules and their output fields",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := newRegistry()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				descs := []*probe.Descriptor{}
				for _, name := range reg.Names() {
					module, _ := reg.Get(name)
					descs = append(descs, module.Descriptor())
				}
				fmt.Fprintln(out, common.ToJSON(descs))
				return nil
			}
			for _, name := range reg.Names() {
				module, _ := reg.Get(name)
				desc := module.Descriptor()
				fmt.Fprintf(out, "%s\n", desc.Name)
				fmt.Fprintf(out, "  %s\n", desc.HelpText)
				fmt.Fprintf(out, "  packet length: %d, ports per target: %d\n", desc.PacketLength, desc.PortArgs)
				fmt.Fprintf(out, "  pcap filter: %s (snaplen %d)\n", desc.PcapFilter, desc.PcapSnaplen)
				fmt.Fprintf(out, "  fields:\n")
				for _, field := range desc.Fields {
					fmt.Fprintf(out, "    %-16s\t%-6s\t%s\n", field.Name, field.Type, field.Desc)
				}
			}
			return nil
		},
	}
)

func init() {
	modulesCmd.Flags().Bool("json", false, "print descriptors as JSON")
	rootCmd.AddCommand(modulesCmd)
}
