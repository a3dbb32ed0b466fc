package cmd

import (
	"encoding/hex"
	"fmt"
	"net"
	"net/netip"

	"github.com/LanXuage/gzmap/common"
	"github.com/LanXuage/gzmap/common/constant"
	"github.com/LanXuage/gzmap/probe"
	"github.com/LanXuage/gzmap/validation"
	"github.com/spf13/cobra"
)

var (
	probeCmd = &cobra.Command{
		Use:   "probe TARGET",
		Short: "Build a single probe and dump it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			moduleName, _ := flags.GetString("module")
			targetPort, _ := flags.GetUint16("target-port")
			sourcePorts, _ := flags.GetString("source-port")
			probes, _ := flags.GetInt("probes")
			probeIdx, _ := flags.GetInt("probe-index")
			sourceIP, _ := flags.GetString("source-ip")
			sourceMAC, _ := flags.GetString("source-mac")
			gatewayMAC, _ := flags.GetString("gateway-mac")
			seedHex, _ := flags.GetString("seed")

			dst, err := netip.ParseAddr(args[0])
			if err != nil {
				return err
			}
			dstU, ok := common.Addr2Uint32(dst)
			if !ok {
				return fmt.Errorf("target %s is not IPv4", dst)
			}
			src, err := netip.ParseAddr(sourceIP)
			if err != nil {
				return err
			}
			srcU, ok := common.Addr2Uint32(src)
			if !ok {
				return fmt.Errorf("source %s is not IPv4", src)
			}
			srcMAC, err := net.ParseMAC(sourceMAC)
			if err != nil {
				return err
			}
			gwMAC, err := net.ParseMAC(gatewayMAC)
			if err != nil {
				return err
			}
			first, last, err := ParsePortRange(sourcePorts)
			if err != nil {
				return err
			}

			reg, err := newRegistry()
			if err != nil {
				return err
			}
			module, err := reg.Get(moduleName)
			if err != nil {
				return err
			}
			cfg := probe.Config{TargetPort: targetPort, SourcePortFirst: first, SourcePortLast: last, PacketStreams: probes}
			if err := module.Init(&cfg); err != nil {
				return err
			}
			codec, err := newCodec(seedHex)
			if err != nil {
				return err
			}

			buf := &probe.PacketBuffer{}
			wctx, err := module.InitWorker(buf, srcMAC, gwMAC, targetPort)
			if err != nil {
				return err
			}
			v := codec.Encode(validation.Identity{Src: srcU, Dst: dstU, Port: targetPort})
			if err := module.Build(buf, srcU, dstU, v, probeIdx, wctx); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			module.Print(out, buf.Bytes())
			fmt.Fprint(out, hex.Dump(buf.Bytes()))
			return nil
		},
	}
)

// newCodec uses the hex seed when given, a random one otherwise.
func newCodec(seedHex string) (*validation.Codec, error) {
	if seedHex == "" {
		return validation.NewRandom()
	}
	seed, err := hex.DecodeString(seedHex)
	if err != nil {
		return nil, fmt.Errorf("seed must be hex: %w", err)
	}
	return validation.New(seed)
}

func init() {
	probeCmd.Flags().StringP("module", "M", "mptcp_synscan", "probe module")
	probeCmd.Flags().Uint16P("target-port", "p", 80, "destination port")
	probeCmd.Flags().StringP("source-port", "s", fmt.Sprintf("%d-%d", constant.SourcePortFirst, constant.SourcePortLast), "source port range")
	probeCmd.Flags().IntP("probes", "P", constant.DefaultProbes, "probes per target")
	probeCmd.Flags().Int("probe-index", 0, "which of the target's probes to build")
	probeCmd.Flags().StringP("source-ip", "S", "0.0.0.0", "source address")
	probeCmd.Flags().String("source-mac", "00:00:00:00:00:00", "source hardware address")
	probeCmd.Flags().StringP("gateway-mac", "G", "ff:ff:ff:ff:ff:ff", "gateway hardware address")
	probeCmd.Flags().String("seed", "", "hex validation seed, random when empty")
	rootCmd.AddCommand(probeCmd)
}
