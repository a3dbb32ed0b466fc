package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/netip"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/LanXuage/gzmap/arp"
	"github.com/LanXuage/gzmap/common"
	"github.com/LanXuage/gzmap/config"
	"github.com/LanXuage/gzmap/counters"
	"github.com/LanXuage/gzmap/monitor"
	"github.com/LanXuage/gzmap/probe"
	"github.com/LanXuage/gzmap/receiver"
	"github.com/LanXuage/gzmap/sender"
	"github.com/LanXuage/gzmap/validation"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	PCAP_TIMEOUT     = 100 * time.Millisecond
	GATEWAY_TIMEOUT  = 3 * time.Second
	METRICS_SHUTDOWN = time.Second
)

var (
	scanCmd = &cobra.Command{
		Use:   "scan [TARGET...]",
		Short: "Scan targets with a probe module",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadScanConfig(cmd)
			if err != nil {
				return err
			}
			return runScan(cmd, cfg, append(cfg.Targets, args...))
		},
	}
)

// loadScanConfig reads --config when given and lays changed flags over it.
func loadScanConfig(cmd *cobra.Command) (*config.Config, error) {
	flags := cmd.Flags()
	cfg := config.Default()
	if path, _ := flags.GetString("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if flags.Changed("module") {
		cfg.Module, _ = flags.GetString("module")
	}
	if flags.Changed("target-port") {
		cfg.TargetPort, _ = flags.GetUint16("target-port")
	}
	if flags.Changed("source-port") {
		s, _ := flags.GetString("source-port")
		first, last, err := ParsePortRange(s)
		if err != nil {
			return nil, err
		}
		cfg.SourcePorts = config.PortRange{First: first, Last: last}
	}
	if flags.Changed("probes") {
		cfg.Probes, _ = flags.GetInt("probes")
	}
	if flags.Changed("rate") {
		cfg.Send.Rate, _ = flags.GetInt("rate")
	}
	if flags.Changed("sender-threads") {
		cfg.Send.Workers, _ = flags.GetInt("sender-threads")
	}
	if flags.Changed("interface") {
		cfg.Network.Interface, _ = flags.GetString("interface")
	}
	if flags.Changed("source-ip") {
		cfg.Network.SourceIP, _ = flags.GetString("source-ip")
	}
	if flags.Changed("gateway-mac") {
		cfg.Network.GatewayMAC, _ = flags.GetString("gateway-mac")
	}
	if flags.Changed("max-targets") {
		cfg.Limits.MaxTargets, _ = flags.GetUint64("max-targets")
	}
	if flags.Changed("max-results") {
		cfg.Limits.MaxResults, _ = flags.GetUint64("max-results")
	}
	if flags.Changed("max-runtime") {
		cfg.Limits.MaxRuntime, _ = flags.GetDuration("max-runtime")
	}
	if flags.Changed("cooldown-time") {
		cfg.Limits.Cooldown, _ = flags.GetDuration("cooldown-time")
	}
	if flags.Changed("quiet") {
		cfg.Status.Quiet, _ = flags.GetBool("quiet")
	}
	if flags.Changed("status-updates-file") {
		cfg.Status.UpdatesFile, _ = flags.GetString("status-updates-file")
	}
	if flags.Changed("output-file") {
		cfg.Output, _ = flags.GetString("output-file")
	}
	if flags.Changed("output-all") {
		cfg.OutputAll, _ = flags.GetBool("output-all")
	}
	if flags.Changed("metrics-addr") {
		cfg.Metrics.Addr, _ = flags.GetString("metrics-addr")
	}
	if flags.Changed("seed") {
		cfg.Seed, _ = flags.GetString("seed")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func buildTargets(args []string, limit uint64) (*sender.Targets, error) {
	if len(args) == 0 {
		return nil, errors.New("no targets given")
	}
	prefixes := []netip.Prefix{}
	for _, arg := range args {
		tmp, err := ParseAddr(arg)
		if err != nil {
			return nil, err
		}
		prefixes = append(prefixes, tmp...)
	}
	targets, err := sender.NewTargets(prefixes...)
	if err != nil {
		return nil, err
	}
	targets.Limit(limit)
	return targets, nil
}

func runScan(cmd *cobra.Command, cfg *config.Config, args []string) error {
	logger := common.GetLogger()
	targets, err := buildTargets(args, cfg.Limits.MaxTargets)
	if err != nil {
		return err
	}

	reg, err := newRegistry()
	if err != nil {
		return err
	}
	module, err := reg.Get(cfg.Module)
	if err != nil {
		return err
	}
	desc := module.Descriptor()
	probeCfg := cfg.ProbeConfig()
	if err := module.Init(&probeCfg); err != nil {
		return err
	}

	seed, _ := cfg.SeedBytes()
	var codec *validation.Codec
	if seed == nil {
		codec, err = validation.NewRandom()
	} else {
		codec, err = validation.New(seed)
	}
	if err != nil {
		return err
	}

	ifaces, err := common.ActiveIfaces()
	if err != nil {
		return err
	}
	iface, err := common.SelectIface(ifaces, cfg.Network.Interface)
	if err != nil {
		return err
	}
	srcIP := iface.IP
	if cfg.Network.SourceIP != "" {
		srcIP = netip.MustParseAddr(cfg.Network.SourceIP)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gwMAC, err := gatewayMAC(ctx, cfg, iface)
	if err != nil {
		return err
	}
	logger.Debug("Scan interface", zap.Any("iface", iface), zap.String("gatewayMac", gwMAC.String()))

	handle, err := pcap.OpenLive(iface.Name, int32(desc.PcapSnaplen), false, PCAP_TIMEOUT)
	if err != nil {
		return fmt.Errorf("open %s: %w", iface.Name, err)
	}
	defer handle.Close()
	if err := handle.SetBPFFilter(desc.PcapFilter); err != nil {
		return fmt.Errorf("set filter %q: %w", desc.PcapFilter, err)
	}

	sendCounters := counters.NewSend()
	recvCounters := counters.NewRecv(&counters.PcapStats{Handle: handle})
	defer recvCounters.DetachCapture()

	scfg := cfg.SenderConfig()
	scfg.SrcIP = srcIP
	scfg.SrcMAC = iface.HWAddr
	scfg.GatewayMAC = gwMAC
	snd, err := sender.New(scfg, module, probeCfg, codec, targets, handle, sendCounters)
	if err != nil {
		return err
	}

	var opts []receiver.ProbeReceiverOption
	if !cfg.OutputAll {
		opts = append(opts, receiver.WithFilter(receiver.SuccessFilter))
	}
	pr := receiver.NewProbeReceiver(module, probeCfg, codec, recvCounters, opts...)
	observer, err := receiver.NewPacketReceiverObserver(0)
	if err != nil {
		return err
	}
	defer observer.Release()
	observer.AddPacketReceiver(pr)

	var consoleMu sync.Mutex
	mcfg := cfg.MonitorConfig()
	mcfg.AppSuccess = desc.HasField("app_success")
	monOpts := []monitor.Option{monitor.WithConsole(cmd.ErrOrStderr(), &consoleMu)}
	var metricsSrv *http.Server
	if cfg.Metrics.Addr != "" {
		promReg := prometheus.NewRegistry()
		sink, err := monitor.NewPrometheusSink(promReg)
		if err != nil {
			return err
		}
		monOpts = append(monOpts, monitor.WithSink(sink))
		metricsSrv = serveMetrics(cfg.Metrics.Addr, promReg)
	}
	mon, err := monitor.New(mcfg, sendCounters, recvCounters, snd, monOpts...)
	if err != nil {
		return err
	}

	out, closeOut, err := openOutput(cmd, cfg.Output)
	if err != nil {
		return err
	}
	defer closeOut()

	gate := monitor.NewGate()
	g, gctx := errgroup.WithContext(ctx)
	recvCtx, stopRecv := context.WithCancel(gctx)
	defer stopRecv()
	sendCtx, stopSend := context.WithCancel(gctx)
	defer stopSend()
	if cfg.Limits.MaxRuntime > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(sendCtx, cfg.Limits.MaxRuntime)
		defer cancel()
	}

	g.Go(func() error {
		source := &receiver.LockedSource{Source: handle, Lock: recvCounters.CaptureLock()}
		packets := gopacket.NewPacketSource(source, layers.LayerTypeEthernet).Packets()
		gate.Open()
		observer.Serve(recvCtx, packets)
		pr.Close()
		recvCounters.SetComplete()
		return nil
	})
	g.Go(func() error {
		select {
		case <-gate.Done():
		case <-gctx.Done():
			return nil
		}
		err := sendPhase(gctx, func() error { return snd.Run(sendCtx) }, cfg.Limits.Cooldown)
		logger.Debug("Send phase finished", zap.Uint64("sent", snd.Sent()), zap.Error(err))
		stopRecv()
		return err
	})
	g.Go(func() error {
		return mon.Run(gctx, gate)
	})
	g.Go(func() error {
		defer pr.Stop()
		var written uint64
		enc := json.NewEncoder(out)
		for fs := range pr.Results() {
			consoleMu.Lock()
			err := enc.Encode(fs)
			consoleMu.Unlock()
			if err != nil {
				return err
			}
			written++
			if cfg.Limits.MaxResults > 0 && written == cfg.Limits.MaxResults {
				logger.Debug("Max results reached", zap.Uint64("results", written))
				stopSend()
			}
		}
		return nil
	})

	err = g.Wait()
	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), METRICS_SHUTDOWN)
		defer cancel()
		metricsSrv.Shutdown(shutdownCtx)
	}
	if fin, ok := module.(probe.Finalizer); ok {
		if fs, ferr := fin.Finalize(); ferr != nil {
			logger.Warn("Finalize failed", zap.Error(ferr))
		} else if fs != nil {
			json.NewEncoder(out).Encode(fs)
		}
	}
	snap := recvCounters.Snapshot()
	logger.Info("Scan completed",
		zap.Uint64("sent", snd.Sent()),
		zap.Uint64("recv", snap.Total),
		zap.Uint64("successUnique", snap.SuccessUnique),
		zap.Uint64("drop", snap.Drop+snap.IfDrop))
	return err
}

// sendPhase runs send and then waits out the cooldown. A failed send skips
// the cooldown.
func sendPhase(ctx context.Context, send func() error, cooldown time.Duration) error {
	if err := send(); err != nil {
		return err
	}
	timer := time.NewTimer(cooldown)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
	return nil
}

// gatewayMAC uses the configured address or asks the gateway over ARP.
func gatewayMAC(ctx context.Context, cfg *config.Config, iface common.Iface) (net.HardwareAddr, error) {
	if cfg.Network.GatewayMAC != "" {
		return net.ParseMAC(cfg.Network.GatewayMAC)
	}
	handle, err := pcap.OpenLive(iface.Name, 128, false, PCAP_TIMEOUT)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", iface.Name, err)
	}
	defer handle.Close()
	if err := handle.SetBPFFilter(arp.BPF_FILTER); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, GATEWAY_TIMEOUT)
	defer cancel()
	mac, err := arp.NewResolver(handle, iface.HWAddr, iface.IP).Resolve(ctx, iface.Gateway)
	if err != nil {
		return nil, fmt.Errorf("gateway hardware address: %w (set --gateway-mac)", err)
	}
	return mac, nil
}

func serveMetrics(addr string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			common.GetLogger().Error("Metrics server failed", zap.Error(err))
		}
	}()
	return srv
}

func openOutput(cmd *cobra.Command, path string) (io.Writer, func(), error) {
	if path == "" || path == "-" {
		return cmd.OutOrStdout(), func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { f.Close() }, nil
}

func init() {
	flags := scanCmd.Flags()
	flags.String("config", "", "YAML configuration file")
	flags.StringP("module", "M", "mptcp_synscan", "probe module")
	flags.Uint16P("target-port", "p", 0, "destination port")
	flags.StringP("source-port", "s", "", "source port range, e.g. 40000-50000")
	flags.IntP("probes", "P", 0, "probes per target")
	flags.IntP("rate", "r", 0, "packets per second")
	flags.IntP("sender-threads", "T", 0, "send workers")
	flags.StringP("interface", "i", "", "capture and send interface")
	flags.StringP("source-ip", "S", "", "source address")
	flags.StringP("gateway-mac", "G", "", "gateway hardware address")
	flags.Uint64P("max-targets", "n", 0, "cap on targets probed")
	flags.Uint64P("max-results", "N", 0, "stop after this many results")
	flags.DurationP("max-runtime", "t", 0, "stop sending after this long")
	flags.DurationP("cooldown-time", "c", 0, "wait for responses this long after sending")
	flags.BoolP("quiet", "q", false, "no status updates on the console")
	flags.StringP("status-updates-file", "u", "", "write status updates to this CSV file")
	flags.StringP("output-file", "o", "", "write results to this file, - for stdout")
	flags.Bool("output-all", false, "output failed and repeated responses too")
	flags.String("metrics-addr", "", "serve Prometheus metrics on this address")
	flags.String("seed", "", "hex validation seed, random when empty")
	rootCmd.AddCommand(scanCmd)
}
