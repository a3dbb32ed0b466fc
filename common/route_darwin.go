//go:build darwin

package common

import (
	"bufio"
	"bytes"
	"net/netip"
	"os/exec"
	"strings"

	"go.uber.org/zap"
)

// Gways asks route(8) for the default gateway.
//
// 查询结果模板：
//
//	   route to: default
//	destination: default
//	       mask: default
//	    gateway: 192.168.2.1
//	  interface: en0
func Gways() ([]netip.Addr, error) {
	out, err := exec.Command("route", "-n", "get", "default").Output()
	if err != nil {
		logger.Error("route get default failed", zap.Error(err))
		return nil, err
	}
	return parseRouteGet(out), nil
}

func parseRouteGet(out []byte) []netip.Addr {
	ret := []netip.Addr{}
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(sc.Text()), ":")
		if !ok || key != "gateway" {
			continue
		}
		if g, err := netip.ParseAddr(strings.TrimSpace(value)); err == nil {
			ret = append(ret, g)
		}
	}
	return ret
}
