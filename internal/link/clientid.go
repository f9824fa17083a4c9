package link

import (
	"fmt"
	"net"
	"os"
	"strings"
	"time"
)

// newClientID builds an identifier that stays distinct across restarts
// without any coordination: <prefix>-<host>-<unix seconds>-<pid>.
//
// host is the hardware address of the first non-loopback interface that is
// up, falling back to its first IP address, and omitted entirely if neither
// is available.
func newClientID(prefix string, now time.Time) string {
	host := hostIdentity()
	if host == "" {
		return fmt.Sprintf("%s-%d-%d", prefix, now.Unix(), os.Getpid())
	}
	return fmt.Sprintf("%s-%s-%d-%d", prefix, host, now.Unix(), os.Getpid())
}

func hostIdentity() string {
	ifaces, err := net.Interfaces()
	if err != nil {
		return ""
	}

	var ip string
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0 {
			continue
		}
		if len(iface.HardwareAddr) > 0 {
			return strings.ReplaceAll(iface.HardwareAddr.String(), ":", "")
		}
		if ip == "" {
			ip = firstIP(iface)
		}
	}
	return ip
}

func firstIP(iface net.Interface) string {
	addrs, err := iface.Addrs()
	if err != nil {
		return ""
	}
	for _, a := range addrs {
		if ipNet, ok := a.(*net.IPNet); ok && !ipNet.IP.IsLoopback() {
			// Colons from IPv6 addresses are not welcome in client IDs.
			return strings.NewReplacer(":", "", ".", "").Replace(ipNet.IP.String())
		}
	}
	return ""
}
