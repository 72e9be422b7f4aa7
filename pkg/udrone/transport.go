package udrone

import (
	"fmt"
	"net"
	"time"

	"golang.org/x/net/ipv4"
)

// transport owns the single UDP socket a Host sends and receives on. It
// binds an ephemeral port on all local addresses and, when a local
// interface is supplied, pins the outgoing multicast interface for sends.
// There is no reliability, fragmentation, or ordering guarantee beyond
// what UDP itself provides.
type transport struct {
	conn *net.UDPConn
	dest *net.UDPAddr
}

func newTransport(localAddr string) (*transport, error) {
	dest, err := net.ResolveUDPAddr("udp4", MulticastAddr)
	if err != nil {
		return nil, fmt.Errorf("resolve multicast address: %w", err)
	}

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: 0})
	if err != nil {
		return nil, fmt.Errorf("bind ephemeral udp socket: %w", err)
	}

	if localAddr != "" {
		iface, ifErr := interfaceForAddr(localAddr)
		if ifErr != nil {
			conn.Close()
			return nil, fmt.Errorf("resolve outgoing interface for %s: %w", localAddr, ifErr)
		}
		pc := ipv4.NewPacketConn(conn)
		if err := pc.SetMulticastInterface(iface); err != nil {
			conn.Close()
			return nil, fmt.Errorf("set multicast interface: %w", err)
		}
	}

	return &transport{conn: conn, dest: dest}, nil
}

// interfaceForAddr finds the local network interface owning the given IPv4
// address, so the caller can select it for outgoing multicast traffic.
func interfaceForAddr(localAddr string) (*net.Interface, error) {
	ip := net.ParseIP(localAddr)
	if ip == nil {
		return nil, fmt.Errorf("not an IP address: %q", localAddr)
	}

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	for i := range ifaces {
		addrs, err := ifaces[i].Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipNet, ok := a.(*net.IPNet)
			if ok && ipNet.IP.Equal(ip) {
				return &ifaces[i], nil
			}
		}
	}
	return nil, fmt.Errorf("no local interface has address %s", localAddr)
}

func (t *transport) send(buf []byte) error {
	_, err := t.conn.WriteToUDP(buf, t.dest)
	return err
}

// readOne waits, up to deadline, for a single datagram. It returns
// (nil, false) on timeout, which the caller treats as "nothing available",
// mirroring a non-blocking socket's EWOULDBLOCK.
func (t *transport) readOne(deadline time.Time) ([]byte, bool) {
	if err := t.conn.SetReadDeadline(deadline); err != nil {
		return nil, false
	}
	buf := make([]byte, MaxDatagramSize+1)
	n, _, err := t.conn.ReadFromUDP(buf)
	if err != nil {
		return nil, false
	}
	return buf[:n], true
}

func (t *transport) close() error {
	return t.conn.Close()
}
