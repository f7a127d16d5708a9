package server

import (
	"encoding/json"
	"fmt"
	"net"
	"strings"
)

// discoveryResponse is the JSON blob returned to any datagram received on
// the discovery port (§6.6).
type discoveryResponse struct {
	Service string `json:"service"`
	Version string `json:"version"`
	URL     string `json:"url"`
}

// startDiscoveryResponder binds a UDP listener and answers every inbound
// datagram with the server's advertisement, so phones on the same network
// can find it without the user typing an address.
func (s *Server) startDiscoveryResponder() error {
	addr, err := net.ResolveUDPAddr("udp", s.cfg.DiscoveryAddr)
	if err != nil {
		return fmt.Errorf("resolve discovery address: %w", err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("listen udp: %w", err)
	}
	s.udpConn = conn

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.discoveryLoop(conn)
	}()
	return nil
}

func (s *Server) discoveryLoop(conn *net.UDPConn) {
	buf := make([]byte, 512)
	for {
		_, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			if s.isDestroyed() {
				return
			}
			s.logger().Warn("discovery read: %v", err)
			continue
		}
		if s.isDestroyed() {
			return
		}

		scheme := "http"
		if s.cfg.TLSEnabled {
			scheme = "https"
		}
		resp := discoveryResponse{
			Service: "decenza-de1",
			Version: s.cfg.Version,
			URL:     fmt.Sprintf("%s://%s%s/", scheme, localAddrHost(conn), portSuffix(s.cfg.Addr)),
		}
		payload, err := json.Marshal(resp)
		if err != nil {
			continue
		}
		conn.WriteToUDP(payload, from)
	}
}

func localAddrHost(conn *net.UDPConn) string {
	local, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok || local.IP == nil || local.IP.IsUnspecified() {
		if ip := preferredOutboundIP(); ip != "" {
			return ip
		}
		return "localhost"
	}
	return local.IP.String()
}

func preferredOutboundIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return ""
	}
	defer conn.Close()
	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return ""
	}
	return addr.IP.String()
}

func portSuffix(addr string) string {
	i := strings.LastIndex(addr, ":")
	if i < 0 {
		return ""
	}
	return addr[i:]
}
