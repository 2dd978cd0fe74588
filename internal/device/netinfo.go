// Package device adapts the host machine to the interfaces the client core
// expects from a phone: network state and a position source.
package device

import (
	"context"
	"net"
)

// NetInfo reports the machine as connected when at least one non-loopback
// interface is up and has an address.
type NetInfo struct {
	interfaces func() ([]net.Interface, error)
	addrs      func(net.Interface) ([]net.Addr, error)
}

func NewNetInfo() *NetInfo {
	return &NetInfo{
		interfaces: net.Interfaces,
		addrs:      func(i net.Interface) ([]net.Addr, error) { return i.Addrs() },
	}
}

func (n *NetInfo) IsConnected(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	ifaces, err := n.interfaces()
	if err != nil {
		return false, err
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := n.addrs(iface)
		if err != nil {
			continue
		}
		if len(addrs) > 0 {
			return true, nil
		}
	}
	return false, nil
}

// AlwaysConnected is a NetworkState for hosts where only the server probe matters.
type AlwaysConnected struct{}

func (AlwaysConnected) IsConnected(context.Context) (bool, error) { return true, nil }
