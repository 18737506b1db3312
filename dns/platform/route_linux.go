//go:build linux

package platform

import (
	"fmt"
	"net"

	"github.com/vishvananda/netlink"
)

// defaultRouteInterface returns the link of the lowest-priority default route,
// preferring IPv4 over IPv6
func defaultRouteInterface() (ActiveInterface, error) {
	for _, family := range []int{netlink.FAMILY_V4, netlink.FAMILY_V6} {
		routes, err := netlink.RouteList(nil, family)
		if err != nil {
			return ActiveInterface{}, readError("list routes", err)
		}

		var best *netlink.Route
		for i := range routes {
			route := &routes[i]
			if route.LinkIndex <= 0 || !isDefaultRoute(route) {
				continue
			}
			if best == nil || route.Priority < best.Priority {
				best = route
			}
		}

		if best == nil {
			continue
		}

		link, err := netlink.LinkByIndex(best.LinkIndex)
		if err != nil {
			return ActiveInterface{}, readError(fmt.Sprintf("get link %d", best.LinkIndex), err)
		}

		name := link.Attrs().Name
		return ActiveInterface{Name: name, ID: name}, nil
	}

	return ActiveInterface{}, ErrNoActiveInterface
}

// isDefaultRoute handles both representations netlink uses for the default
// destination: a nil Dst or an all-zero prefix
func isDefaultRoute(route *netlink.Route) bool {
	if route.Dst == nil {
		return true
	}
	ones, _ := route.Dst.Mask.Size()
	return ones == 0 && route.Dst.IP.IsUnspecified()
}

// upInterfaces lists non-loopback links that are administratively up
func upInterfaces() ([]ActiveInterface, error) {
	links, err := netlink.LinkList()
	if err != nil {
		return nil, readError("list links", err)
	}

	var result []ActiveInterface
	for _, link := range links {
		attrs := link.Attrs()
		if attrs.Flags&net.FlagLoopback != 0 || attrs.Flags&net.FlagUp == 0 {
			continue
		}
		result = append(result, ActiveInterface{Name: attrs.Name, ID: attrs.Name})
	}

	return result, nil
}
