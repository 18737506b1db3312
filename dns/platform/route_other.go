//go:build !linux

package platform

import "net"

// defaultRouteInterface approximates the default route with the first
// interface that is up, not loopback and carries an address
func defaultRouteInterface() (ActiveInterface, error) {
	ifaces, err := upInterfaces()
	if err != nil {
		return ActiveInterface{}, err
	}
	if len(ifaces) == 0 {
		return ActiveInterface{}, ErrNoActiveInterface
	}
	return ifaces[0], nil
}

func upInterfaces() ([]ActiveInterface, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, readError("list interfaces", err)
	}

	var result []ActiveInterface
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil || len(addrs) == 0 {
			continue
		}
		result = append(result, ActiveInterface{Name: iface.Name, ID: iface.Name})
	}

	return result, nil
}
