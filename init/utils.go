// Copyright 2015 Apcera Inc. All rights reserved.

package init

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"syscall"

	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"
)

// handleMount takes care of creating the mount path and issuing the mount
// syscall for the mount source, location, and fstype.
func handleMount(source, location, fstype string, flags uintptr, data string) error {
	if err := os.MkdirAll(location, os.FileMode(0755)); err != nil {
		return err
	}
	return unix.Mount(source, location, fstype, flags, data)
}

// configureInterface is used to configure an individual interface against a
// matched configuration. It sets up the addresses, the MTU, and invokes DHCP if
// necessary.
func configureInterface(link netlink.Link, netconf *sparkNetworkInterface) error {
	linkName := link.Attrs().Name

	// the link must be up for DHCP to get anywhere
	if link.Attrs().Flags&net.FlagUp == 0 {
		if err := netlink.LinkSetUp(link); err != nil {
			return fmt.Errorf("failed to set link %s up: %v", linkName, err)
		}
	}

	if netconf.MTU > 0 {
		if err := netlink.LinkSetMTU(link, netconf.MTU); err != nil {
			return fmt.Errorf("failed to set mtu on %s: %v", linkName, err)
		}
	}

	// single address
	if netconf.Address != "" {
		if err := addAddress(link, netconf.Address); err != nil {
			return err
		}
	}

	// list of addresses
	for _, address := range netconf.Addresses {
		if err := addAddress(link, address); err != nil {
			return err
		}
	}

	// configure using DHCP
	if netconf.DHCP {
		if err := runDHCP(linkName); err != nil {
			return err
		}
	}

	return nil
}

// addAddress assigns the address in CIDR notation to the link. An address that
// is already assigned is not an error.
func addAddress(link netlink.Link, address string) error {
	linkName := link.Attrs().Name
	addr, err := netlink.ParseAddr(address)
	if err != nil {
		return fmt.Errorf("failed to parse address %q on %s", address, linkName)
	}
	if err := netlink.AddrAdd(link, addr); err != nil && err != unix.EEXIST {
		return fmt.Errorf("failed to configure address %q on %s: %v", address, linkName, err)
	}
	return nil
}

// runDHCP requests a lease for the interface with udhcpc.
func runDHCP(linkName string) error {
	cmd := exec.Command("udhcpc", "-i", linkName, "-t", "20", "-n", "-q")
	cmd.Stdin = nil
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	err := cmd.Run()
	if errors.Is(err, syscall.ECHILD) {
		// collected by the reaper first, the exit status is gone
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to configure %s with DHCP: %v", linkName, err)
	}
	return nil
}

// getConfigurationFromFile will attempt to load the provided file and parse it
// into a *sparkConfig object. Note that this function will return nil, nil if
// the specified path was not found.
func getConfigurationFromFile(file string) (*sparkConfig, error) {
	f, err := os.Open(file)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load configuration: %v", err)
	}
	defer f.Close()

	var config *sparkConfig
	if err := json.NewDecoder(f).Decode(&config); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %s: %v", file, err)
	}
	return config, nil
}
