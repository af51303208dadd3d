// Copyright 2015 Apcera Inc. All rights reserved.

package init

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/apcera/logray"
	"github.com/apcera/util/proc"
	"github.com/johndoe6345789/SparkOS/launcher"
	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"
)

// createSystemMounts mounts the kernel filesystems. Since SparkOS init is
// running as PID 1, there is no /etc/fstab, therefore it must mount them
// itself. A mount that fails is reported and the others are still attempted.
func (r *runner) createSystemMounts() error {
	r.log.Info("Mounting essential filesystems...")

	existingMounts, err := existingMounts()
	if err != nil {
		return err
	}

	var failed []string
	for _, mount := range systemMounts {
		location, source, fstype := mount[0], mount[1], mount[2]

		// check if it exists
		if _, exists := existingMounts[location]; exists {
			r.log.Tracef("- skipping %q, already mounted", location)
			continue
		}

		r.log.Tracef("- mounting %q (type %q) to %q", source, fstype, location)
		if err := r.mount(source, location, fstype, 0, ""); err != nil {
			r.log.Warnf("Warning: failed to mount %s: %v", location, err)
			failed = append(failed, location)
		}
	}

	if len(failed) > 0 {
		return fmt.Errorf("failed to mount [%s]", strings.Join(failed, ", "))
	}
	return nil
}

// loadConfigurationFile loads the configuration for the process. It will load
// the disk based configuration and the command line based parameters on top of
// the defaults. A source that can't be read is reported and skipped.
func (r *runner) loadConfigurationFile() error {
	var errs []string

	diskConfig, err := getConfigurationFromFile(r.configFile)
	if err != nil {
		errs = append(errs, err.Error())
	}
	r.config.mergeConfig(diskConfig)

	cmdlineConfig, err := getConfigFromCmdline(r.cmdlineFile)
	if err != nil {
		errs = append(errs, fmt.Sprintf("failed to parse kernel parameters: %v", err))
	}
	r.config.mergeConfig(cmdlineConfig)

	if _, ok := profiles[r.config.Profile]; !ok {
		errs = append(errs, fmt.Sprintf("unknown profile %q, using %q", r.config.Profile, defaultProfile))
		r.config.Profile = defaultProfile
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// configureLogging is used to enable debug and trace output on the console, if
// it is turned on in the configuration.
func (r *runner) configureLogging() error {
	if !r.config.Debug {
		return nil
	}
	v := url.Values{}
	v.Set("format", logFormat)
	u := url.URL{Scheme: "stdout", RawQuery: v.Encode()}
	if err := r.log.AddOutput(u.String(), logray.TRACE, logray.DEBUG); err != nil {
		return fmt.Errorf("failed to enable debug logging: %v", err)
	}
	r.log.Debug("Debug logging enabled")
	return nil
}

// createOverlay puts a writable layer over the read-only directory of the base
// image.
func (r *runner) createOverlay() error {
	ov := r.config.overlayConfig()
	if ov.Disabled {
		r.log.Info("Overlay filesystem disabled")
		return nil
	}

	r.log.Info("Setting up overlay filesystem for writable layer...")

	existingMounts, err := existingMounts()
	if err != nil {
		return err
	}
	if mp, exists := existingMounts[ov.Target]; exists && mp.Fstype == "overlay" {
		r.log.Tracef("- skipping %q, overlay already mounted", ov.Target)
		return nil
	}

	for _, dir := range []string{ov.Upper, ov.Work} {
		if err := os.MkdirAll(dir, os.FileMode(0755)); err != nil {
			return fmt.Errorf("failed to create overlay directory %s - system may be read-only: %v", dir, err)
		}
	}

	data := fmt.Sprintf("lowerdir=%s,upperdir=%s,workdir=%s", ov.Lower, ov.Upper, ov.Work)
	if err := r.mount("overlay", ov.Target, "overlay", 0, data); err != nil {
		return fmt.Errorf("failed to mount overlay on %s - system may be read-only: %v", ov.Target, err)
	}

	r.log.Infof("Overlay filesystem mounted on %s (base OS is immutable)", ov.Target)
	return nil
}

// mountRun mounts the tmpfs for runtime data.
func (r *runner) mountRun() error {
	existingMounts, err := existingMounts()
	if err != nil {
		return err
	}
	if _, exists := existingMounts[runPath]; exists {
		r.log.Tracef("- skipping %q, already mounted", runPath)
		return nil
	}

	if err := r.mount("tmpfs", runPath, "tmpfs", 0, "mode=0755"); err != nil {
		return fmt.Errorf("failed to mount %s: %v", runPath, err)
	}
	return nil
}

// createRuntimeDir creates the directory named by XDG_RUNTIME_DIR in the
// program's environment, owned by the identity the program runs as.
func (r *runner) createRuntimeDir() error {
	spec, err := r.config.programSpec()
	if err != nil {
		// reported when the program is started
		return nil
	}

	env, err := launcher.NewEnv(spec.Env...)
	if err != nil {
		return nil
	}
	dir, ok := env.Get("XDG_RUNTIME_DIR")
	if !ok || dir == "" {
		return nil
	}

	// parents stay reachable by every user, only the leaf is private
	if err := os.MkdirAll(filepath.Dir(dir), os.FileMode(0755)); err != nil {
		return fmt.Errorf("failed to create runtime directory %s: %v", dir, err)
	}
	if err := os.Mkdir(dir, os.FileMode(0700)); err != nil && !os.IsExist(err) {
		return fmt.Errorf("failed to create runtime directory %s: %v", dir, err)
	}
	if err := os.Chmod(dir, os.FileMode(0700)); err != nil {
		return fmt.Errorf("failed to set mode of runtime directory %s: %v", dir, err)
	}
	if spec.Identity != nil {
		if err := os.Chown(dir, spec.Identity.UID, spec.Identity.GID); err != nil {
			return fmt.Errorf("failed to set owner of runtime directory %s: %v", dir, err)
		}
	}
	return nil
}

// configureHostname calls to set the hostname to the one provided via
// configuration.
func (r *runner) configureHostname() error {
	if r.config.Hostname == "" {
		return nil
	}

	r.log.Infof("Setting hostname: %s", r.config.Hostname)
	if err := unix.Sethostname([]byte(r.config.Hostname)); err != nil {
		return fmt.Errorf("failed to set hostname: %v", err)
	}
	return nil
}

// configureNetwork handles iterating the local interfaces, matching it to an
// interface configuration, and configuring it. It will also handle configuring
// the default gateway after all interfaces are configured.
func (r *runner) configureNetwork() error {
	if r.config.NetworkConfig == nil {
		r.log.Warn("No network configuration given, skipping")
		return nil
	}

	r.log.Info("Initializing network...")

	links, err := netlink.LinkList()
	if err != nil {
		return fmt.Errorf("Network initialization failed - check network interface availability: %v", err)
	}

	for _, link := range links {
		linkName := link.Attrs().Name
		r.log.Debugf("Configuring %s...", linkName)

		netconf := matchInterface(r.config.NetworkConfig.Interfaces, linkName)
		if netconf == nil {
			r.log.Debugf("- no matching network configuration found for %s", linkName)
			continue
		}

		if err := configureInterface(link, netconf); err != nil {
			r.log.Warnf("- %s", err.Error())
		}
	}

	// configure the gateway
	if gw := r.config.NetworkConfig.Gateway; gw != "" {
		gateway := net.ParseIP(gw)
		if gateway == nil {
			r.log.Warnf("Failed to configure gateway to %q", gw)
		} else {
			route := &netlink.Route{
				Scope: netlink.SCOPE_UNIVERSE,
				Gw:    gateway,
			}
			if err := netlink.RouteAdd(route); err != nil && err != unix.EEXIST {
				r.log.Warnf("Failed to configure gateway: %v", err)
			} else {
				r.log.Infof("Configured gateway to %s", gw)
			}
		}
	}

	if len(r.config.NetworkConfig.DNS) > 0 {
		if err := writeResolvConf(resolvConf, r.config.NetworkConfig.DNS); err != nil {
			r.log.Warnf("Failed to configure DNS: %v", err)
		}
	}

	return nil
}

// matchInterface finds the configuration for the named interface. Devices are
// compared by name first, then as an anchored regular expression.
func matchInterface(interfaces []*sparkNetworkInterface, linkName string) *sparkNetworkInterface {
	for _, n := range interfaces {
		if linkName == n.Device {
			return n
		}
		if match, _ := regexp.MatchString("^(?:"+n.Device+")$", linkName); match {
			return n
		}
	}
	return nil
}

// displayBanner prints the welcome message along with the state of the
// system.
func (r *runner) displayBanner() error {
	r.log.Info("")
	r.log.Info("Welcome to SparkOS!")
	r.log.Info("===================")
	r.log.Info("Base OS: Read-only (immutable)")
	r.log.Infof("Writable: %s", strings.Join(r.writablePaths(), ", "))
	r.log.Info("")
	return r.displayNetwork()
}

// writablePaths lists the writable locations of the running system.
func (r *runner) writablePaths() []string {
	paths := []string{"/tmp"}
	if ov := r.config.overlayConfig(); !ov.Disabled {
		paths = append(paths, ov.Target+" (overlay)")
	}
	return append(paths, runPath)
}

func (r *runner) displayNetwork() error {
	interfaces, err := net.Interfaces()
	if err != nil {
		return fmt.Errorf("failed to get all interfaces: %v", err)
	}

	r.log.Info(strings.Repeat("-", 30))
	defer r.log.Info(strings.Repeat("-", 30))
	r.log.Info("Network Information:")
	for _, in := range interfaces {
		ad, err := in.Addrs()
		if err != nil {
			return fmt.Errorf("failed to get addresses on interface %q: %v", in.Name, err)
		}
		addresses := make([]string, len(ad))
		for i, a := range ad {
			addresses[i] = a.String()
		}
		if len(addresses) == 0 {
			addresses = []string{"no address"}
		}

		r.log.Infof("- %s: %s", in.Name, strings.Join(addresses, ", "))
	}
	return nil
}

// existingMounts returns the current mount points. Before /proc is mounted
// there are none.
func existingMounts() (map[string]*proc.MountPoint, error) {
	if _, err := os.Lstat(proc.MountProcFile); os.IsNotExist(err) {
		// really are freshly booted, /proc isn't mounted, so make this blank
		return make(map[string]*proc.MountPoint), nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to check if %q existed: %v", proc.MountProcFile, err)
	}

	mounts, err := proc.MountPoints()
	if err != nil {
		return nil, fmt.Errorf("failed to read existing mount points: %v", err)
	}
	return mounts, nil
}

// writeResolvConf replaces the resolver configuration with the given name
// servers.
func writeResolvConf(file string, servers []string) error {
	var b strings.Builder
	for _, ns := range servers {
		if net.ParseIP(ns) == nil {
			return fmt.Errorf("invalid name server %q", ns)
		}
		b.WriteString("nameserver " + ns + "\n")
	}
	if err := os.RemoveAll(file); err != nil {
		return fmt.Errorf("failed to cleanup old %s: %v", file, err)
	}
	if err := os.WriteFile(file, []byte(b.String()), os.FileMode(0644)); err != nil {
		return fmt.Errorf("failed to write %s: %v", file, err)
	}
	return nil
}
