// Copyright 2015 Apcera Inc. All rights reserved.

package init

var (
	// The setup functions that prepare the host before the supervised program
	// is started. They run in order on every boot. A failing function is
	// logged and the next one still runs; nothing here can stop the boot.
	setupFunctions = []func(*runner) error{
		(*runner).createSystemMounts,
		(*runner).loadConfigurationFile,
		(*runner).configureLogging,
		(*runner).createOverlay,
		(*runner).mountRun,
		(*runner).createRuntimeDir,
		(*runner).configureHostname,
		(*runner).configureNetwork,
		(*runner).displayBanner,
	}

	// Mounts handled on boot, in order. Elements are: mount location, source,
	// fstype.
	systemMounts = [][]string{
		[]string{"/proc", "proc", "proc"},
		[]string{"/sys", "sys", "sysfs"},
		[]string{"/dev", "dev", "devtmpfs"},
		[]string{"/tmp", "tmpfs", "tmpfs"},
	}

	// The fixed SparkOS variants. They share the boot sequence and differ only
	// in the supervised program and where the writable layer lives.
	profiles = map[string]*sparkProfile{
		"user": &sparkProfile{
			Label: "Shell",
			Program: sparkProgramConfig{
				Path: "/bin/sh",
				Args: []string{"/bin/sh", "-l"},
				Env: []string{
					"HOME=" + sparkHome,
					"PATH=/bin:/sbin:/usr/bin:/usr/sbin",
					"TERM=linux",
					"PS1=SparkOS$ ",
					"USER=" + sparkUser,
					"LOGNAME=" + sparkUser,
				},
				UID: intPtr(sparkUID),
				GID: intPtr(sparkGID),
				Dir: sparkHome,
			},
			Overlay: defaultOverlay,
		},
		"root": &sparkProfile{
			Label: "Shell",
			Program: sparkProgramConfig{
				Path: "/bin/sh",
				Args: []string{"/bin/sh", "-l"},
				Env: []string{
					"HOME=/root",
					"PATH=/bin:/sbin:/usr/bin:/usr/sbin",
					"TERM=linux",
					"PS1=SparkOS# ",
					"USER=root",
					"LOGNAME=root",
				},
				Dir: "/root",
			},
			Overlay: defaultOverlay,
		},
		"gui": &sparkProfile{
			Label: "GUI session",
			Program: sparkProgramConfig{
				Path: "/usr/bin/sparkgui",
				Args: []string{"/usr/bin/sparkgui"},
				Env: []string{
					"HOME=/root",
					"PATH=/bin:/sbin:/usr/bin:/usr/sbin",
					"TERM=linux",
					"USER=root",
					"XDG_RUNTIME_DIR=/run/user/0",
					"WAYLAND_DISPLAY=wayland-0",
					"QT_QPA_PLATFORM=wayland",
				},
				Dir: "/root",
			},
			Overlay: sparkOverlayConfig{
				Target: "/var",
				Lower:  "/var",
				Upper:  "/tmp/overlay-gui/upper",
				Work:   "/tmp/overlay-gui/work",
			},
		},
	}

	defaultOverlay = sparkOverlayConfig{
		Target: "/var",
		Lower:  "/var",
		Upper:  "/tmp/overlay/upper",
		Work:   "/tmp/overlay/work",
	}
)

const (
	// configurationFile is the source of the initial disk based configuration.
	configurationFile = "/etc/sparkinit.json"

	// cmdlineFile holds the kernel command line, searched for sparkos.*
	// parameters.
	cmdlineFile = "/proc/cmdline"

	// cmdlinePrefix marks the kernel parameters meant for the init process.
	cmdlinePrefix = "sparkos."

	// defaultProfile is used when none, or an unknown one, is configured.
	defaultProfile = "user"

	// runPath is the tmpfs for runtime data, mounted after the overlay.
	runPath = "/run"

	// resolvConf is rewritten when DNS servers are configured.
	resolvConf = "/etc/resolv.conf"

	// The unprivileged account the default profile runs as.
	sparkUser = "spark"
	sparkHome = "/home/spark"
	sparkUID  = 1000
	sparkGID  = 1000

	// logFormat matches the format main installs on the default outputs.
	logFormat = "%color:class%[%classfixed%]%color:default% %message%"
)

// defaultConfiguration returns the default codified configuration that is
// applied on boot.
func defaultConfiguration() *sparkConfig {
	return &sparkConfig{
		Profile:      defaultProfile,
		Hostname:     "sparkos",
		RespawnDelay: "2s",
		NetworkConfig: &sparkNetworkConfig{
			Interfaces: []*sparkNetworkInterface{
				&sparkNetworkInterface{
					Device:  "lo",
					Address: "127.0.0.1/8",
				},
				// wired only for bootstrap
				&sparkNetworkInterface{
					Device: "eth.+|en.+",
					DHCP:   true,
				},
			},
		},
	}
}

func intPtr(i int) *int {
	return &i
}
