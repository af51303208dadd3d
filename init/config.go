// Copyright 2015 Apcera Inc. All rights reserved.

package init

type sparkConfig struct {
	Profile       string              `json:"profile,omitempty"`
	Hostname      string              `json:"hostname,omitempty"`
	Debug         bool                `json:"debug,omitempty"`
	Console       *bool               `json:"console,omitempty"`
	RespawnDelay  string              `json:"respawn_delay,omitempty"`
	NetworkConfig *sparkNetworkConfig `json:"network_config,omitempty"`
	Overlay       *sparkOverlayConfig `json:"overlay,omitempty"`
	Program       *sparkProgramConfig `json:"program,omitempty"`
}

type sparkNetworkConfig struct {
	DNS        []string                 `json:"dns,omitempty"`
	Gateway    string                   `json:"gateway,omitempty"`
	Interfaces []*sparkNetworkInterface `json:"interfaces,omitempty"`
}

type sparkNetworkInterface struct {
	Device    string   `json:"device"`
	DHCP      bool     `json:"dhcp,omitempty"`
	Address   string   `json:"address,omitempty"`
	Addresses []string `json:"addresses,omitempty"`
	MTU       int      `json:"mtu,omitempty"`
}

// sparkOverlayConfig describes the writable layer put over a read-only
// directory of the base image.
type sparkOverlayConfig struct {
	Disabled bool   `json:"disabled,omitempty"`
	Target   string `json:"target,omitempty"`
	Lower    string `json:"lower,omitempty"`
	Upper    string `json:"upper,omitempty"`
	Work     string `json:"work,omitempty"`
}

// sparkProgramConfig describes the supervised program. Any field that is set
// overrides the one from the selected profile. Env entries are merged by key,
// the gid defaults to the uid.
type sparkProgramConfig struct {
	Path string   `json:"path,omitempty"`
	Args []string `json:"args,omitempty"`
	Env  []string `json:"env,omitempty"`
	UID  *int     `json:"uid,omitempty"`
	GID  *int     `json:"gid,omitempty"`
	Dir  string   `json:"dir,omitempty"`

	// gidSet records that a configuration layer gave the group explicitly.
	gidSet bool
}

// sparkProfile is one of the fixed SparkOS variants.
type sparkProfile struct {
	// Label names the program in console messages.
	Label   string
	Program sparkProgramConfig
	Overlay sparkOverlayConfig
}

// mergeConfig overlays the values set in other on top of c.
func (c *sparkConfig) mergeConfig(other *sparkConfig) {
	if other == nil {
		return
	}
	if other.Profile != "" {
		c.Profile = other.Profile
	}
	if other.Hostname != "" {
		c.Hostname = other.Hostname
	}
	if other.Debug {
		c.Debug = true
	}
	if other.Console != nil {
		c.Console = other.Console
	}
	if other.RespawnDelay != "" {
		c.RespawnDelay = other.RespawnDelay
	}
	if other.NetworkConfig != nil {
		c.NetworkConfig = other.NetworkConfig
	}
	if other.Overlay != nil {
		if c.Overlay == nil {
			c.Overlay = &sparkOverlayConfig{}
		}
		c.Overlay.merge(other.Overlay)
	}
	if other.Program != nil {
		if c.Program == nil {
			c.Program = &sparkProgramConfig{}
		}
		c.Program.merge(other.Program)
	}
}

func (o *sparkOverlayConfig) merge(other *sparkOverlayConfig) {
	if other.Disabled {
		o.Disabled = true
	}
	if other.Target != "" {
		o.Target = other.Target
	}
	if other.Lower != "" {
		o.Lower = other.Lower
	}
	if other.Upper != "" {
		o.Upper = other.Upper
	}
	if other.Work != "" {
		o.Work = other.Work
	}
}

func (p *sparkProgramConfig) merge(other *sparkProgramConfig) {
	if other.Path != "" {
		p.Path = other.Path
	}
	if len(other.Args) > 0 {
		p.Args = other.Args
	}
	if len(other.Env) > 0 {
		p.Env = append(p.Env, other.Env...)
	}
	if other.GID != nil {
		p.GID = other.GID
		p.gidSet = true
	}
	if other.UID != nil {
		p.UID = other.UID
		// the group follows the user unless some layer gave one
		if !p.gidSet {
			p.GID = other.UID
		}
	}
	if other.Dir != "" {
		p.Dir = other.Dir
	}
}
