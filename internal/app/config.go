package app

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/bbitmaster/peerpad/internal/foldersync"
	"github.com/bbitmaster/peerpad/internal/netaddr"
	"github.com/bbitmaster/peerpad/internal/web"
)

const (
	DefaultPort = 9876

	UITerminal = "tui"
	UIWeb      = "web"
)

type Config struct {
	Host    bool
	Connect string
	Port    int

	// ConnectHost and ConnectPort are Connect split by the default port.
	ConnectHost string
	ConnectPort int

	UI      string
	WebAddr string

	Advertise   bool
	Browse      bool
	ShowIP      bool
	ShowRecent  bool
	ShowVersion bool

	DataDir      string
	SharedFolder string
	SyncthingURL string
	ShowDeviceID bool
	ShareWith    string

	LogLevel slog.Level
}

// ParseConfig reads flags from args. Environment values from getenv become
// the defaults of their flags.
func ParseConfig(args []string, getenv func(string) string, output io.Writer) (*Config, error) {
	config := &Config{}
	home, _ := os.UserHomeDir()

	fs := flag.NewFlagSet("peerpad", flag.ContinueOnError)
	fs.SetOutput(output)

	fs.BoolVar(&config.Host, "host", false, "Start in host mode (wait for a connection)")
	fs.BoolVar(&config.Host, "H", false, "Shorthand for -host")
	fs.StringVar(&config.Connect, "connect", "", "Connect to a host (IP or IP:port)")
	fs.StringVar(&config.Connect, "c", "", "Shorthand for -connect")
	fs.IntVar(&config.Port, "port", DefaultPort, "Port to use")
	fs.IntVar(&config.Port, "p", DefaultPort, "Shorthand for -port")

	fs.StringVar(&config.UI, "ui", UITerminal, "Front end: tui or web")
	fs.StringVar(&config.WebAddr, "web-addr", envOr(getenv, "PEERPAD_WEB_ADDR", web.DefaultAddr), "Address the web front end listens on")

	fs.BoolVar(&config.Advertise, "advertise", false, "Advertise on the local network while hosting")
	fs.BoolVar(&config.Browse, "browse", false, "List hosts on the local network and exit")
	fs.BoolVar(&config.ShowIP, "ip", false, "Show addresses other devices can connect to and exit")
	fs.BoolVar(&config.ShowRecent, "recent", false, "List recently connected peers and exit")
	fs.BoolVar(&config.ShowVersion, "version", false, "Show version information")

	fs.StringVar(&config.DataDir, "data-dir", envOr(getenv, "PEERPAD_DATA_DIR", filepath.Join(home, ".peerpad")), "Directory for local state")
	fs.StringVar(&config.SharedFolder, "shared-folder", filepath.Join(home, "PeerPad"), "Folder shared through Syncthing")
	fs.StringVar(&config.SyncthingURL, "syncthing-url", envOr(getenv, "SYNCTHING_API_URL", foldersync.DefaultAPIURL), "Syncthing REST API address")
	fs.BoolVar(&config.ShowDeviceID, "device-id", false, "Show this machine's Syncthing device ID and exit")
	fs.StringVar(&config.ShareWith, "share-with", "", "Share the PeerPad folder with this Syncthing device ID")

	level := fs.String("log-level", "info", "Log level: debug, info, warn or error")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if err := config.LogLevel.UnmarshalText([]byte(*level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q", *level)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	if config.Connect != "" {
		config.ConnectHost, config.ConnectPort = netaddr.SplitHostPort(config.Connect, config.Port)
	}
	return config, nil
}

func (c *Config) validate() error {
	if c.Host && c.Connect != "" {
		return errors.New("cannot use both -host and -connect")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.UI != UITerminal && c.UI != UIWeb {
		return fmt.Errorf("unknown ui %q, want %s or %s", c.UI, UITerminal, UIWeb)
	}
	if c.Advertise && !c.Host {
		return errors.New("-advertise requires -host")
	}
	return nil
}

func envOr(getenv func(string) string, key, def string) string {
	if v := getenv(key); v != "" {
		return v
	}
	return def
}
