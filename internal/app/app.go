// Package app wires configuration, the session and a front end together.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"text/tabwriter"
	"time"

	"github.com/bbitmaster/peerpad/internal/discovery"
	"github.com/bbitmaster/peerpad/internal/foldersync"
	"github.com/bbitmaster/peerpad/internal/netaddr"
	"github.com/bbitmaster/peerpad/internal/session"
	"github.com/bbitmaster/peerpad/internal/store"
	"github.com/bbitmaster/peerpad/internal/tui"
	"github.com/bbitmaster/peerpad/internal/web"
)

const (
	browseTimeout = 3 * time.Second
	recentLimit   = 10
)

// FolderSyncer is the part of the Syncthing client the app uses.
type FolderSyncer interface {
	Start(ctx context.Context) error
	DeviceID(ctx context.Context) (string, error)
	SetupSharedFolder(ctx context.Context, path, peerDeviceID string) error
}

type App struct {
	version string
	config  *Config
	logger  *slog.Logger
	stdout  io.Writer
	folders FolderSyncer
	// openFolder shows a directory in the file manager.
	openFolder func(path string) error

	paired atomic.Bool
}

func New(version string, config *Config, logger *slog.Logger, stdout io.Writer) *App {
	return &App{
		version: version,
		config:  config,
		logger:  logger,
		stdout:  stdout,
		folders: foldersync.New(foldersync.Opts{
			APIURL: config.SyncthingURL,
			Logger: logger,
		}),
		openFolder: foldersync.OpenFolder,
	}
}

func (a *App) Run(ctx context.Context) error {
	switch {
	case a.config.ShowVersion:
		fmt.Fprintln(a.stdout, a.version)
		return nil
	case a.config.ShowIP:
		a.printAddresses()
		return nil
	case a.config.Browse:
		return a.browse(ctx)
	case a.config.ShowRecent:
		return a.printRecent()
	case a.config.ShowDeviceID:
		return a.printDeviceID(ctx)
	}
	return a.runSession(ctx)
}

func (a *App) printAddresses() {
	addrs := netaddr.ListLocalAddresses()
	if len(addrs) == 0 {
		fmt.Fprintln(a.stdout, "No network addresses found")
		return
	}
	fmt.Fprintln(a.stdout, "Other devices can connect to:")
	for _, addr := range addrs {
		fmt.Fprintf(a.stdout, "  %s:%d\n", addr, a.config.Port)
	}
}

func (a *App) browse(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, browseTimeout)
	defer cancel()

	services, err := discovery.Browse(ctx)
	if err != nil {
		return err
	}
	if len(services) == 0 {
		fmt.Fprintln(a.stdout, "No hosts found on the local network")
		return nil
	}

	w := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	for _, s := range services {
		fmt.Fprintf(w, "%s\t%s\n", s.Instance, s.Addr())
	}
	return w.Flush()
}

func (a *App) openStore() (*store.Store, error) {
	return store.Open(filepath.Join(a.config.DataDir, "peerpad.db"))
}

func (a *App) printRecent() error {
	st, err := a.openStore()
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	peers, err := st.RecentPeers(recentLimit)
	if err != nil {
		return err
	}
	if len(peers) == 0 {
		fmt.Fprintln(a.stdout, "No recent peers")
		return nil
	}

	w := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ADDRESS\tROLE\tLAST SEEN\tCOUNT\tDEVICE")
	for _, p := range peers {
		device := p.Device
		if device == "" {
			device = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", p.Address, p.Role, p.LastSeen.Local().Format(time.DateTime), p.Count, device)
	}
	return w.Flush()
}

func (a *App) printDeviceID(ctx context.Context) error {
	if err := a.folders.Start(ctx); err != nil {
		return err
	}
	id, err := a.folders.DeviceID(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.stdout, id)
	return nil
}

// shareFolder makes sure the shared folder exists and is shared with
// device.
func (a *App) shareFolder(ctx context.Context, device string) error {
	if err := os.MkdirAll(a.config.SharedFolder, 0o755); err != nil {
		return fmt.Errorf("failed to create shared folder: %w", err)
	}
	if err := a.folders.Start(ctx); err != nil {
		return err
	}
	if err := a.folders.SetupSharedFolder(ctx, a.config.SharedFolder, device); err != nil {
		return err
	}
	a.logger.Info("Sharing folder", "path", a.config.SharedFolder, "device", device)
	return nil
}

// openSharedFolder creates the shared folder if needed and shows it.
func (a *App) openSharedFolder() error {
	if err := os.MkdirAll(a.config.SharedFolder, 0o755); err != nil {
		return fmt.Errorf("failed to create shared folder: %w", err)
	}
	return a.openFolder(a.config.SharedFolder)
}

func (a *App) runSession(ctx context.Context) error {
	if err := os.MkdirAll(a.config.SharedFolder, 0o755); err != nil {
		a.logger.Warn("Failed to create shared folder", "path", a.config.SharedFolder, "error", err)
	}

	var rec PeerRecorder
	st, err := a.openStore()
	if err != nil {
		a.logger.Warn("Recent peers disabled", "error", err)
	} else {
		defer st.Close() //nolint:errcheck
		rec = st
	}

	bridge := &trackedBridge{Bridge: session.New(session.Opts{Logger: a.logger})}
	defer func() {
		if err := bridge.Shutdown(); err != nil {
			a.logger.Warn("Session shutdown", "error", err)
		}
	}()
	events := a.watch(ctx, bridge.Events(), bridge.target, rec)

	if a.config.ShareWith != "" {
		go func() {
			if err := a.shareFolder(ctx, a.config.ShareWith); err != nil {
				a.logger.Error("Failed to share folder", "error", err)
			}
		}()
	}

	status := ""
	switch {
	case a.config.Host:
		status = fmt.Sprintf("Hosting on port %d... waiting for connection", a.config.Port)
		if err := bridge.Host(a.config.Port); err != nil {
			return err
		}
		if a.config.Advertise {
			stop, err := discovery.Advertise(discovery.InstanceName(), a.config.Port, []string{"version=" + a.version})
			if err != nil {
				a.logger.Warn("Not advertising on the local network", "error", err)
			} else {
				defer stop()
			}
		}
	case a.config.Connect != "":
		status = fmt.Sprintf("Connecting to %s:%d...", a.config.ConnectHost, a.config.ConnectPort)
		if err := bridge.Connect(a.config.ConnectHost, a.config.ConnectPort); err != nil {
			return err
		}
	}

	if a.config.UI == UIWeb {
		opts := web.Opts{
			Addr:        a.config.WebAddr,
			DefaultPort: a.config.Port,
			Commands:    bridge,
			Status:      status,
			OpenFolder:  a.openSharedFolder,
			Logger:      a.logger,
		}
		if st != nil {
			opts.Recent = st
		}
		fmt.Fprintf(a.stdout, "PeerPad is running at http://%s\n", a.config.WebAddr)
		return web.New(opts).Run(ctx, events)
	}

	return tui.Run(ctx, tui.Opts{
		Commands:    bridge,
		Events:      events,
		Status:      status,
		DefaultPort: a.config.Port,
		Addresses:   netaddr.ListLocalAddresses(),
		OpenFolder:  a.openSharedFolder,
	})
}
