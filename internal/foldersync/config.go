package foldersync

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"slices"
)

type Device struct {
	DeviceID          string   `json:"deviceID"`
	Name              string   `json:"name,omitempty"`
	Addresses         []string `json:"addresses,omitempty"`
	Compression       string   `json:"compression,omitempty"`
	Introducer        bool     `json:"introducer"`
	Paused            bool     `json:"paused"`
	AutoAcceptFolders bool     `json:"autoAcceptFolders"`
}

type FolderDevice struct {
	DeviceID           string `json:"deviceID"`
	IntroducedBy       string `json:"introducedBy"`
	EncryptionPassword string `json:"encryptionPassword"`
}

type Folder struct {
	ID               string         `json:"id"`
	Label            string         `json:"label"`
	Path             string         `json:"path"`
	Type             string         `json:"type"`
	Devices          []FolderDevice `json:"devices"`
	RescanIntervalS  int            `json:"rescanIntervalS"`
	FSWatcherEnabled bool           `json:"fsWatcherEnabled"`
	FSWatcherDelayS  int            `json:"fsWatcherDelayS"`
	IgnorePerms      bool           `json:"ignorePerms"`
	AutoNormalize    bool           `json:"autoNormalize"`
}

// Config is the part of Syncthing's configuration PeerPad reads.
type Config struct {
	Devices []Device `json:"devices"`
	Folders []Folder `json:"folders"`
}

// FolderStatus is a subset of /rest/db/status.
type FolderStatus struct {
	State       string `json:"state"`
	GlobalFiles int    `json:"globalFiles"`
	LocalFiles  int    `json:"localFiles"`
	NeedFiles   int    `json:"needFiles"`
	NeedBytes   int64  `json:"needBytes"`
	InSyncFiles int    `json:"inSyncFiles"`
}

// DeviceID returns this machine's Syncthing device ID.
func (c *Client) DeviceID(ctx context.Context) (string, error) {
	var status struct {
		MyID string `json:"myID"`
	}
	if err := c.do(ctx, http.MethodGet, "/rest/system/status", nil, &status); err != nil {
		return "", err
	}
	if status.MyID == "" {
		return "", errors.New("foldersync: status has no device ID")
	}
	return status.MyID, nil
}

func (c *Client) Config(ctx context.Context) (*Config, error) {
	var cfg Config
	if err := c.do(ctx, http.MethodGet, "/rest/config", nil, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Client) DeviceExists(ctx context.Context, deviceID string) (bool, error) {
	cfg, err := c.Config(ctx)
	if err != nil {
		return false, err
	}
	return slices.ContainsFunc(cfg.Devices, func(d Device) bool { return d.DeviceID == deviceID }), nil
}

// AddDevice registers a peer device unless it is already known.
func (c *Client) AddDevice(ctx context.Context, deviceID, name string) error {
	exists, err := c.DeviceExists(ctx, deviceID)
	if err != nil || exists {
		return err
	}

	if name == "" {
		name = "PeerPad Peer"
	}
	return c.do(ctx, http.MethodPost, "/rest/config/devices", Device{
		DeviceID:    deviceID,
		Name:        name,
		Addresses:   []string{"dynamic"},
		Compression: "metadata",
	}, nil)
}

func (c *Client) folder(ctx context.Context) (*Folder, error) {
	cfg, err := c.Config(ctx)
	if err != nil {
		return nil, err
	}
	for i := range cfg.Folders {
		if cfg.Folders[i].ID == FolderID {
			return &cfg.Folders[i], nil
		}
	}
	return nil, nil
}

func (c *Client) FolderExists(ctx context.Context) (bool, error) {
	f, err := c.folder(ctx)
	return f != nil, err
}

// FolderDevices lists the devices sharing the PeerPad folder.
func (c *Client) FolderDevices(ctx context.Context) ([]string, error) {
	f, err := c.folder(ctx)
	if err != nil || f == nil {
		return nil, err
	}
	ids := make([]string, 0, len(f.Devices))
	for _, d := range f.Devices {
		ids = append(ids, d.DeviceID)
	}
	return ids, nil
}

// SetupSharedFolder shares path with peerDeviceID, creating the PeerPad
// folder or adding the peer to it.
func (c *Client) SetupSharedFolder(ctx context.Context, path, peerDeviceID string) error {
	myID, err := c.DeviceID(ctx)
	if err != nil {
		return err
	}
	if err := c.AddDevice(ctx, peerDeviceID, ""); err != nil {
		return err
	}

	existing, err := c.folder(ctx)
	if err != nil {
		return err
	}
	if existing == nil {
		c.logger.Info("Creating shared folder", "path", path, "peer", peerDeviceID)
		return c.do(ctx, http.MethodPost, "/rest/config/folders", Folder{
			ID:    FolderID,
			Label: FolderLabel,
			Path:  path,
			Type:  "sendreceive",
			Devices: []FolderDevice{
				{DeviceID: myID},
				{DeviceID: peerDeviceID},
			},
			RescanIntervalS:  60,
			FSWatcherEnabled: true,
			FSWatcherDelayS:  1,
			AutoNormalize:    true,
		}, nil)
	}

	if slices.ContainsFunc(existing.Devices, func(d FolderDevice) bool { return d.DeviceID == peerDeviceID }) {
		return nil
	}
	return c.addFolderDevice(ctx, peerDeviceID)
}

// addFolderDevice round-trips the folder as a generic object so fields this
// package does not model survive the PUT.
func (c *Client) addFolderDevice(ctx context.Context, peerDeviceID string) error {
	endpoint := "/rest/config/folders/" + url.PathEscape(FolderID)

	var raw map[string]any
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &raw); err != nil {
		return err
	}

	devices, _ := raw["devices"].([]any)
	raw["devices"] = append(devices, FolderDevice{DeviceID: peerDeviceID})

	c.logger.Info("Adding peer to shared folder", "peer", peerDeviceID)
	return c.do(ctx, http.MethodPut, endpoint, raw, nil)
}

func (c *Client) FolderStatus(ctx context.Context) (*FolderStatus, error) {
	var st FolderStatus
	endpoint := "/rest/db/status?folder=" + url.QueryEscape(FolderID)
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}
