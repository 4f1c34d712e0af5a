// Package store keeps small bits of local state in a bbolt database: the
// peers this machine has linked with and their Syncthing device IDs.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	peersBucket   = []byte("peers")
	devicesBucket = []byte("devices")
)

// PeerRecord is one remembered peer.
type PeerRecord struct {
	Address  string    `json:"address"`
	Role     string    `json:"role"`
	LastSeen time.Time `json:"last_seen"`
	Count    int       `json:"count"`
	// Device is the Syncthing device paired with this peer, if any.
	Device string `json:"device,omitempty"`
}

type Store struct {
	db *bolt.DB
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open store %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{peersBucket, devicesBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close() //nolint:errcheck
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// RecordPeer notes a successful link with address.
func (s *Store) RecordPeer(address, role string, at time.Time) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(peersBucket)

		rec := PeerRecord{Address: address}
		if v := b.Get([]byte(address)); v != nil {
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("corrupt peer record %q: %w", address, err)
			}
		}
		rec.Role = role
		rec.LastSeen = at.UTC()
		rec.Device = ""
		rec.Count++

		v, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return b.Put([]byte(address), v)
	})
}

// RecentPeers returns up to limit peers, most recent first. A limit of zero
// or less returns all of them.
func (s *Store) RecentPeers(limit int) ([]PeerRecord, error) {
	var out []PeerRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		devices := tx.Bucket(devicesBucket)
		return tx.Bucket(peersBucket).ForEach(func(k, v []byte) error {
			var rec PeerRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("corrupt peer record %q: %w", k, err)
			}
			rec.Device = string(devices.Get(k))
			out = append(out, rec)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].LastSeen.After(out[j].LastSeen)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// SetDevice remembers the Syncthing device ID used with a peer.
func (s *Store) SetDevice(address, deviceID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(devicesBucket).Put([]byte(address), []byte(deviceID))
	})
}

// Device returns the remembered device ID, or "" when there is none.
func (s *Store) Device(address string) (string, error) {
	var id string
	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(devicesBucket).Get([]byte(address)); v != nil {
			id = string(v)
		}
		return nil
	})
	return id, err
}
