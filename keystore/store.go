package keystore

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/nimbusvale/directble/codec"
)

// Store manages KeyBin files under one directory, one file per (local
// adapter, remote identity) pair. Writes go through a temp file and
// rename so a crash mid-write never leaves a torn KeyBin on disk.
type Store struct {
	dir string
	log logrus.FieldLogger

	mu      sync.Mutex
	writers map[string]*sync.Mutex
}

// NewStore creates a Store rooted at dir, creating it if absent.
func NewStore(dir string, log logrus.FieldLogger) (*Store, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, codec.NewError(codec.KindState, "keystore.NewStore", "create key directory", err)
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Store{dir: dir, log: log.WithField("component", "keystore"), writers: make(map[string]*sync.Mutex)}, nil
}

// filename renders the FAT32-LFN-safe name from spec §6:
// bd_<localAddr>_<remoteAddr>_<remoteType>.key
func filename(local, remote [6]byte, remoteType uint8) string {
	return fmt.Sprintf("bd_%s_%s_%d.key", hexAddr(local), hexAddr(remote), remoteType)
}

func hexAddr(a [6]byte) string {
	return fmt.Sprintf("%02x%02x%02x%02x%02x%02x", a[0], a[1], a[2], a[3], a[4], a[5])
}

func (s *Store) pairLock(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.writers[key]
	if !ok {
		l = &sync.Mutex{}
		s.writers[key] = l
	}
	return l
}

// Save writes k atomically, serialized against any concurrent Save for the
// same (local, remote) pair.
func (s *Store) Save(k *KeyBin) error {
	name := filename(k.LocalAddr, k.RemoteAddr, k.RemoteAddrType)
	lock := s.pairLock(name)
	lock.Lock()
	defer lock.Unlock()

	path := filepath.Join(s.dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, k.Marshal(), 0600); err != nil {
		return codec.NewError(codec.KindState, "keystore.Save", "write temp key file", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return codec.NewError(codec.KindState, "keystore.Save", "rename temp key file", err)
	}
	s.log.WithField("file", name).Debug("key bin saved")
	return nil
}

// Load reads the KeyBin matching a remote identity, returning
// (nil, nil) if no such file exists.
func (s *Store) Load(local, remote [6]byte, remoteType uint8) (*KeyBin, error) {
	name := filename(local, remote, remoteType)
	path := filepath.Join(s.dir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, codec.NewError(codec.KindState, "keystore.Load", "read key file", err)
	}
	k, err := Unmarshal(data)
	if err != nil {
		return nil, err
	}
	return k, nil
}

// IRKs returns every IRK this local adapter has bonded and stored, across
// all remote identities, for resolvable-private-address resolution (spec
// §4.5: "iterate the local IRK store"). A file that fails to read or parse
// is skipped rather than failing the whole scan, so one corrupt bond never
// blocks resolving the rest.
func (s *Store) IRKs(local [6]byte) ([]IRKRecord, error) {
	pattern := filepath.Join(s.dir, fmt.Sprintf("bd_%s_*.key", hexAddr(local)))
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, codec.NewError(codec.KindState, "keystore.IRKs", "glob key directory", err)
	}
	out := make([]IRKRecord, 0, len(matches))
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			s.log.WithError(err).WithField("file", path).Debug("skipping unreadable key file during IRK scan")
			continue
		}
		k, err := Unmarshal(data)
		if err != nil || k.IRK == nil {
			if err != nil {
				s.log.WithError(err).WithField("file", path).Debug("skipping unparseable key file during IRK scan")
			}
			continue
		}
		out = append(out, *k.IRK)
	}
	return out, nil
}

// Delete removes a bond's KeyBin, tolerating a file that is already gone.
func (s *Store) Delete(local, remote [6]byte, remoteType uint8) error {
	name := filename(local, remote, remoteType)
	lock := s.pairLock(name)
	lock.Lock()
	defer lock.Unlock()

	path := filepath.Join(s.dir, name)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return codec.NewError(codec.KindState, "keystore.Delete", "remove key file", err)
	}
	return nil
}
