package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/serverkit/serverkit/pkg/telemetry"
)

// Store owns the cache document for one install root. It is not safe
// for concurrent use; a run holds exactly one Store.
type Store struct {
	path  string
	root  string
	doc   *Document
	dirty bool
	log   *telemetry.Logger

	profile     string
	gameVersion string
}

// NewStore creates a store for the cache file at path, validating
// entries against the absolute install root. Load must be called before
// any check.
func NewStore(path, root, profile, gameVersion string, log *telemetry.Logger) (*Store, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving install root %s: %w", root, err)
	}
	return &Store{
		path:        path,
		root:        absRoot,
		log:         log.NewComponentLogger("cache"),
		profile:     profile,
		gameVersion: gameVersion,
	}, nil
}

// Root returns the absolute install root the store validates against.
func (s *Store) Root() string { return s.root }

// reset replaces the document with a fresh one and marks it dirty so
// the replacement is persisted.
func (s *Store) reset(reason string) {
	s.log.Infof("resetting cache: %s", reason)
	s.doc = newDocument(s.profile, s.gameVersion, s.root)
	s.dirty = true
}

// rawDocument defers entry decoding so one malformed entry does not
// take the whole document down.
type rawDocument struct {
	Version      int                        `json:"version"`
	Profile      string                     `json:"profile"`
	GameVersion  string                     `json:"mc_version"`
	ServerFolder string                     `json:"server_folder"`
	Assets       map[string]json.RawMessage `json:"assets"`
	Core         json.RawMessage            `json:"core"`
}

// Load reads the persisted document. Any failure is recovered locally:
// an unreadable or unparsable file, a game-version change or a moved
// install root resets to an empty document; a single malformed entry is
// dropped on its own.
func (s *Store) Load() {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.log.Debug("no cache file, starting fresh")
		s.doc = newDocument(s.profile, s.gameVersion, s.root)
		return
	}
	if err != nil {
		s.reset(fmt.Sprintf("cannot read %s: %v", s.path, err))
		return
	}

	var raw rawDocument
	if err := json.Unmarshal(data, &raw); err != nil {
		s.reset(fmt.Sprintf("cannot parse %s: %v", s.path, err))
		return
	}
	if raw.GameVersion != s.gameVersion {
		s.reset(fmt.Sprintf("game version changed from %s to %s", raw.GameVersion, s.gameVersion))
		return
	}
	if raw.ServerFolder != s.root {
		s.reset(fmt.Sprintf("install root moved from %s to %s", raw.ServerFolder, s.root))
		return
	}

	doc := newDocument(raw.Profile, raw.GameVersion, raw.ServerFolder)
	doc.Version = raw.Version
	for id, blob := range raw.Assets {
		var entry AssetEntry
		if err := json.Unmarshal(blob, &entry); err != nil || entry.AssetHash == "" {
			s.log.Warnf("dropping malformed cache entry for %q: %v", id, err)
			s.dirty = true
			continue
		}
		doc.Assets[id] = &entry
	}
	if len(raw.Core) > 0 && string(raw.Core) != "null" {
		var core CoreEntry
		if err := json.Unmarshal(raw.Core, &core); err != nil || core.Data.Type == "" {
			s.log.Warnf("dropping malformed core cache entry: %v", err)
			s.dirty = true
		} else {
			doc.Core = &core
		}
	}
	s.doc = doc
	s.log.Debugf("loaded cache with %d asset entries", len(doc.Assets))
}

// deleteFiles removes the record's backing files from disk. Removal
// failures are logged and otherwise ignored; a reinstall overwrites.
func (s *Store) deleteFiles(rec *Record) {
	for _, f := range rec.Files {
		p := f
		if !filepath.IsAbs(p) {
			p = filepath.Join(s.root, p)
		}
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.log.Warnf("cannot remove %s: %v", p, err)
		}
	}
}

// CheckAsset returns the entry for id only when it is still valid
// against the current definition hash; otherwise the entry and its
// files are discarded with the reason logged, and nil is returned.
func (s *Store) CheckAsset(id, currentHash string) *AssetEntry {
	entry, ok := s.doc.Assets[id]
	if !ok {
		return nil
	}
	log := s.log.WithAssetID(id)
	if entry.AssetHash != currentHash {
		if log.DebugEnabled() {
			log.Debugf("stored hash %s, current hash %s", entry.AssetHash, currentHash)
		}
		s.invalidateAsset(id, HashMismatch.String())
		return nil
	}
	if missing := entry.Data.MissingFiles(s.root); len(missing) > 0 {
		log.Infof("invalidating cache entry (%s): %v", MissingFiles, missing)
		s.invalidateAsset(id, MissingFiles.String())
		return nil
	}
	return entry
}

// Prune discards entries whose id is no longer declared in the
// manifest, deleting their files.
func (s *Store) Prune(manifestIDs map[string]struct{}) {
	for id := range s.doc.Assets {
		if _, ok := manifestIDs[id]; !ok {
			s.invalidateAsset(id, Removed.String())
		}
	}
}

// InvalidateAsset removes the entry for id and deletes its files; the
// reason is recorded in the log line.
func (s *Store) InvalidateAsset(id, reason string) {
	s.invalidateAsset(id, reason)
}

func (s *Store) invalidateAsset(id, reason string) {
	entry, ok := s.doc.Assets[id]
	if !ok {
		return
	}
	s.log.WithAssetID(id).Infof("invalidating cache entry (%s)", reason)
	s.deleteFiles(&entry.Data)
	delete(s.doc.Assets, id)
	s.dirty = true
}

// StoreAsset inserts or replaces the entry for id and marks the
// document dirty.
func (s *Store) StoreAsset(id, hash string, rec Record) {
	s.doc.Assets[id] = &AssetEntry{
		AssetID:    id,
		AssetHash:  hash,
		UpdateTime: time.Now().UnixMilli(),
		Data:       rec,
	}
	s.dirty = true
}

// CheckCore returns the core entry only when it matches the manifest's
// core type, the pinned version hash (when set) and the files on disk.
// Switching core type always invalidates.
func (s *Store) CheckCore(coreType, versionHash string) *CoreEntry {
	entry := s.doc.Core
	if entry == nil {
		return nil
	}
	if entry.Data.Type != coreType {
		s.InvalidateCore(fmt.Sprintf("core type changed from %s to %s", entry.Data.Type, coreType))
		return nil
	}
	if versionHash != "" && entry.VersionHash != versionHash {
		s.InvalidateCore("pinned build changed")
		return nil
	}
	if missing := entry.Data.MissingFiles(s.root); len(missing) > 0 {
		s.InvalidateCore(fmt.Sprintf("%s: %v", MissingFiles, missing))
		return nil
	}
	return entry
}

// InvalidateCore removes the core entry and deletes its files.
func (s *Store) InvalidateCore(reason string) {
	if s.doc.Core == nil {
		return
	}
	s.log.Infof("invalidating core cache entry (%s)", reason)
	s.deleteFiles(&s.doc.Core.Data)
	s.doc.Core = nil
	s.dirty = true
}

// StoreCore replaces the core entry and marks the document dirty.
func (s *Store) StoreCore(versionHash string, rec Record) {
	s.doc.Core = &CoreEntry{
		UpdateTime:  time.Now().UnixMilli(),
		VersionHash: versionHash,
		Data:        rec,
	}
	s.dirty = true
}

// Entries returns the asset entries keyed by id. The map is the live
// document state; callers must not mutate it.
func (s *Store) Entries() map[string]*AssetEntry { return s.doc.Assets }

// Core returns the core entry or nil.
func (s *Store) Core() *CoreEntry { return s.doc.Core }

// Save persists the document when dirty. Callers invoke it after every
// completed asset so an interrupted run loses at most the in-flight
// one.
func (s *Store) Save() error {
	if !s.dirty {
		return nil
	}
	data, err := json.MarshalIndent(s.doc, "", "  ")
	if err != nil {
		return fmt.Errorf("serializing cache document: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", s.path, err)
	}
	s.dirty = false
	s.log.Debugf("saved cache to %s", s.path)
	return nil
}
