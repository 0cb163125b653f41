package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	logx "ctrdash/pkg/logx"
)

const (
	// reloadDelay lets an editor finish writing before the file is parsed.
	reloadDelay     = 250 * time.Millisecond
	validateTimeout = 5 * time.Second
)

// ConfigManager owns the current Config and republishes it when the file
// changes on disk.
type ConfigManager struct {
	path      string
	log       logx.Logger
	validator func(ctx context.Context, cfg *Config) error

	mu      sync.RWMutex
	cfg     *Config
	hash    uint64
	missing bool

	subsMu sync.Mutex
	subs   map[chan *Config]struct{}
}

func NewConfigManager(path string) *ConfigManager {
	return &ConfigManager{path: path, log: logx.Nop(), subs: map[chan *Config]struct{}{}}
}

func (m *ConfigManager) SetLogger(log logx.Logger) {
	if !log.IsZero() {
		m.log = log
	}
}

// SetValidator installs an extra check run on every reloaded config before
// it is committed.
func (m *ConfigManager) SetValidator(fn func(ctx context.Context, cfg *Config) error) {
	m.validator = fn
}

func (m *ConfigManager) Path() string { return m.path }

// Parse reads the file and returns the validated config.
func (m *ConfigManager) Parse() (*Config, error) {
	b, err := os.ReadFile(m.path)
	if err != nil {
		return nil, err
	}
	return ParseBytes(m.path, b)
}

// Load parses and commits the file. A missing file commits Default() and
// marks the manager as missing; Watch picks the file up once it appears.
func (m *ConfigManager) Load() (*Config, error) {
	cfg, err := m.Parse()
	missing := errors.Is(err, fs.ErrNotExist)
	if missing {
		cfg, err = Default(), nil
	}
	if err != nil {
		return nil, err
	}
	m.commit(cfg, missing)
	return cfg, nil
}

// Missing reports whether the running config came from defaults because
// the file does not exist.
func (m *ConfigManager) Missing() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.missing
}

func (m *ConfigManager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

func (m *ConfigManager) commit(cfg *Config, missing bool) {
	h := hashConfig(cfg)
	m.mu.Lock()
	m.cfg, m.hash, m.missing = cfg, h, missing
	m.mu.Unlock()
}

func (m *ConfigManager) setMissing(missing bool) {
	m.mu.Lock()
	m.missing = missing
	m.mu.Unlock()
}

func hashConfig(cfg *Config) uint64 {
	b, err := json.Marshal(cfg)
	if err != nil {
		return 0
	}
	return hashBytes(b)
}

// Subscribe returns a channel that receives every published config. A slow
// subscriber loses older configs, never the newest.
func (m *ConfigManager) Subscribe(buffer int) chan *Config {
	ch := make(chan *Config, max(buffer, 1))
	m.subsMu.Lock()
	m.subs[ch] = struct{}{}
	m.subsMu.Unlock()
	return ch
}

// Unsubscribe closes ch. Unknown channels are ignored.
func (m *ConfigManager) Unsubscribe(ch chan *Config) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	if _, ok := m.subs[ch]; ok {
		delete(m.subs, ch)
		close(ch)
	}
}

func (m *ConfigManager) publish(cfg *Config) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for ch := range m.subs {
		if !offerLatest(ch, cfg) {
			m.log.Debug("config update dropped (subscriber slow)", logx.Int("queue_cap", cap(ch)))
		}
	}
}

// offerLatest sends cfg, evicting the oldest queued config if ch is full.
func offerLatest(ch chan *Config, cfg *Config) bool {
	select {
	case ch <- cfg:
		return true
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- cfg:
		return true
	default:
		return false
	}
}

// Watch reloads the file once writes settle, until ctx is done. The parent
// directory is watched so replaced files and a file created after Load fell
// back to defaults are both seen. If the watcher cannot run, hot reload is
// disabled with a warning and the current config stays in effect.
func (m *ConfigManager) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		m.log.Warn("config hot reload disabled", logx.Err(err))
		return nil
	}
	defer w.Close()

	dir, name := filepath.Dir(m.path), filepath.Base(m.path)
	if err := w.Add(dir); err != nil {
		m.log.Warn("config hot reload disabled", logx.String("dir", dir), logx.Err(err))
		return nil
	}
	m.log.Debug("watching config", logx.String("path", m.path), logx.Bool("missing", m.Missing()))

	timer := time.NewTimer(reloadDelay)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				m.log.Warn("config watcher closed; hot reload disabled")
				return nil
			}
			if filepath.Base(ev.Name) == name {
				timer.Reset(reloadDelay)
			}
		case err, ok := <-w.Errors:
			if !ok {
				m.log.Warn("config watcher closed; hot reload disabled")
				return nil
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				// Events were lost; look at the file anyway.
				timer.Reset(reloadDelay)
			}
			m.log.Warn("config watch error", logx.Err(err))
		case <-timer.C:
			m.reload(ctx)
		}
	}
}

func (m *ConfigManager) reload(ctx context.Context) {
	path := logx.String("path", m.path)
	cfg, err := m.Parse()
	if errors.Is(err, fs.ErrNotExist) {
		if !m.Missing() {
			m.setMissing(true)
			m.log.Warn("config file removed; keeping current config", path)
		}
		return
	}
	if err != nil {
		m.log.Warn("config rejected", path, logx.Err(err))
		return
	}

	h := hashConfig(cfg)
	m.mu.RLock()
	unchanged, wasMissing := h == m.hash, m.missing
	m.mu.RUnlock()
	if unchanged {
		m.setMissing(false)
		m.log.Debug("config unchanged; skipping publish", path)
		return
	}

	if m.validator != nil {
		vctx, cancel := context.WithTimeout(ctx, validateTimeout)
		err := m.validator(vctx, cfg)
		cancel()
		if err != nil {
			m.log.Warn("config rejected", path, logx.Err(err))
			return
		}
	}

	m.commit(cfg, false)
	if wasMissing {
		m.log.Info("config file created", path)
	}
	m.publish(cfg)
	m.log.Debug("config published", path, logx.String("hash", fmt.Sprintf("%x", h)))
}
