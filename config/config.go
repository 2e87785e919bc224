/*
 * MIT License
 *
 * Copyright (c) 2025 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package config loads a connector's tunables from a viper-backed file and
// keeps them live: Watch arranges for every save of that file to produce a
// fresh Settings value on the Watcher's change channel, fsnotify underneath
// viper.WatchConfig doing the filesystem watching.
package config

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/nabbar/carbon/connector"
)

// Settings is the subset of a Connector's configuration a deployment is
// expected to tune from a file: everything else (Codec, Sessions, Loop,
// SysResp) is wiring decided in code, not in a config file.
type Settings struct {
	Network       string        `mapstructure:"network"`
	ListenAddress string        `mapstructure:"listen_address"`
	Workers       int64         `mapstructure:"workers"`
	SendTimeout   time.Duration `mapstructure:"send_timeout"`
	RecvTimeout   time.Duration `mapstructure:"recv_timeout"`
}

// Default returns the settings a zero-value connector.Config already
// implies, for use as a base before a file is loaded or when DefaultConfig
// is requested.
func Default() Settings {
	return Settings{
		Network:     "tcp",
		Workers:     connector.DefaultWorkers,
		SendTimeout: 0,
		RecvTimeout: 0,
	}
}

// ConnectorConfig adapts Settings to a connector.Config, leaving every field
// Settings has no opinion on (Codec, Sessions, Loop, Log, SysResp) at its
// zero value for the caller to fill in.
func (s Settings) ConnectorConfig() connector.Config {
	return connector.Config{
		Network:     s.Network,
		Workers:     s.Workers,
		SendTimeout: s.SendTimeout,
		RecvTimeout: s.RecvTimeout,
	}
}

// DefaultConfig renders the default Settings as indented JSON, mirroring
// the teacher's component convention of a DefaultConfig(indent) method that
// produces a ready-to-edit config file.
func DefaultConfig(indent string) []byte {
	d := Default()
	out := map[string]interface{}{
		"network":        d.Network,
		"listen_address": "",
		"workers":        d.Workers,
		"send_timeout":   d.SendTimeout.String(),
		"recv_timeout":   d.RecvTimeout.String(),
	}

	buf, err := json.MarshalIndent(out, "", indent)
	if err != nil {
		return nil
	}
	return buf
}

// Watcher loads Settings from a file via spf13/viper and pushes every
// subsequent change onto Changes, using viper's fsnotify-backed
// WatchConfig/OnConfigChange.
type Watcher struct {
	vpr *viper.Viper
	log logrus.FieldLogger

	mu      sync.RWMutex
	current Settings
	changes chan Settings
}

// New creates a Watcher. log may be nil, in which case logrus.StandardLogger
// is used.
func New(log logrus.FieldLogger) *Watcher {
	if log == nil {
		log = logrus.StandardLogger()
	}

	v := viper.New()
	v.SetDefault("network", "tcp")
	v.SetDefault("workers", connector.DefaultWorkers)
	v.SetDefault("send_timeout", "0s")
	v.SetDefault("recv_timeout", "0s")

	return &Watcher{
		vpr:     v,
		log:     log,
		current: Default(),
		changes: make(chan Settings, 1),
	}
}

// Load reads path into the Watcher and unmarshals it into Settings. path's
// extension selects the viper decoder (json, yaml, toml, ...).
func (w *Watcher) Load(path string) error {
	w.vpr.SetConfigFile(path)

	if err := w.vpr.ReadInConfig(); err != nil {
		return err
	}

	return w.reload()
}

// Watch starts watching the loaded file for changes, reloading Settings and
// pushing the result onto Changes on every write. A file that fails to
// parse on reload is logged and otherwise ignored, leaving Current
// unchanged. Watch must be called after Load; it returns immediately and
// keeps watching for the life of the process.
func (w *Watcher) Watch() {
	w.vpr.OnConfigChange(func(e fsnotify.Event) {
		w.log.WithField("file", e.Name).Debug("config: change detected")
		if err := w.reload(); err != nil {
			w.log.WithError(err).Warn("config: reload failed, keeping previous settings")
		}
	})
	w.vpr.WatchConfig()
}

// Changes returns the channel Settings are pushed on after every reload
// triggered by a file change. The channel is never closed.
func (w *Watcher) Changes() <-chan Settings { return w.changes }

// Current returns the most recently loaded Settings.
func (w *Watcher) Current() Settings {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

func (w *Watcher) reload() error {
	s := Default()
	if err := w.vpr.Unmarshal(&s); err != nil {
		return err
	}

	w.mu.Lock()
	w.current = s
	w.mu.Unlock()

	select {
	case w.changes <- s:
	default:
		// a reload landed before the previous one was consumed; keep only
		// the latest, callers that care about every transition should
		// drain Changes promptly.
		select {
		case <-w.changes:
		default:
		}
		w.changes <- s
	}

	w.log.WithField("network", s.Network).WithField("listen_address", s.ListenAddress).Debug("config: reloaded")
	return nil
}
