package app

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/sheinberglab/dserv/internal/procregistry"
	"github.com/sheinberglab/dserv/internal/trigger"
)

// loadProcessors attaches every ".so" plugin found directly under dir, one
// attachment per file, keyed and watched under its own varname equal to
// its base name. A missing directory is not an error — plugins are
// optional — but a plugin that fails to load is skipped and logged.
func loadProcessors(registry *procregistry.Registry, dir string, log *logrus.Logger) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			log.WithError(err).WithField("dir", dir).Warn("procregistry: failed to list plugin directory")
		}
		return
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".so" {
			continue
		}
		reloadProcessor(registry, filepath.Join(dir, entry.Name()), log)
	}
}

// reloadProcessor (re)loads the plugin at path, attaching it under its
// base name (minus extension) for both attachment name and varname. It is
// the hot-reload callback as well as the startup loader's per-file step.
func reloadProcessor(registry *procregistry.Registry, path string, log *logrus.Logger) {
	name := strings.TrimSuffix(filepath.Base(path), ".so")
	attachment, unload, err := procregistry.Load(path)
	if err != nil {
		log.WithError(err).WithField("path", path).Warn("procregistry: plugin load failed")
		return
	}
	registry.Attach(name, name, attachment, unload)
	log.WithFields(logrus.Fields{"name": name, "path": path}).Info("procregistry: attached plugin")
}

// loadTriggers adds every ".trig" script found directly under dir to dict.
// A trigger file's name, with underscores standing in for the slashes a
// varname pattern may contain, is its glob pattern; its contents are the
// trigger body.
func loadTriggers(dict *trigger.Dict, dir string, log *logrus.Logger) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			log.WithError(err).WithField("dir", dir).Warn("trigger: failed to list script directory")
		}
		return
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".trig" {
			continue
		}
		reloadTrigger(dict, filepath.Join(dir, entry.Name()), log)
	}
}

func reloadTrigger(dict *trigger.Dict, path string, log *logrus.Logger) {
	data, err := os.ReadFile(path)
	if err != nil {
		log.WithError(err).WithField("path", path).Warn("trigger: script read failed")
		return
	}
	pattern := strings.ReplaceAll(strings.TrimSuffix(filepath.Base(path), ".trig"), "_", "/")
	dict.Add(pattern, strings.TrimSpace(string(data)))
	log.WithFields(logrus.Fields{"pattern": pattern, "path": path}).Info("trigger: loaded script")
}
