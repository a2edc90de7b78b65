// Package cmd provides common initialization functions for the command-line
// entrypoints.
package cmd

import (
	"log/slog"

	"github.com/steplinehq/stepline/pkg/actions/filewrite"
	"github.com/steplinehq/stepline/pkg/actions/httprequest"
	logaction "github.com/steplinehq/stepline/pkg/actions/log"
	"github.com/steplinehq/stepline/pkg/registry"
)

func registerActionPlugins(reg *registry.Registry, pluginsPath string) {
	actionPlugins, err := reg.LoadActionPlugins(pluginsPath)
	if err != nil {
		panic(err)
	}

	for _, plugin := range actionPlugins {
		reg.RegisterAction(plugin)
	}
}

func registerNativeActions(reg *registry.Registry) {
	reg.RegisterAction(httprequest.NewActionFactory())
	reg.RegisterAction(logaction.NewActionFactory())
	reg.RegisterAction(filewrite.NewActionFactory())
}

func NewRegistry(logger *slog.Logger, pluginsPath string) *registry.Registry {
	reg := registry.NewRegistry(logger)

	registerActionPlugins(reg, pluginsPath)
	registerNativeActions(reg)

	return reg
}
