// Package registry tracks the action factories available to the engine,
// both compiled-in and loaded from Go plugins.
package registry

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"plugin"
	"sort"
	"strings"

	"github.com/steplinehq/stepline/pkg/protocol"
)

// ErrActionNotRegistered is returned when no factory exists for an action type.
var ErrActionNotRegistered = errors.New("action type not registered")

// ActionInfo describes one registered action type.
type ActionInfo struct {
	ID     string         `json:"id"`
	Schema map[string]any `json:"schema"`
}

type Registry struct {
	logger          *slog.Logger
	actionFactories map[string]protocol.ActionFactory
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		logger:          log,
		actionFactories: make(map[string]protocol.ActionFactory),
	}
}

func (r *Registry) LoadActionPlugins(pluginsPath string) ([]protocol.ActionFactory, error) {
	return loadPlugin[protocol.ActionFactory](r.logger, pluginsPath, "Action")
}

func (r *Registry) RegisterAction(actionFactory protocol.ActionFactory) {
	r.actionFactories[actionFactory.ID()] = actionFactory
}

func (r *Registry) CreateAction(actionType string, config map[string]any) (protocol.Action, error) {
	factory, ok := r.actionFactories[actionType]
	if !ok {
		return nil, fmt.Errorf("%w: '%s'", ErrActionNotRegistered, actionType)
	}

	return factory.Create(config)
}

// Available lists the registered action types with their config schemas,
// sorted by id.
func (r *Registry) Available() []ActionInfo {
	infos := make([]ActionInfo, 0, len(r.actionFactories))
	for _, factory := range r.actionFactories {
		infos = append(infos, ActionInfo{ID: factory.ID(), Schema: factory.Schema()})
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })

	return infos
}

// HealthCheck reports whether the registry is ready to create actions.
func (r *Registry) HealthCheck() (string, bool) {
	if r == nil || r.actionFactories == nil {
		return "Action registry not initialized", false
	}

	return fmt.Sprintf("Action registry is healthy (%d actions)", len(r.actionFactories)), true
}

func loadPlugin[T any](logger *slog.Logger, pluginsPath string, symbolName string) ([]T, error) {
	rootPath := pluginsPath + "/" + strings.ToLower(symbolName) + "s"
	root := os.DirFS(rootPath)

	pluginPathList, err := fs.Glob(root, "**/*.so")
	if err != nil {
		return nil, err
	}

	l := logger.With(slog.String("path", pluginsPath), slog.String("type", symbolName))
	l.Info("Loading plugins")

	pluginList := make([]T, 0, len(pluginPathList))

	for _, p := range pluginPathList {
		plg, err := plugin.Open(rootPath + "/" + p)
		if err != nil {
			return nil, fmt.Errorf("failed to open plugin %s: %w", p, err)
		}

		v, err := plg.Lookup(symbolName)
		if err != nil {
			return nil, fmt.Errorf("plugin %s has no %s symbol: %w", p, symbolName, err)
		}

		castV, ok := v.(T)
		if !ok {
			return nil, fmt.Errorf("plugin %s: symbol %s has unexpected type %T", p, symbolName, v)
		}

		pluginList = append(pluginList, castV)

		l.Info("Loaded action plugin", slog.String("plugin", p))
	}

	return pluginList, nil
}
