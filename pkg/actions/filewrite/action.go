// Package filewrite provides the file write action, which persists step data
// to a file on the worker's filesystem.
package filewrite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/steplinehq/stepline/pkg/models"
	"github.com/steplinehq/stepline/pkg/template"
)

const (
	dirPerm  = 0755
	filePerm = 0644
)

var (
	// ErrFileWritePathInvalid is returned when the path is missing or not templatable.
	ErrFileWritePathInvalid = errors.New("invalid file write path")
	// ErrFileExists is returned when the target exists and overwrite is false.
	ErrFileExists = errors.New("file already exists")
)

// Action writes content to a templated path. When no content template is
// configured the accumulated run context values are written as indented JSON,
// which makes the action usable as a poor man's execution dump.
type Action struct {
	Path      string
	Content   string
	Overwrite bool
}

// NewAction creates an Action from step configuration.
func NewAction(config map[string]any) (*Action, error) {
	path, ok := config["path"].(string)
	if !ok || path == "" {
		return nil, fmt.Errorf("missing or invalid 'path' in configuration: %w", ErrFileWritePathInvalid)
	}

	content, _ := config["content"].(string)
	overwrite, _ := config["overwrite"].(bool)

	action := &Action{
		Path:      path,
		Content:   content,
		Overwrite: overwrite,
	}

	if err := action.validate(); err != nil {
		return nil, err
	}

	return action, nil
}

func (a *Action) validate() error {
	if _, err := template.Parse(a.Path); err != nil {
		return fmt.Errorf("invalid path template: %w", err)
	}

	if _, err := template.Parse(a.Content); err != nil {
		return fmt.Errorf("invalid content template: %w", err)
	}

	return nil
}

// Execute writes the rendered content and returns the target path and size
// as step output.
func (a *Action) Execute(ctx context.Context, runCtx models.RunContext, logger *slog.Logger) (map[string]any, error) {
	logger = logger.With("module", "file_write_action")

	pathResult, err := template.RenderValue(a.Path, &runCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to render path template: %w", err)
	}

	path := fmt.Sprintf("%v", pathResult)

	data, err := a.buildContent(runCtx)
	if err != nil {
		return nil, err
	}

	if !a.Overwrite {
		if _, err := os.Stat(path); err == nil {
			return nil, fmt.Errorf("%w: %s", ErrFileExists, path)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return nil, fmt.Errorf("failed to create directory for '%s': %w", path, err)
	}

	if err := os.WriteFile(path, data, filePerm); err != nil {
		return nil, fmt.Errorf("failed to write file '%s': %w", path, err)
	}

	logger.InfoContext(ctx, "File write action completed", "path", path, "bytes_written", len(data))

	return map[string]any{
		"file_path":     path,
		"bytes_written": len(data),
	}, nil
}

func (a *Action) buildContent(runCtx models.RunContext) ([]byte, error) {
	if a.Content == "" {
		data, err := json.MarshalIndent(runCtx.Values, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to marshal run context: %w", err)
		}

		return data, nil
	}

	content, err := template.RenderValue(a.Content, &runCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to render content template: %w", err)
	}

	if str, ok := content.(string); ok {
		return []byte(str), nil
	}

	data, err := json.MarshalIndent(content, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal content: %w", err)
	}

	return data, nil
}
