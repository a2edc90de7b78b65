package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/steplinehq/stepline/pkg/models"
	"github.com/steplinehq/stepline/pkg/persistence"
)

const (
	defaultListLimit = 20

	dirPerm  = 0750
	filePerm = 0600
)

// WorkflowRepository stores workflows as JSON files, one per workflow,
// with steps embedded in the workflow document.
type WorkflowRepository struct {
	root string
	mu   sync.RWMutex
}

var _ persistence.WorkflowRepository = (*WorkflowRepository)(nil)

// NewWorkflowRepository creates a workflow repository rooted at the given directory.
func NewWorkflowRepository(root string) *WorkflowRepository {
	return &WorkflowRepository{root: root}
}

func (r *WorkflowRepository) dir() string {
	return filepath.Join(r.root, "workflows")
}

func (r *WorkflowRepository) path(workflowID string) string {
	return filepath.Join(r.dir(), workflowID+".json")
}

// Save persists the workflow, creating it when new and replacing it otherwise.
// Workflow names must be unique per owner among non-deleted workflows.
func (r *WorkflowRepository) Save(ctx context.Context, workflow *models.Workflow) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if workflow.ID == "" {
		workflow.ID = uuid.New().String()
	}

	taken, err := r.nameTaken(ctx, workflow)
	if err != nil {
		return persistence.NewWorkflowError("Save", workflow.ID, err)
	}

	if taken {
		return persistence.NewWorkflowError("Save", workflow.ID, persistence.ErrDuplicateWorkflowName)
	}

	now := time.Now().UTC()
	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now

	if err := os.MkdirAll(r.dir(), dirPerm); err != nil {
		return persistence.NewWorkflowError("Save", workflow.ID, fmt.Errorf("failed to create workflows directory: %w", err))
	}

	data, err := json.MarshalIndent(workflow, "", "  ")
	if err != nil {
		return persistence.NewWorkflowError("Save", workflow.ID, fmt.Errorf("failed to marshal workflow: %w", err))
	}

	if err := os.WriteFile(r.path(workflow.ID), data, filePerm); err != nil {
		return persistence.NewWorkflowError("Save", workflow.ID, fmt.Errorf("failed to write workflow file: %w", err))
	}

	return nil
}

// GetByID loads a workflow by its identifier.
func (r *WorkflowRepository) GetByID(_ context.Context, workflowID string) (*models.Workflow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.load(workflowID)
}

// GetWithSteps loads a workflow together with its steps, scoped to the owner.
// A workflow owned by someone else is reported as not found.
func (r *WorkflowRepository) GetWithSteps(_ context.Context, workflowID, ownerID string) (*models.Workflow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	workflow, err := r.load(workflowID)
	if err != nil {
		return nil, err
	}

	if ownerID != "" && workflow.OwnerID != ownerID {
		return nil, persistence.NewWorkflowError("GetWithSteps", workflowID, persistence.ErrWorkflowNotFound)
	}

	return workflow, nil
}

// List returns workflows matching the options, newest first.
func (r *WorkflowRepository) List(_ context.Context, opts persistence.ListWorkflowsOptions) ([]*models.Workflow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	workflows, err := r.loadAll()
	if err != nil {
		return nil, err
	}

	filtered := make([]*models.Workflow, 0, len(workflows))

	for _, workflow := range workflows {
		if opts.OwnerID != "" && workflow.OwnerID != opts.OwnerID {
			continue
		}

		if opts.Status != nil && workflow.Status != *opts.Status {
			continue
		}

		filtered = append(filtered, workflow)
	}

	sort.Slice(filtered, func(i, j int) bool {
		return filtered[i].CreatedAt.After(filtered[j].CreatedAt)
	})

	limit := opts.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	if offset >= len(filtered) {
		return []*models.Workflow{}, nil
	}

	end := offset + limit
	if end > len(filtered) {
		end = len(filtered)
	}

	return filtered[offset:end], nil
}

// ListScheduled returns every active workflow that carries a schedule.
func (r *WorkflowRepository) ListScheduled(_ context.Context) ([]*models.Workflow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	workflows, err := r.loadAll()
	if err != nil {
		return nil, err
	}

	scheduled := make([]*models.Workflow, 0)

	for _, workflow := range workflows {
		if workflow.Status == models.WorkflowStatusActive && workflow.Schedule != "" {
			scheduled = append(scheduled, workflow)
		}
	}

	return scheduled, nil
}

// Delete removes a workflow. Deleting a workflow that does not exist is not an error.
func (r *WorkflowRepository) Delete(_ context.Context, workflowID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.Remove(r.path(workflowID)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return persistence.NewWorkflowError("Delete", workflowID, fmt.Errorf("failed to delete workflow file: %w", err))
	}

	return nil
}

func (r *WorkflowRepository) load(workflowID string) (*models.Workflow, error) {
	data, err := os.ReadFile(r.path(workflowID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, persistence.NewWorkflowError("GetByID", workflowID, persistence.ErrWorkflowNotFound)
		}

		return nil, persistence.NewWorkflowError("GetByID", workflowID, fmt.Errorf("failed to read workflow file: %w", err))
	}

	var workflow models.Workflow
	if err := json.Unmarshal(data, &workflow); err != nil {
		return nil, persistence.NewWorkflowError("GetByID", workflowID, fmt.Errorf("failed to unmarshal workflow: %w", err))
	}

	return &workflow, nil
}

func (r *WorkflowRepository) loadAll() ([]*models.Workflow, error) {
	// fs.Glob on a non-existent directory returns an empty slice with no error,
	// so a fresh store lists as empty.
	jsonFiles, err := fs.Glob(os.DirFS(r.dir()), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list workflow files: %w", err)
	}

	workflows := make([]*models.Workflow, 0, len(jsonFiles))

	for _, name := range jsonFiles {
		workflow, err := r.load(strings.TrimSuffix(name, ".json"))
		if err != nil {
			return nil, err
		}

		workflows = append(workflows, workflow)
	}

	return workflows, nil
}

func (r *WorkflowRepository) nameTaken(_ context.Context, workflow *models.Workflow) (bool, error) {
	workflows, err := r.loadAll()
	if err != nil {
		return false, err
	}

	for _, existing := range workflows {
		if existing.ID == workflow.ID {
			continue
		}

		if existing.OwnerID == workflow.OwnerID && strings.EqualFold(existing.Name, workflow.Name) {
			return true, nil
		}
	}

	return false, nil
}
