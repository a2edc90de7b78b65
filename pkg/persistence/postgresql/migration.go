package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Create workflows table
			CREATE TABLE workflows (
				id VARCHAR(255) PRIMARY KEY,
				owner_id VARCHAR(255) NOT NULL,
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				status VARCHAR(50) NOT NULL CHECK (status IN ('draft', 'active', 'archived')),
				public BOOLEAN NOT NULL DEFAULT FALSE,
				schedule VARCHAR(255),
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				deleted_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_workflows_owner_id ON workflows(owner_id);
			CREATE INDEX idx_workflows_status ON workflows(status);
			CREATE INDEX idx_workflows_created_at ON workflows(created_at);
			CREATE INDEX idx_workflows_deleted_at ON workflows(deleted_at);

			-- Workflow names are unique per owner among non-deleted workflows
			CREATE UNIQUE INDEX uq_workflows_owner_name ON workflows(owner_id, LOWER(name)) WHERE deleted_at IS NULL;

			-- Create workflow_steps table
			CREATE TABLE workflow_steps (
				workflow_id VARCHAR(255) NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
				id VARCHAR(255) NOT NULL,
				step_order INT NOT NULL,
				name VARCHAR(255) NOT NULL,
				action VARCHAR(50) NOT NULL,
				parameters JSONB NOT NULL DEFAULT '{}',
				active BOOLEAN NOT NULL DEFAULT TRUE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				PRIMARY KEY (workflow_id, id)
			);

			CREATE INDEX idx_workflow_steps_workflow_id ON workflow_steps(workflow_id);
			CREATE UNIQUE INDEX uq_workflow_steps_order ON workflow_steps(workflow_id, step_order);

			-- Create workflow_executions table
			CREATE TABLE workflow_executions (
				id VARCHAR(255) PRIMARY KEY,
				workflow_id VARCHAR(255) NOT NULL REFERENCES workflows(id),
				status VARCHAR(50) NOT NULL CHECK (status IN ('PENDING', 'RUNNING', 'COMPLETED', 'FAILED')),
				params JSONB NOT NULL DEFAULT '{}',
				step_results JSONB NOT NULL DEFAULT '{}',
				completed_steps INT NOT NULL DEFAULT 0,
				failed_steps INT NOT NULL DEFAULT 0,
				started_at TIMESTAMP WITH TIME ZONE,
				completed_at TIMESTAMP WITH TIME ZONE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX idx_workflow_executions_workflow_id ON workflow_executions(workflow_id);
			CREATE INDEX idx_workflow_executions_status ON workflow_executions(status);
			CREATE INDEX idx_workflow_executions_created_at ON workflow_executions(created_at);

			-- Create execution_logs table
			CREATE TABLE execution_logs (
				id VARCHAR(255) PRIMARY KEY,
				execution_id VARCHAR(255) NOT NULL,
				step_id VARCHAR(255),
				level VARCHAR(20) NOT NULL,
				message TEXT NOT NULL,
				detail JSONB,
				logged_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX idx_execution_logs_execution_id ON execution_logs(execution_id);
			CREATE INDEX idx_execution_logs_logged_at ON execution_logs(logged_at);
		`,
	}
}
