package postgresql

// migrations returns the ordered schema migrations for the PostgreSQL backend.
func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE IF NOT EXISTS workflows (
				id TEXT PRIMARY KEY,
				group_id TEXT NOT NULL,
				organization_id TEXT NOT NULL,
				name TEXT NOT NULL,
				status TEXT NOT NULL,
				version INTEGER NOT NULL,
				nodes JSONB NOT NULL DEFAULT '[]',
				edges JSONB NOT NULL DEFAULT '[]',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				published_at TIMESTAMP WITH TIME ZONE,
				archived_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX IF NOT EXISTS workflows_group_idx
				ON workflows (group_id);

			CREATE INDEX IF NOT EXISTS workflows_organization_idx
				ON workflows (organization_id, status);

			CREATE UNIQUE INDEX IF NOT EXISTS workflows_one_published_per_group
				ON workflows (group_id) WHERE status = 'published';

			CREATE UNIQUE INDEX IF NOT EXISTS workflows_one_draft_per_group
				ON workflows (group_id) WHERE status = 'draft';

			CREATE TABLE IF NOT EXISTS runs (
				id TEXT PRIMARY KEY,
				organization_id TEXT NOT NULL,
				workflow_id TEXT NOT NULL REFERENCES workflows (id),
				workflow_group_id TEXT NOT NULL,
				workflow_version INTEGER NOT NULL,
				subject_id TEXT NOT NULL,
				current_node_id TEXT,
				state TEXT NOT NULL,
				triggered_by TEXT NOT NULL,
				resume_at TIMESTAMP WITH TIME ZONE,
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				completed_at TIMESTAMP WITH TIME ZONE,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE UNIQUE INDEX IF NOT EXISTS runs_one_active_per_subject
				ON runs (workflow_id, subject_id)
				WHERE state IN ('running', 'suspended');

			CREATE INDEX IF NOT EXISTS runs_due_idx
				ON runs (resume_at) WHERE state = 'suspended';

			CREATE INDEX IF NOT EXISTS runs_subject_idx
				ON runs (organization_id, subject_id);

			CREATE INDEX IF NOT EXISTS runs_workflow_idx
				ON runs (workflow_id);

			CREATE TABLE IF NOT EXISTS node_execution_log (
				id TEXT PRIMARY KEY,
				run_id TEXT NOT NULL REFERENCES runs (id) ON DELETE CASCADE,
				node_id TEXT NOT NULL,
				attempt INTEGER NOT NULL,
				outcome TEXT NOT NULL,
				error TEXT NOT NULL DEFAULT '',
				executed_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX IF NOT EXISTS node_execution_log_run_idx
				ON node_execution_log (run_id, node_id);

			CREATE INDEX IF NOT EXISTS node_execution_log_executed_idx
				ON node_execution_log (executed_at);
		`,
	}
}
