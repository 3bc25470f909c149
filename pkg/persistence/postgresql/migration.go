package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE action_definitions (
				id BIGSERIAL PRIMARY KEY,
				action_name VARCHAR(255) NOT NULL,
				action_type VARCHAR(50) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				config_json TEXT NOT NULL DEFAULT '{}',
				is_enabled BOOLEAN NOT NULL DEFAULT true,
				is_valid BOOLEAN NOT NULL DEFAULT true,
				created_by BIGINT,
				modified_by BIGINT,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				modified_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			-- names are unique among live rows only, so soft-deleted names can be reused
			CREATE UNIQUE INDEX ux_action_definitions_name ON action_definitions(action_name) WHERE is_valid;
			CREATE INDEX idx_action_definitions_type ON action_definitions(action_type) WHERE is_valid;

			CREATE TABLE action_trigger_mappings (
				id BIGSERIAL PRIMARY KEY,
				action_definition_id BIGINT NOT NULL REFERENCES action_definitions(id),
				trigger_type VARCHAR(50) NOT NULL,
				trigger_source_id BIGINT NOT NULL,
				trigger_event VARCHAR(100) NOT NULL,
				workflow_id BIGINT,
				stage_id BIGINT,
				execution_order INT NOT NULL DEFAULT 0,
				description TEXT NOT NULL DEFAULT '',
				is_enabled BOOLEAN NOT NULL DEFAULT true,
				is_valid BOOLEAN NOT NULL DEFAULT true,
				created_by BIGINT,
				modified_by BIGINT,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				modified_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE UNIQUE INDEX ux_action_trigger_mappings_key
				ON action_trigger_mappings(action_definition_id, trigger_type, trigger_source_id, workflow_id)
				NULLS NOT DISTINCT
				WHERE is_valid;
			CREATE INDEX idx_action_trigger_mappings_trigger
				ON action_trigger_mappings(trigger_source_id, trigger_event)
				WHERE is_valid AND is_enabled;
			CREATE INDEX idx_action_trigger_mappings_definition ON action_trigger_mappings(action_definition_id);
		`,
		2: `
			CREATE TABLE action_executions (
				id BIGSERIAL PRIMARY KEY,
				execution_id VARCHAR(64) NOT NULL UNIQUE,
				action_definition_id BIGINT NOT NULL REFERENCES action_definitions(id),
				action_name VARCHAR(255) NOT NULL DEFAULT '',
				action_type VARCHAR(50) NOT NULL DEFAULT '',
				trigger_source_type VARCHAR(50) NOT NULL DEFAULT '',
				trigger_source_id BIGINT NOT NULL DEFAULT 0,
				trigger_event VARCHAR(100) NOT NULL DEFAULT '',
				context_data JSONB,
				executed_by BIGINT,
				status VARCHAR(20) NOT NULL CHECK (status IN ('Pending', 'Running', 'Success', 'Failed', 'Cancelled')),
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				completed_at TIMESTAMP WITH TIME ZONE,
				duration_ms BIGINT NOT NULL DEFAULT 0,
				result JSONB,
				error_message TEXT NOT NULL DEFAULT '',
				retry_count INT NOT NULL DEFAULT 0,
				retry_of VARCHAR(64),
				is_test BOOLEAN NOT NULL DEFAULT false,
				is_valid BOOLEAN NOT NULL DEFAULT true,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX idx_action_executions_definition ON action_executions(action_definition_id, started_at DESC);
			CREATE INDEX idx_action_executions_status ON action_executions(status) WHERE is_valid;
			CREATE INDEX idx_action_executions_started_at ON action_executions(started_at);
			CREATE INDEX idx_action_executions_retry_of ON action_executions(retry_of) WHERE retry_of IS NOT NULL;
		`,
	}
}
