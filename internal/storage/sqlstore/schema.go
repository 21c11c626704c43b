package sqlstore

var schemaMySQL = []string{
	`CREATE TABLE IF NOT EXISTS assemblies (
		id           VARCHAR(36)  NOT NULL PRIMARY KEY,
		mark         VARCHAR(128) NOT NULL,
		project_ref  VARCHAR(128) NOT NULL DEFAULT '',
		current_step VARCHAR(32)  NOT NULL DEFAULT 'NotStarted',
		created_at   DATETIME(6)  NOT NULL
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS progress_states (
		id                         VARCHAR(36)  NOT NULL PRIMARY KEY,
		assembly_id                VARCHAR(36)  NOT NULL,
		current_step               VARCHAR(32)  NOT NULL,
		previous_step              VARCHAR(32)  NULL,
		current_step_started_at    DATETIME(6)  NOT NULL,
		current_step_completed_at  DATETIME(6)  NULL,
		updated_by                 VARCHAR(128) NOT NULL DEFAULT '',
		updated_at                 DATETIME(6)  NOT NULL,
		is_coating_outsourced      BOOLEAN      NOT NULL DEFAULT FALSE,
		coating_sent_at            DATETIME(6)  NULL,
		coating_expected_return_at DATETIME(6)  NULL,
		coating_actual_return_at   DATETIME(6)  NULL,
		notes                      TEXT         NOT NULL,
		version                    BIGINT       NOT NULL DEFAULT 1,
		UNIQUE KEY uq_progress_assembly (assembly_id),
		KEY idx_progress_step (current_step)
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS quality_checks (
		id                 VARCHAR(36)  NOT NULL PRIMARY KEY,
		progress_id        VARCHAR(36)  NOT NULL,
		for_step           VARCHAR(32)  NOT NULL,
		check_type         VARCHAR(32)  NOT NULL,
		status             VARCHAR(32)  NOT NULL,
		is_required        BOOLEAN      NOT NULL DEFAULT TRUE,
		checked_by         VARCHAR(128) NOT NULL DEFAULT '',
		checked_at         DATETIME(6)  NULL,
		results            TEXT         NOT NULL,
		defects_found      TEXT         NOT NULL,
		corrective_actions TEXT         NOT NULL,
		created_at         DATETIME(6)  NOT NULL,
		version            BIGINT       NOT NULL DEFAULT 1,
		KEY idx_checks_progress_step (progress_id, for_step)
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS ncrs (
		id                     VARCHAR(36)  NOT NULL PRIMARY KEY,
		ncr_number             VARCHAR(32)  NOT NULL,
		ncr_year               INT          NOT NULL,
		ncr_seq                INT          NOT NULL,
		assembly_id            VARCHAR(36)  NOT NULL,
		quality_check_id       VARCHAR(36)  NULL,
		step                   VARCHAR(32)  NOT NULL,
		description            TEXT         NOT NULL,
		severity               VARCHAR(16)  NOT NULL,
		status                 VARCHAR(32)  NOT NULL,
		discovered_by          VARCHAR(128) NOT NULL,
		discovered_at          DATETIME(6)  NOT NULL,
		root_cause             TEXT         NOT NULL,
		immediate_action       TEXT         NOT NULL,
		preventive_action      TEXT         NOT NULL,
		assigned_to            VARCHAR(128) NOT NULL DEFAULT '',
		target_date            DATETIME(6)  NULL,
		actual_resolution_date DATETIME(6)  NULL,
		updated_by             VARCHAR(128) NOT NULL DEFAULT '',
		updated_at             DATETIME(6)  NOT NULL,
		version                BIGINT       NOT NULL DEFAULT 1,
		UNIQUE KEY uq_ncr_number (ncr_number),
		KEY idx_ncr_assembly (assembly_id),
		KEY idx_ncr_status (status)
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS ncr_sequences (
		year     INT NOT NULL PRIMARY KEY,
		last_seq INT NOT NULL
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS step_history (
		id           VARCHAR(36)  NOT NULL PRIMARY KEY,
		progress_id  VARCHAR(36)  NOT NULL,
		assembly_id  VARCHAR(36)  NOT NULL,
		step         VARCHAR(32)  NOT NULL,
		started_at   DATETIME(6)  NOT NULL,
		completed_at DATETIME(6)  NOT NULL,
		actor        VARCHAR(128) NOT NULL,
		duration_ms  BIGINT       NOT NULL,
		notes        TEXT         NOT NULL,
		KEY idx_history_assembly (assembly_id)
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS coating_records (
		id                 VARCHAR(36)  NOT NULL PRIMARY KEY,
		assembly_id        VARCHAR(36)  NOT NULL,
		progress_id        VARCHAR(36)  NOT NULL,
		supplier_id        VARCHAR(128) NOT NULL,
		sent_at            DATETIME(6)  NOT NULL,
		expected_return_at DATETIME(6)  NOT NULL,
		actual_return_at   DATETIME(6)  NULL,
		status             VARCHAR(16)  NOT NULL,
		sent_by            VARCHAR(128) NOT NULL,
		returned_by        VARCHAR(128) NOT NULL DEFAULT '',
		notes              TEXT         NOT NULL,
		KEY idx_coating_assembly (assembly_id, status)
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS outbox (
		id         BIGINT       NOT NULL AUTO_INCREMENT PRIMARY KEY,
		topic      VARCHAR(255) NOT NULL,
		msg_key    VARCHAR(64)  NOT NULL,
		event_type VARCHAR(64)  NOT NULL,
		payload    LONGBLOB     NOT NULL,
		retries    INT          NOT NULL DEFAULT 0,
		created_at DATETIME(6)  NOT NULL,
		sent_at    DATETIME(6)  NULL,
		KEY idx_outbox_pending (sent_at, id)
	) ENGINE=InnoDB`,
}

var schemaPostgres = []string{
	`CREATE TABLE IF NOT EXISTS assemblies (
		id           TEXT PRIMARY KEY,
		mark         TEXT NOT NULL,
		project_ref  TEXT NOT NULL DEFAULT '',
		current_step TEXT NOT NULL DEFAULT 'NotStarted',
		created_at   TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS progress_states (
		id                         TEXT PRIMARY KEY,
		assembly_id                TEXT NOT NULL UNIQUE,
		current_step               TEXT NOT NULL,
		previous_step              TEXT,
		current_step_started_at    TIMESTAMPTZ NOT NULL,
		current_step_completed_at  TIMESTAMPTZ,
		updated_by                 TEXT NOT NULL DEFAULT '',
		updated_at                 TIMESTAMPTZ NOT NULL,
		is_coating_outsourced      BOOLEAN NOT NULL DEFAULT FALSE,
		coating_sent_at            TIMESTAMPTZ,
		coating_expected_return_at TIMESTAMPTZ,
		coating_actual_return_at   TIMESTAMPTZ,
		notes                      TEXT NOT NULL DEFAULT '',
		version                    BIGINT NOT NULL DEFAULT 1
	)`,
	`CREATE INDEX IF NOT EXISTS idx_progress_step ON progress_states (current_step)`,
	`CREATE TABLE IF NOT EXISTS quality_checks (
		id                 TEXT PRIMARY KEY,
		progress_id        TEXT NOT NULL,
		for_step           TEXT NOT NULL,
		check_type         TEXT NOT NULL,
		status             TEXT NOT NULL,
		is_required        BOOLEAN NOT NULL DEFAULT TRUE,
		checked_by         TEXT NOT NULL DEFAULT '',
		checked_at         TIMESTAMPTZ,
		results            TEXT NOT NULL DEFAULT '',
		defects_found      TEXT NOT NULL DEFAULT '',
		corrective_actions TEXT NOT NULL DEFAULT '',
		created_at         TIMESTAMPTZ NOT NULL,
		version            BIGINT NOT NULL DEFAULT 1
	)`,
	`CREATE INDEX IF NOT EXISTS idx_checks_progress_step ON quality_checks (progress_id, for_step)`,
	`CREATE TABLE IF NOT EXISTS ncrs (
		id                     TEXT PRIMARY KEY,
		ncr_number             TEXT NOT NULL UNIQUE,
		ncr_year               INTEGER NOT NULL,
		ncr_seq                INTEGER NOT NULL,
		assembly_id            TEXT NOT NULL,
		quality_check_id       TEXT,
		step                   TEXT NOT NULL,
		description            TEXT NOT NULL,
		severity               TEXT NOT NULL,
		status                 TEXT NOT NULL,
		discovered_by          TEXT NOT NULL,
		discovered_at          TIMESTAMPTZ NOT NULL,
		root_cause             TEXT NOT NULL DEFAULT '',
		immediate_action       TEXT NOT NULL DEFAULT '',
		preventive_action      TEXT NOT NULL DEFAULT '',
		assigned_to            TEXT NOT NULL DEFAULT '',
		target_date            TIMESTAMPTZ,
		actual_resolution_date TIMESTAMPTZ,
		updated_by             TEXT NOT NULL DEFAULT '',
		updated_at             TIMESTAMPTZ NOT NULL,
		version                BIGINT NOT NULL DEFAULT 1
	)`,
	`CREATE INDEX IF NOT EXISTS idx_ncr_assembly ON ncrs (assembly_id)`,
	`CREATE INDEX IF NOT EXISTS idx_ncr_status ON ncrs (status)`,
	`CREATE TABLE IF NOT EXISTS ncr_sequences (
		year     INTEGER PRIMARY KEY,
		last_seq INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS step_history (
		id           TEXT PRIMARY KEY,
		progress_id  TEXT NOT NULL,
		assembly_id  TEXT NOT NULL,
		step         TEXT NOT NULL,
		started_at   TIMESTAMPTZ NOT NULL,
		completed_at TIMESTAMPTZ NOT NULL,
		actor        TEXT NOT NULL,
		duration_ms  BIGINT NOT NULL,
		notes        TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_history_assembly ON step_history (assembly_id)`,
	`CREATE TABLE IF NOT EXISTS coating_records (
		id                 TEXT PRIMARY KEY,
		assembly_id        TEXT NOT NULL,
		progress_id        TEXT NOT NULL,
		supplier_id        TEXT NOT NULL,
		sent_at            TIMESTAMPTZ NOT NULL,
		expected_return_at TIMESTAMPTZ NOT NULL,
		actual_return_at   TIMESTAMPTZ,
		status             TEXT NOT NULL,
		sent_by            TEXT NOT NULL,
		returned_by        TEXT NOT NULL DEFAULT '',
		notes              TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_coating_assembly ON coating_records (assembly_id, status)`,
	`CREATE TABLE IF NOT EXISTS outbox (
		id         BIGSERIAL PRIMARY KEY,
		topic      TEXT NOT NULL,
		msg_key    TEXT NOT NULL,
		event_type TEXT NOT NULL,
		payload    BYTEA NOT NULL,
		retries    INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL,
		sent_at    TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_outbox_pending ON outbox (sent_at, id)`,
}

var schemaSQLite = []string{
	`CREATE TABLE IF NOT EXISTS assemblies (
		id           TEXT PRIMARY KEY,
		mark         TEXT NOT NULL,
		project_ref  TEXT NOT NULL DEFAULT '',
		current_step TEXT NOT NULL DEFAULT 'NotStarted',
		created_at   DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS progress_states (
		id                         TEXT PRIMARY KEY,
		assembly_id                TEXT NOT NULL UNIQUE,
		current_step               TEXT NOT NULL,
		previous_step              TEXT,
		current_step_started_at    DATETIME NOT NULL,
		current_step_completed_at  DATETIME,
		updated_by                 TEXT NOT NULL DEFAULT '',
		updated_at                 DATETIME NOT NULL,
		is_coating_outsourced      INTEGER NOT NULL DEFAULT 0,
		coating_sent_at            DATETIME,
		coating_expected_return_at DATETIME,
		coating_actual_return_at   DATETIME,
		notes                      TEXT NOT NULL DEFAULT '',
		version                    INTEGER NOT NULL DEFAULT 1
	)`,
	`CREATE INDEX IF NOT EXISTS idx_progress_step ON progress_states (current_step)`,
	`CREATE TABLE IF NOT EXISTS quality_checks (
		id                 TEXT PRIMARY KEY,
		progress_id        TEXT NOT NULL,
		for_step           TEXT NOT NULL,
		check_type         TEXT NOT NULL,
		status             TEXT NOT NULL,
		is_required        INTEGER NOT NULL DEFAULT 1,
		checked_by         TEXT NOT NULL DEFAULT '',
		checked_at         DATETIME,
		results            TEXT NOT NULL DEFAULT '',
		defects_found      TEXT NOT NULL DEFAULT '',
		corrective_actions TEXT NOT NULL DEFAULT '',
		created_at         DATETIME NOT NULL,
		version            INTEGER NOT NULL DEFAULT 1
	)`,
	`CREATE INDEX IF NOT EXISTS idx_checks_progress_step ON quality_checks (progress_id, for_step)`,
	`CREATE TABLE IF NOT EXISTS ncrs (
		id                     TEXT PRIMARY KEY,
		ncr_number             TEXT NOT NULL UNIQUE,
		ncr_year               INTEGER NOT NULL,
		ncr_seq                INTEGER NOT NULL,
		assembly_id            TEXT NOT NULL,
		quality_check_id       TEXT,
		step                   TEXT NOT NULL,
		description            TEXT NOT NULL,
		severity               TEXT NOT NULL,
		status                 TEXT NOT NULL,
		discovered_by          TEXT NOT NULL,
		discovered_at          DATETIME NOT NULL,
		root_cause             TEXT NOT NULL DEFAULT '',
		immediate_action       TEXT NOT NULL DEFAULT '',
		preventive_action      TEXT NOT NULL DEFAULT '',
		assigned_to            TEXT NOT NULL DEFAULT '',
		target_date            DATETIME,
		actual_resolution_date DATETIME,
		updated_by             TEXT NOT NULL DEFAULT '',
		updated_at             DATETIME NOT NULL,
		version                INTEGER NOT NULL DEFAULT 1
	)`,
	`CREATE INDEX IF NOT EXISTS idx_ncr_assembly ON ncrs (assembly_id)`,
	`CREATE INDEX IF NOT EXISTS idx_ncr_status ON ncrs (status)`,
	`CREATE TABLE IF NOT EXISTS ncr_sequences (
		year     INTEGER PRIMARY KEY,
		last_seq INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS step_history (
		id           TEXT PRIMARY KEY,
		progress_id  TEXT NOT NULL,
		assembly_id  TEXT NOT NULL,
		step         TEXT NOT NULL,
		started_at   DATETIME NOT NULL,
		completed_at DATETIME NOT NULL,
		actor        TEXT NOT NULL,
		duration_ms  INTEGER NOT NULL,
		notes        TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_history_assembly ON step_history (assembly_id)`,
	`CREATE TABLE IF NOT EXISTS coating_records (
		id                 TEXT PRIMARY KEY,
		assembly_id        TEXT NOT NULL,
		progress_id        TEXT NOT NULL,
		supplier_id        TEXT NOT NULL,
		sent_at            DATETIME NOT NULL,
		expected_return_at DATETIME NOT NULL,
		actual_return_at   DATETIME,
		status             TEXT NOT NULL,
		sent_by            TEXT NOT NULL,
		returned_by        TEXT NOT NULL DEFAULT '',
		notes              TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_coating_assembly ON coating_records (assembly_id, status)`,
	`CREATE TABLE IF NOT EXISTS outbox (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		topic      TEXT NOT NULL,
		msg_key    TEXT NOT NULL,
		event_type TEXT NOT NULL,
		payload    BLOB NOT NULL,
		retries    INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		sent_at    DATETIME
	)`,
	`CREATE INDEX IF NOT EXISTS idx_outbox_pending ON outbox (sent_at, id)`,
}
