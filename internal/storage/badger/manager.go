package badger

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tagforge/internal/common"
	"github.com/ternarybob/tagforge/internal/interfaces"
)

// Manager implements the StorageManager interface for Badger
type Manager struct {
	db     *BadgerDB
	recipe interfaces.RecipeStorage
	rule   interfaces.RuleStorage
	log    interfaces.LogStorage
	backup interfaces.BackupStorage
	usage  interfaces.UsageStorage
	job    interfaces.JobStorage
	logger arbor.ILogger
}

// NewManager creates a new Badger storage manager
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (interfaces.StorageManager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	manager := &Manager{
		db:     db,
		recipe: NewRecipeStorage(db, logger),
		rule:   NewRuleStorage(db, logger),
		log:    NewLogStorage(db, logger),
		backup: NewBackupStorage(db, logger),
		usage:  NewUsageStorage(db, logger),
		job:    NewJobStorage(db, logger),
		logger: logger,
	}

	logger.Info().Msg("Badger storage manager initialized")

	return manager, nil
}

// RecipeStorage returns the Recipe storage interface
func (m *Manager) RecipeStorage() interfaces.RecipeStorage {
	return m.recipe
}

// RuleStorage returns the Rule storage interface
func (m *Manager) RuleStorage() interfaces.RuleStorage {
	return m.rule
}

// LogStorage returns the AutomationLog storage interface
func (m *Manager) LogStorage() interfaces.LogStorage {
	return m.log
}

// BackupStorage returns the Backup storage interface
func (m *Manager) BackupStorage() interfaces.BackupStorage {
	return m.backup
}

// UsageStorage returns the Usage storage interface
func (m *Manager) UsageStorage() interfaces.UsageStorage {
	return m.usage
}

// JobStorage returns the BulkJob storage interface
func (m *Manager) JobStorage() interfaces.JobStorage {
	return m.job
}

// DB returns the underlying database connection
func (m *Manager) DB() *BadgerDB {
	return m.db
}

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
