package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/hearth-home/hearth-backend-go/internal/entities"
	"github.com/hearth-home/hearth-backend-go/internal/integrations"
	apperrors "github.com/hearth-home/hearth-backend-go/pkg/errors"
)

// entityStateRow mirrors the entity_states table
type entityStateRow struct {
	ID            string    `db:"id"`
	IntegrationID string    `db:"integration_id"`
	Name          string    `db:"name"`
	Type          string    `db:"type"`
	Value         string    `db:"value"`
	Unit          string    `db:"unit"`
	Icon          string    `db:"icon"`
	Available     bool      `db:"available"`
	Attributes    string    `db:"attributes"`
	UpdatedAt     time.Time `db:"updated_at"`
}

// EntityStateRepository persists the latest snapshot of every entity
type EntityStateRepository struct {
	db *sqlx.DB
}

// NewEntityStateRepository creates the entity state repository
func NewEntityStateRepository(db *sqlx.DB) *EntityStateRepository {
	return &EntityStateRepository{db: db}
}

// Upsert writes the latest state for one entity
func (r *EntityStateRepository) Upsert(ctx context.Context, state entities.State) error {
	value, err := json.Marshal(state.Value)
	if err != nil {
		return err
	}
	attrs, err := json.Marshal(state.Attributes)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO entity_states (id, integration_id, name, type, value, unit, icon, available, attributes, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			type = excluded.type,
			value = excluded.value,
			unit = excluded.unit,
			icon = excluded.icon,
			available = excluded.available,
			attributes = excluded.attributes,
			updated_at = excluded.updated_at`,
		state.ID, state.IntegrationID, state.Name, string(state.Type),
		string(value), state.Unit, state.Icon, state.Available,
		string(attrs), state.UpdatedAt,
	)
	return err
}

// Get loads one persisted entity state
func (r *EntityStateRepository) Get(ctx context.Context, id string) (*entities.State, error) {
	var row entityStateRow
	err := r.db.GetContext(ctx, &row, `SELECT * FROM entity_states WHERE id = ?`, id)
	if err == sql.ErrNoRows {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return row.toState()
}

// GetAll loads all persisted entity states, used to warm the registry at
// startup so the API serves last known values before the first refresh.
func (r *EntityStateRepository) GetAll(ctx context.Context) ([]entities.State, error) {
	var rows []entityStateRow
	if err := r.db.SelectContext(ctx, &rows, `SELECT * FROM entity_states ORDER BY id`); err != nil {
		return nil, err
	}

	states := make([]entities.State, 0, len(rows))
	for _, row := range rows {
		state, err := row.toState()
		if err != nil {
			return nil, err
		}
		states = append(states, *state)
	}
	return states, nil
}

func (row entityStateRow) toState() (*entities.State, error) {
	state := &entities.State{
		ID:            row.ID,
		IntegrationID: row.IntegrationID,
		Name:          row.Name,
		Type:          entities.Type(row.Type),
		Unit:          row.Unit,
		Icon:          row.Icon,
		Available:     row.Available,
		UpdatedAt:     row.UpdatedAt,
	}
	if err := json.Unmarshal([]byte(row.Value), &state.Value); err != nil {
		return nil, err
	}
	if row.Attributes != "" && row.Attributes != "null" {
		if err := json.Unmarshal([]byte(row.Attributes), &state.Attributes); err != nil {
			return nil, err
		}
	}
	return state, nil
}

// PersistSink writes entity changes through to sqlite; implements
// entities.Sink.
type PersistSink struct {
	repo   *EntityStateRepository
	logger *logrus.Logger
}

// NewPersistSink creates the persistence sink
func NewPersistSink(repo *EntityStateRepository, logger *logrus.Logger) *PersistSink {
	return &PersistSink{repo: repo, logger: logger}
}

// OnEntityUpdate implements entities.Sink
func (s *PersistSink) OnEntityUpdate(state entities.State) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.repo.Upsert(ctx, state); err != nil {
		s.logger.WithError(err).WithField("entity_id", state.ID).Warn("Failed to persist entity state")
	}
}

// RefreshLogRepository appends refresh outcomes; implements
// integrations.RefreshRecorder.
type RefreshLogRepository struct {
	db *sqlx.DB
}

// NewRefreshLogRepository creates the refresh log repository
func NewRefreshLogRepository(db *sqlx.DB) *RefreshLogRepository {
	return &RefreshLogRepository{db: db}
}

// RecordRefresh implements integrations.RefreshRecorder
func (r *RefreshLogRepository) RecordRefresh(ctx context.Context, record integrations.RefreshRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO refresh_log (integration_id, success, duration_ms, error, at)
		VALUES (?, ?, ?, ?, ?)`,
		record.IntegrationID, record.Success, record.Duration.Milliseconds(),
		record.Error, record.At,
	)
	return err
}

// CountByIntegration returns the number of logged refreshes per integration
func (r *RefreshLogRepository) CountByIntegration(ctx context.Context, integrationID string) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM refresh_log WHERE integration_id = ?`, integrationID)
	return count, err
}

// Prune deletes refresh log rows older than cutoff
func (r *RefreshLogRepository) Prune(cutoff time.Time) (int64, error) {
	res, err := r.db.Exec(`DELETE FROM refresh_log WHERE at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
