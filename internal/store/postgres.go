package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/trainboard/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

var _ Store = (*PostgresStore)(nil)

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- API Keys ---

const apiKeyColumns = `id, user_id, name, key_hash, key_prefix, last_used_at, deleted_at, created_at`

func (s *PostgresStore) GetAPIKeysByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE key_prefix = $1 AND deleted_at IS NULL`, prefix)
	if err != nil {
		return nil, fmt.Errorf("get api keys by prefix: %w", err)
	}
	return collectAPIKeys(rows)
}

func (s *PostgresStore) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET last_used_at = NOW(), updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("update api key last used: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO api_keys (id, user_id, name, key_hash, key_prefix, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $6)`,
		key.ID, key.UserID, key.Name, key.KeyHash, key.KeyPrefix, key.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAPIKeys(ctx context.Context, userID string) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+apiKeyColumns+` FROM api_keys
		 WHERE user_id = $1 AND deleted_at IS NULL ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	return collectAPIKeys(rows)
}

func (s *PostgresStore) RevokeAPIKey(ctx context.Context, id uuid.UUID, userID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET deleted_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND user_id = $2 AND deleted_at IS NULL`, id, userID)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func collectAPIKeys(rows pgx.Rows) ([]*models.APIKey, error) {
	defer rows.Close()

	keys := []*models.APIKey{}
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.UserID, &k.Name, &k.KeyHash, &k.KeyPrefix,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

// --- Datasets ---

const datasetColumns = `id, user_id, name, file_type, file_size, data_preview, column_count, row_count, created_at`

func (s *PostgresStore) CreateDataset(ctx context.Context, ds *models.Dataset, data DatasetData) error {
	preview := ds.DataPreview
	if preview == nil {
		preview = []map[string]any{}
	}
	rows := data.Rows
	if rows == nil {
		rows = []map[string]any{}
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO datasets (id, user_id, name, file_type, file_size, data_preview, full_data, fingerprint, column_count, row_count, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		ds.ID, ds.UserID, ds.Name, ds.FileType, ds.FileSize, preview, rows, data.Fingerprint,
		ds.ColumnCount, ds.RowCount, ds.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create dataset: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListDatasets(ctx context.Context, userID string) ([]models.Dataset, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+datasetColumns+` FROM datasets WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list datasets: %w", err)
	}
	defer rows.Close()

	datasets := []models.Dataset{}
	for rows.Next() {
		d, err := scanDataset(rows)
		if err != nil {
			return nil, err
		}
		datasets = append(datasets, *d)
	}
	return datasets, rows.Err()
}

func (s *PostgresStore) GetDataset(ctx context.Context, id uuid.UUID, userID string) (*models.Dataset, error) {
	d, err := scanDataset(s.pool.QueryRow(ctx,
		`SELECT `+datasetColumns+` FROM datasets WHERE id = $1 AND user_id = $2`, id, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get dataset: %w", err)
	}
	return d, nil
}

// GetDatasetRows returns up to limit parsed rows of a dataset. A limit of
// zero or less returns every row.
func (s *PostgresStore) GetDatasetRows(ctx context.Context, id uuid.UUID, userID string, limit int) ([]map[string]any, error) {
	var rows []map[string]any
	err := s.pool.QueryRow(ctx,
		`SELECT full_data FROM datasets WHERE id = $1 AND user_id = $2`, id, userID).Scan(&rows)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get dataset rows: %w", err)
	}
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

func scanDataset(row pgx.Row) (*models.Dataset, error) {
	var d models.Dataset
	if err := row.Scan(&d.ID, &d.UserID, &d.Name, &d.FileType, &d.FileSize, &d.DataPreview,
		&d.ColumnCount, &d.RowCount, &d.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan dataset: %w", err)
	}
	return &d, nil
}

// --- Models ---

const modelColumns = `id, user_id, name, dataset_id, status, model_type, custom_prompt, error_message, created_at, completed_at`

func (s *PostgresStore) CreateModel(ctx context.Context, m *models.Model, trainingData []map[string]any) error {
	if trainingData == nil {
		trainingData = []map[string]any{}
	}
	if len(trainingData) > MaxTrainingRows {
		trainingData = trainingData[:MaxTrainingRows]
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO model_trainings (id, user_id, name, dataset_id, status, model_type, custom_prompt, training_data, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)`,
		m.ID, m.UserID, m.Name, m.DatasetID, m.Status, m.ModelType, m.CustomPrompt, trainingData, m.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create model: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListModels(ctx context.Context, userID string) ([]models.Model, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+modelColumns+` FROM model_trainings WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	return collectModels(rows)
}

// ListUnfinishedModels returns every model, across users, still pending or
// training.
func (s *PostgresStore) ListUnfinishedModels(ctx context.Context) ([]models.Model, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+modelColumns+` FROM model_trainings
		 WHERE status IN ('pending', 'training') ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list unfinished models: %w", err)
	}
	return collectModels(rows)
}

func (s *PostgresStore) GetModel(ctx context.Context, id uuid.UUID, userID string) (*models.Model, error) {
	m, err := scanModel(s.pool.QueryRow(ctx,
		`SELECT `+modelColumns+` FROM model_trainings WHERE id = $1 AND user_id = $2`, id, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get model: %w", err)
	}
	return m, nil
}

func (s *PostgresStore) GetTrainingData(ctx context.Context, id uuid.UUID) ([]map[string]any, error) {
	var rows []map[string]any
	err := s.pool.QueryRow(ctx,
		`SELECT training_data FROM model_trainings WHERE id = $1`, id).Scan(&rows)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get training data: %w", err)
	}
	return rows, nil
}

// UpdateModelStatus moves a model one step along
// pending -> training -> {completed | failed}. Terminal states stamp
// completed_at. Any other move returns ErrInvalidTransition.
func (s *PostgresStore) UpdateModelStatus(ctx context.Context, id uuid.UUID, status models.ModelStatus, opts ...ModelUpdateOption) error {
	params := ResolveModelUpdate(opts...)

	var current models.ModelStatus
	err := s.pool.QueryRow(ctx, `SELECT status FROM model_trainings WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get model status: %w", err)
	}

	if !current.CanTransitionTo(status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, status)
	}

	now := time.Now().UTC()
	var completedAt *time.Time
	if status.Terminal() {
		completedAt = &now
	}

	// Guarded on the status read above so a concurrent move is not overwritten.
	tag, err := s.pool.Exec(ctx,
		`UPDATE model_trainings
		 SET status = $3, updated_at = $4, completed_at = COALESCE($5, completed_at),
		     error_message = COALESCE($6, error_message)
		 WHERE id = $1 AND status = $2`,
		id, current, status, now, completedAt, params.ErrorMessage)
	if err != nil {
		return fmt.Errorf("update model status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s changed concurrently", ErrInvalidTransition, current)
	}
	return nil
}

func collectModels(rows pgx.Rows) ([]models.Model, error) {
	defer rows.Close()

	out := []models.Model{}
	for rows.Next() {
		m, err := scanModel(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func scanModel(row pgx.Row) (*models.Model, error) {
	var m models.Model
	if err := row.Scan(&m.ID, &m.UserID, &m.Name, &m.DatasetID, &m.Status, &m.ModelType,
		&m.CustomPrompt, &m.ErrorMessage, &m.CreatedAt, &m.CompletedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan model: %w", err)
	}
	return &m, nil
}

// --- Deployments ---

const deploymentColumns = `id, user_id, name, training_id, api_endpoint, status, usage_count, created_at`

// CreateDeployment inserts a deployment. A second deployment for the same
// model returns ErrDuplicateKey.
func (s *PostgresStore) CreateDeployment(ctx context.Context, d *models.Deployment) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO deployed_models (id, user_id, name, training_id, api_endpoint, status, usage_count, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)`,
		d.ID, d.UserID, d.Name, d.TrainingID, d.APIEndpoint, d.Status, d.UsageCount, d.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create deployment: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListDeployments(ctx context.Context, userID string) ([]models.Deployment, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+deploymentColumns+` FROM deployed_models WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list deployments: %w", err)
	}
	defer rows.Close()

	out := []models.Deployment{}
	for rows.Next() {
		var d models.Deployment
		if err := rows.Scan(&d.ID, &d.UserID, &d.Name, &d.TrainingID, &d.APIEndpoint,
			&d.Status, &d.UsageCount, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan deployment: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// IncrementUsage bumps the usage counter of the active deployment of
// modelID and returns the new count. ErrNotFound means the model has no
// active deployment.
func (s *PostgresStore) IncrementUsage(ctx context.Context, modelID uuid.UUID, userID string) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx,
		`UPDATE deployed_models SET usage_count = usage_count + 1, updated_at = NOW()
		 WHERE training_id = $1 AND user_id = $2 AND status = 'active'
		 RETURNING usage_count`, modelID, userID).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("increment usage: %w", err)
	}
	return count, nil
}

// --- Stats ---

func (s *PostgresStore) Stats(ctx context.Context, userID string) (models.Stats, error) {
	var st models.Stats
	err := s.pool.QueryRow(ctx,
		`SELECT
		   (SELECT COUNT(*) FROM datasets WHERE user_id = $1),
		   (SELECT COUNT(*) FROM model_trainings WHERE user_id = $1),
		   (SELECT COUNT(*) FROM deployed_models WHERE user_id = $1),
		   (SELECT COALESCE(SUM(usage_count), 0)::BIGINT FROM deployed_models WHERE user_id = $1)`,
		userID).Scan(&st.Datasets, &st.Models, &st.Deployed, &st.APICalls)
	if err != nil {
		return models.Stats{}, fmt.Errorf("dashboard stats: %w", err)
	}
	return st, nil
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}
