package database

import (
	"errors"

	"gorm.io/gorm"

	"github.com/tabml/automl-backend/internal/apperr"
	"github.com/tabml/automl-backend/internal/models"
)

// DatasetRepository provides persistence for dataset records.
type DatasetRepository struct {
	db *Database
}

// NewDatasetRepository creates a dataset repository.
func NewDatasetRepository(db *Database) *DatasetRepository {
	return &DatasetRepository{db: db}
}

// Create inserts a dataset record.
func (r *DatasetRepository) Create(ds *models.Dataset) error {
	return r.db.Create(ds).Error
}

// GetByID retrieves a dataset by id.
func (r *DatasetRepository) GetByID(id string) (*models.Dataset, error) {
	var ds models.Dataset
	err := r.db.First(&ds, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("dataset", id)
	}
	if err != nil {
		return nil, err
	}
	return &ds, nil
}

// List retrieves datasets newest-first with pagination.
func (r *DatasetRepository) List(limit, skip int) ([]*models.Dataset, int64, error) {
	var (
		out   []*models.Dataset
		total int64
	)
	q := r.db.Model(&models.Dataset{})
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := q.Order("uploaded_at DESC").Limit(limit).Offset(skip).Find(&out).Error
	return out, total, err
}

// Delete removes a dataset record.
func (r *DatasetRepository) Delete(id string) error {
	res := r.db.Delete(&models.Dataset{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("dataset", id)
	}
	return nil
}

// ProjectRepository provides persistence for project records.
type ProjectRepository struct {
	db *Database
}

// NewProjectRepository creates a project repository.
func NewProjectRepository(db *Database) *ProjectRepository {
	return &ProjectRepository{db: db}
}

// Create inserts a project record.
func (r *ProjectRepository) Create(p *models.Project) error {
	return r.db.Create(p).Error
}

// GetByID retrieves a project by id.
func (r *ProjectRepository) GetByID(id string) (*models.Project, error) {
	var p models.Project
	err := r.db.First(&p, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("project", id)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// List retrieves projects newest-first, optionally filtered by status.
func (r *ProjectRepository) List(status string, limit, skip int) ([]*models.Project, int64, error) {
	var (
		out   []*models.Project
		total int64
	)
	q := r.db.Model(&models.Project{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := q.Order("created_at DESC").Limit(limit).Offset(skip).Find(&out).Error
	return out, total, err
}

// Update persists the full project record (last writer wins).
func (r *ProjectRepository) Update(p *models.Project) error {
	return r.db.Save(p).Error
}

// UpdateFields sets the given columns on a project without reading it back.
func (r *ProjectRepository) UpdateFields(id string, fields map[string]interface{}) error {
	res := r.db.Model(&models.Project{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("project", id)
	}
	return nil
}

// Delete removes a project record.
func (r *ProjectRepository) Delete(id string) error {
	res := r.db.Delete(&models.Project{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("project", id)
	}
	return nil
}

// StatusCount is one row of the project summary aggregation.
type StatusCount struct {
	Key   string
	Count int64
}

// CountByStatus groups projects by status.
func (r *ProjectRepository) CountByStatus() ([]StatusCount, error) {
	var rows []StatusCount
	err := r.db.Model(&models.Project{}).
		Select("status AS key, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	return rows, err
}

// CountByTaskType groups projects with a known task type by task type.
func (r *ProjectRepository) CountByTaskType() ([]StatusCount, error) {
	var rows []StatusCount
	err := r.db.Model(&models.Project{}).
		Select("task_type AS key, COUNT(*) AS count").
		Where("task_type <> ''").
		Group("task_type").
		Scan(&rows).Error
	return rows, err
}

// Repositories aggregates all repository instances.
type Repositories struct {
	Dataset *DatasetRepository
	Project *ProjectRepository
}

// NewRepositories creates all repository instances.
func NewRepositories(db *Database) *Repositories {
	return &Repositories{
		Dataset: NewDatasetRepository(db),
		Project: NewProjectRepository(db),
	}
}
