package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"nebulous/internal/apierrors"
	"nebulous/internal/models"
	"nebulous/internal/statemachine"
)

// ContainerRepository is the Store's container-record surface. Partial
// updates are expressed as explicit setters rather than a generic "patch"
// call, matching verification_repository.go's targeted Updates(map...)
// style, so every write site states exactly which columns it touches.
type ContainerRepository struct {
	db *gorm.DB
}

func NewContainerRepository(db *gorm.DB) *ContainerRepository {
	return &ContainerRepository{db: db}
}

func (r *ContainerRepository) Insert(ctx context.Context, c *models.Container) error {
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	if c.Version == 0 {
		c.Version = 1
	}
	if err := r.db.WithContext(ctx).Create(c).Error; err != nil {
		if isUniqueViolation(err) {
			return apierrors.NewConflictError("container", "full_name already exists")
		}
		return err
	}
	return nil
}

// Update performs a full, version-checked save of c. Callers that only
// need to touch a few columns should prefer the Update* setters below,
// which avoid clobbering concurrent writes to other fields.
func (r *ContainerRepository) Update(ctx context.Context, c *models.Container) error {
	result := r.db.WithContext(ctx).
		Model(&models.Container{}).
		Where("id = ? AND version = ?", c.ID, c.Version).
		Updates(map[string]interface{}{
			"version":    c.Version + 1,
			"updated_at": time.Now().UTC(),
			"status":     c.Status,
			"platform":   c.Platform,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apierrors.NewConflictError("container", "version mismatch, refetch and retry")
	}
	c.Version++
	return nil
}

func (r *ContainerRepository) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Delete(&models.Container{}, "id = ?", id)
	return result.Error
}

func (r *ContainerRepository) FindByID(ctx context.Context, id string) (*models.Container, error) {
	var c models.Container
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apierrors.NewNotFoundError("container", id)
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *ContainerRepository) FindByNamespaceName(ctx context.Context, namespace, name string) (*models.Container, error) {
	var c models.Container
	err := r.db.WithContext(ctx).
		Where("namespace = ? AND name = ?", namespace, name).
		First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apierrors.NewNotFoundError("container", namespace+"/"+name)
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// FindByOwners lists containers owned by any of the given principals
// (a user id plus the ids of every organization they belong to).
func (r *ContainerRepository) FindByOwners(ctx context.Context, owners []string) ([]models.Container, error) {
	var containers []models.Container
	err := r.db.WithContext(ctx).Where("owner IN ?", owners).Order("created_at desc").Find(&containers).Error
	return containers, err
}

func (r *ContainerRepository) FindByOwnerRef(ctx context.Context, ownerRef string) ([]models.Container, error) {
	var containers []models.Container
	err := r.db.WithContext(ctx).Where("owner_ref = ?", ownerRef).Find(&containers).Error
	return containers, err
}

// FindAll lists every container regardless of owner, for callers
// authenticated as the configured root owner.
func (r *ContainerRepository) FindAll(ctx context.Context) ([]models.Container, error) {
	var containers []models.Container
	err := r.db.WithContext(ctx).Order("created_at desc").Find(&containers).Error
	return containers, err
}

// activeStatuses is the JSON-encoded-status predicate list used by
// FindActiveContainers: any record whose status.status lands in this set
// still needs reconciler attention.
var activeStatuses = []string{
	string(statemachine.Defined), string(statemachine.Queued), string(statemachine.Creating),
	string(statemachine.Created), string(statemachine.Pending), string(statemachine.Running),
	string(statemachine.Restarting), string(statemachine.Paused),
}

// FindActiveContainers pages over records whose status is in the active
// set. pageSize/offset implement the reconciler's paginator (default page
// size 100 per spec).
func (r *ContainerRepository) FindActiveContainers(ctx context.Context, offset, pageSize int) ([]models.Container, error) {
	var containers []models.Container
	err := r.db.WithContext(ctx).
		Where("status->>'status' IN ? OR status IS NULL", activeStatuses).
		Order("updated_at asc").
		Offset(offset).
		Limit(pageSize).
		Find(&containers).Error
	return containers, err
}

// CountActiveByResourceNamespace counts containers in a non-terminal
// status currently assigned to resourceNamespace, for adapters that place
// several workloads on one shared node and need to know whether it's
// still in use before tearing it down.
func (r *ContainerRepository) CountActiveByResourceNamespace(ctx context.Context, resourceNamespace string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Container{}).
		Where("resource_namespace = ? AND (status->>'status' IN ? OR status IS NULL)", resourceNamespace, activeStatuses).
		Count(&count).Error
	return count, err
}

func (r *ContainerRepository) FindByQueue(ctx context.Context, queue string) ([]models.Container, error) {
	var containers []models.Container
	err := r.db.WithContext(ctx).Where("queue = ?", queue).Find(&containers).Error
	return containers, err
}

// IsQueueFree reports whether no other container with the same queue name
// is currently in an active status. This is best-effort mutual exclusion:
// it does not take a row lock, so a rare double-admission is possible and
// must be tolerated by adapters.
func (r *ContainerRepository) IsQueueFree(ctx context.Context, queue, excludingID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Container{}).
		Where("queue = ? AND id != ? AND (status->>'status' IN ? OR status IS NULL)", queue, excludingID, activeStatuses).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count == 0, nil
}

// UpdateStatus merges newStatus into the existing status document: it
// parses what's stored, overwrites only the fields the caller actually set
// on newStatus, and writes the merged document back. A terminal status is
// never replaced by a non-terminal one. This is the single most
// load-bearing invariant in the Store, grounded line-for-line on the
// original's update_container_status.
func (r *ContainerRepository) UpdateStatus(ctx context.Context, id string, patch models.ContainerStatusDoc) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var c models.Container
		if err := tx.Clauses().Where("id = ?", id).First(&c).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apierrors.NewNotFoundError("container", id)
			}
			return err
		}

		current, err := c.ParseStatus()
		if err != nil {
			return err
		}

		if current.Status != "" {
			existing, perr := statemachine.Parse(current.Status)
			if perr == nil && existing.IsTerminal() {
				next, nerr := statemachine.Parse(patch.Status)
				if patch.Status != "" && nerr == nil && !next.IsTerminal() {
					// Refuse to move a terminal record backwards; the call is a
					// silent no-op, matching Reconcile's idempotence requirement
					// on terminal records.
					return nil
				}
			}
		}

		merged := mergeStatus(current, patch)
		doc, err := models.NewJSONB(merged)
		if err != nil {
			return err
		}
		return tx.Model(&models.Container{}).
			Where("id = ?", id).
			Updates(map[string]interface{}{
				"status":     doc,
				"version":    gorm.Expr("version + 1"),
				"updated_at": time.Now().UTC(),
			}).Error
	})
}

// mergeStatus overwrites only the fields patch actually sets. The caller
// is expected to leave a field at its Go zero value when it doesn't want
// to change it; Status itself is only overwritten when non-empty so a
// caller updating just, say, Accelerator doesn't accidentally reset it.
func mergeStatus(current, patch models.ContainerStatusDoc) models.ContainerStatusDoc {
	merged := current
	if patch.Status != "" {
		merged.Status = patch.Status
	}
	if patch.Message != "" {
		merged.Message = patch.Message
	}
	if patch.Accelerator != "" {
		merged.Accelerator = patch.Accelerator
	}
	if len(patch.PublicPorts) > 0 {
		merged.PublicPorts = patch.PublicPorts
	}
	if patch.CostPerHr != nil {
		merged.CostPerHr = patch.CostPerHr
	}
	if patch.TailnetURL != "" {
		merged.TailnetURL = patch.TailnetURL
	}
	merged.Ready = patch.Ready || current.Ready
	if len(patch.ExtraLabels) > 0 {
		if merged.ExtraLabels == nil {
			merged.ExtraLabels = map[string]string{}
		}
		for k, v := range patch.ExtraLabels {
			merged.ExtraLabels[k] = v
		}
	}
	return merged
}

func (r *ContainerRepository) UpdateResourceName(ctx context.Context, id, resourceName, resourceNamespace string) error {
	return r.db.WithContext(ctx).Model(&models.Container{}).Where("id = ?", id).Updates(map[string]interface{}{
		"resource_name":      resourceName,
		"resource_namespace": resourceNamespace,
		"version":            gorm.Expr("version + 1"),
		"updated_at":         time.Now().UTC(),
	}).Error
}

func (r *ContainerRepository) UpdatePodIP(ctx context.Context, id, tailnetIP string) error {
	return r.db.WithContext(ctx).Model(&models.Container{}).Where("id = ?", id).Updates(map[string]interface{}{
		"tailnet_ip": tailnetIP,
		"version":    gorm.Expr("version + 1"),
		"updated_at": time.Now().UTC(),
	}).Error
}

func (r *ContainerRepository) UpdateResourceCostPerHr(ctx context.Context, id string, costPerHr float64) error {
	return r.db.WithContext(ctx).Model(&models.Container{}).Where("id = ?", id).Updates(map[string]interface{}{
		"resource_cost_per_hr": costPerHr,
		"version":              gorm.Expr("version + 1"),
		"updated_at":           time.Now().UTC(),
	}).Error
}

// UpdateContainerFields is the escape hatch for the handful of
// administrative fields (desired_status, labels, controller_data) that
// don't warrant their own setter.
func (r *ContainerRepository) UpdateContainerFields(ctx context.Context, id string, fields map[string]interface{}) error {
	fields["version"] = gorm.Expr("version + 1")
	fields["updated_at"] = time.Now().UTC()
	return r.db.WithContext(ctx).Model(&models.Container{}).Where("id = ?", id).Updates(fields).Error
}

// isUniqueViolation matches on substring rather than a driver-specific
// typed error because both postgres (production) and sqlite (repository
// tests) are used against this repository and each reports unique
// constraint violations with its own wrapped error type.
func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate")
}
