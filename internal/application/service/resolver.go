package service

import (
	"context"
	"fmt"
	"sort"

	"possync/internal/appers"
	"possync/internal/application/entity"
	"possync/internal/application/repo"
)

// resolveParent recovers the parent row named by a foreign-key violation so
// the blocked child write can be retried. Recovery sources, in order: the
// local mirror, then the outbox history of the parent record. A parent whose
// newest completed change is a DELETE is gone for good and the child change
// is reported as such.
func (s *ServiceImpl) resolveParent(ctx context.Context, fk *repo.FKViolationError) error {
	if fk.ParentTable == "" || fk.Value == "" {
		s.recordRecovery("failed")
		return fmt.Errorf("%w: unparseable violation detail: %s", appers.ErrParentNotFound, fk.Detail)
	}

	parentSpec, ok := entity.LookupTable(fk.ParentTable)
	if !ok {
		s.recordRecovery("failed")
		return fmt.Errorf("%w: %s/%s references unregistered table", appers.ErrParentNotFound, fk.ParentTable, fk.Value)
	}

	if data, found, err := s.mirror.FindByID(parentSpec, fk.Value); err != nil {
		return err
	} else if found {
		s.logger.Infof("[%s: %s] recovering parent from local mirror", parentSpec.Name, fk.Value)
		if err := s.remote.Upsert(ctx, parentSpec, fk.Value, data); err != nil {
			s.recordRecovery("failed")
			return fmt.Errorf("recover parent %s/%s: %w", parentSpec.Name, fk.Value, err)
		}
		s.recordRecovery("resolved")
		return nil
	}

	data, err := s.parentFromHistory(parentSpec, fk.Value)
	if err != nil {
		s.recordRecovery("failed")
		return err
	}
	if data != nil {
		s.logger.Infof("[%s: %s] recovering parent from outbox history", parentSpec.Name, fk.Value)
		if err := s.remote.Upsert(ctx, parentSpec, fk.Value, data); err != nil {
			s.recordRecovery("failed")
			return fmt.Errorf("recover parent %s/%s: %w", parentSpec.Name, fk.Value, err)
		}
		s.recordRecovery("resolved")
		return nil
	}

	if s.cfg.AllowPlaceholderParents && parentSpec.PlaceholderDefaults != nil {
		s.logger.Warnf("[%s: %s] synthesizing placeholder parent", parentSpec.Name, fk.Value)
		if err := s.remote.Upsert(ctx, parentSpec, fk.Value, placeholderFor(parentSpec, fk.Value)); err != nil {
			s.recordRecovery("failed")
			return fmt.Errorf("placeholder parent %s/%s: %w", parentSpec.Name, fk.Value, err)
		}
		s.recordRecovery("placeholder")
		return nil
	}

	s.recordRecovery("failed")
	return fmt.Errorf("%w: %s/%s", appers.ErrParentNotFound, parentSpec.Name, fk.Value)
}

// parentFromHistory replays the outbox for the parent record: the payload of
// the newest completed CREATE or UPDATE wins, unless a newer completed DELETE
// exists, which means the parent was removed on purpose.
func (s *ServiceImpl) parentFromHistory(spec entity.TableSpec, recordID string) (map[string]any, error) {
	history, err := s.outbox.History(spec.Name, recordID)
	if err != nil {
		return nil, err
	}
	sort.Slice(history, func(i, j int) bool { return history[i].ID > history[j].ID })

	for _, e := range history {
		if e.Status != entity.StatusCompleted {
			continue
		}
		switch e.ChangeType {
		case entity.ChangeDelete:
			return nil, fmt.Errorf("%w: %s/%s", appers.ErrParentDeleted, spec.Name, recordID)
		case entity.ChangeCreate, entity.ChangeUpdate:
			if deleted, _ := e.ChangeData["_deleted"].(bool); deleted {
				return nil, fmt.Errorf("%w: %s/%s", appers.ErrParentDeleted, spec.Name, recordID)
			}
			return e.ChangeData, nil
		}
	}
	return nil, nil
}

func placeholderFor(spec entity.TableSpec, recordID string) map[string]any {
	data := make(map[string]any, len(spec.PlaceholderDefaults)+2)
	for k, v := range spec.PlaceholderDefaults {
		data[k] = v
	}
	data["id"] = recordID
	data["name"] = fmt.Sprintf("__placeholder_%s__%s", spec.Name, recordID)
	return data
}

func (s *ServiceImpl) recordRecovery(result string) {
	if s.metrics != nil {
		s.metrics.DependencyRecoveries.WithLabelValues(result).Inc()
	}
}
