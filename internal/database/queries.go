package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aura-assistant/aura-core/internal/apptype"
	"github.com/aura-assistant/aura-core/internal/metrics"
)

// Overview returns every active list with its active, not-done tasks in
// creation order. Lists without tasks appear with an empty slice.
func (s *Store) Overview(ctx context.Context, owner int64) ([]apptype.ListRecap, error) {
	done := metrics.TimeOp("overview")
	success := false
	defer func() { done(success) }()

	lists, err := s.Roots(ctx, owner, apptype.KindList, ListFilter{})
	if err != nil {
		return nil, err
	}
	out := make([]apptype.ListRecap, 0, len(lists))
	for _, list := range lists {
		tasks, err := s.ListChildren(ctx, list.ID, owner, ListFilter{})
		if err != nil {
			return nil, err
		}
		recap := apptype.ListRecap{Name: list.Title, Tasks: make([]string, 0, len(tasks))}
		for _, t := range tasks {
			recap.Tasks = append(recap.Tasks, t.Title)
		}
		out = append(out, recap)
	}
	success = true
	return out, nil
}

// KindCounts returns how many active entities of each kind the owner has.
func (s *Store) KindCounts(ctx context.Context, owner int64) (map[apptype.Kind]int, error) {
	done := metrics.TimeOp("kind_counts")
	success := false
	defer func() { done(success) }()

	stmt, err := s.getPreparedStmt(ctx, "SELECT "+entityColumns+
		" FROM entities WHERE owner_id = ? ORDER BY id ASC")
	if err != nil {
		return nil, err
	}
	all, err := s.collect(ctx, stmt, ListFilter{}, owner)
	if err != nil {
		return nil, err
	}
	counts := make(map[apptype.Kind]int)
	for _, e := range all {
		counts[e.Kind]++
	}
	success = true
	return counts, nil
}

// CompletedTasks returns done tasks with their list attribution. Tasks
// archived when their list was deleted report the original list title.
func (s *Store) CompletedTasks(ctx context.Context, owner int64) ([]apptype.TaskRef, error) {
	done := metrics.TimeOp("completed_tasks")
	success := false
	defer func() { done(success) }()

	refs, err := s.tasksWhere(ctx, owner, func(e *apptype.Entity) bool {
		return e.Meta.Done() && !e.Meta.Deleted
	})
	if err != nil {
		return nil, err
	}
	success = true
	return refs, nil
}

// DeletedTasks returns soft-deleted and archived tasks, restorable via
// their ids.
func (s *Store) DeletedTasks(ctx context.Context, owner int64) ([]apptype.TaskRef, error) {
	done := metrics.TimeOp("deleted_tasks")
	success := false
	defer func() { done(success) }()

	refs, err := s.tasksWhere(ctx, owner, func(e *apptype.Entity) bool {
		return e.Meta.Deleted || e.Meta.Archived
	})
	if err != nil {
		return nil, err
	}
	success = true
	return refs, nil
}

// SearchTasks finds active tasks whose title contains the pattern,
// case-insensitively, with their list attribution.
func (s *Store) SearchTasks(ctx context.Context, owner int64, pattern string) ([]apptype.TaskRef, error) {
	done := metrics.TimeOp("search_tasks")
	success := false
	defer func() { done(success) }()

	needle := strings.ToLower(strings.TrimSpace(pattern))
	if needle == "" {
		success = true
		return nil, nil
	}
	refs, err := s.tasksWhere(ctx, owner, func(e *apptype.Entity) bool {
		return !e.Meta.Deleted && !e.Meta.Archived && !e.Meta.Done() &&
			strings.Contains(strings.ToLower(e.Title), needle)
	})
	if err != nil {
		return nil, err
	}
	success = true
	return refs, nil
}

// tasksWhere scans the owner's tasks once and attributes each match to a
// list title: the current parent, or the archived_from mark when the list
// is gone.
func (s *Store) tasksWhere(ctx context.Context, owner int64, match func(*apptype.Entity) bool) ([]apptype.TaskRef, error) {
	stmt, err := s.getPreparedStmt(ctx, "SELECT "+entityColumns+
		" FROM entities WHERE owner_id = ? AND kind = ? ORDER BY created_at ASC, id ASC")
	if err != nil {
		return nil, err
	}
	tasks, err := s.collect(ctx, stmt, ListFilter{IncludeDeleted: true, IncludeDone: true, IncludeArchived: true}, owner, apptype.KindTask)
	if err != nil {
		return nil, err
	}

	titleCache := make(map[int64]string)
	var out []apptype.TaskRef
	for i := range tasks {
		t := &tasks[i]
		if !match(t) {
			continue
		}
		ref := apptype.TaskRef{ID: t.ID, Task: t.Title}
		switch {
		case t.Meta.ArchivedFrom != "":
			ref.List = t.Meta.ArchivedFrom
		case t.ParentID != nil:
			title, ok := titleCache[*t.ParentID]
			if !ok {
				parent, err := s.GetByID(ctx, *t.ParentID, owner)
				if err != nil {
					if errors.Is(err, apptype.ErrNotFound) {
						title = ""
					} else {
						return nil, fmt.Errorf("failed to resolve parent list: %w", err)
					}
				} else {
					title = parent.Title
				}
				titleCache[*t.ParentID] = title
			}
			ref.List = title
		}
		out = append(out, ref)
	}
	return out, nil
}

// IsDescendant reports whether candidate sits below ancestor in the parent
// chain. Used by callers that need to pre-check moves without mutating.
func (s *Store) IsDescendant(ctx context.Context, owner, ancestor, candidate int64) (bool, error) {
	done := metrics.TimeOp("is_descendant")
	success := false
	defer func() { done(success) }()

	current := candidate
	for depth := 0; depth < 64; depth++ {
		e, err := s.GetByID(ctx, current, owner)
		if err != nil {
			if errors.Is(err, apptype.ErrNotFound) {
				success = true
				return false, nil
			}
			return false, err
		}
		if e.ParentID == nil {
			success = true
			return false, nil
		}
		if *e.ParentID == ancestor {
			success = true
			return true, nil
		}
		current = *e.ParentID
	}
	return false, fmt.Errorf("ancestor chain deeper than 64 levels: %w", apptype.ErrCycleDetected)
}
