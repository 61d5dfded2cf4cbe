// Package router is the orchestration core: it interprets an utterance,
// validates the extracted actions, resolves their references, and applies
// each action against the entity store, producing structured turn results
// for the presentation layer.
package router

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/aura-assistant/aura-core/internal/apptype"
	"github.com/aura-assistant/aura-core/internal/database"
	"github.com/aura-assistant/aura-core/internal/interpreter"
	"github.com/aura-assistant/aura-core/internal/logging"
	"github.com/aura-assistant/aura-core/internal/metrics"
	"github.com/aura-assistant/aura-core/internal/resolver"

	actionpkg "github.com/aura-assistant/aura-core/internal/action"
)

// FallbackText is returned when the model output yields nothing
// actionable; the turn degrades to a reply instead of failing.
const FallbackText = "Я не понял запрос. Попробуйте переформулировать."

const profileTitle = "profile"

// Router wires the interpreter, resolver and store into one pipeline.
type Router struct {
	store  *database.Store
	interp *interpreter.Interpreter
	res    *resolver.Resolver
	log    *zap.Logger
}

// Option configures a Router.
type Option func(*Router)

// WithLogger attaches a logger; the default is a nop logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Router) { r.log = l }
}

// New builds a Router.
func New(store *database.Store, interp *interpreter.Interpreter, res *resolver.Resolver, opts ...Option) *Router {
	r := &Router{store: store, interp: interp, res: res, log: logging.Nop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// HandleUtterance runs the full pipeline for one utterance. Multiple
// extracted actions are applied independently, in order; each produces its
// own result. Model unavailability is the only error that aborts the turn.
func (r *Router) HandleUtterance(ctx context.Context, owner int64, utterance string, cctx apptype.ConversationContext) ([]apptype.TurnResult, error) {
	raws, err := r.interp.Interpret(ctx, utterance, cctx)
	if err != nil {
		if errors.Is(err, apptype.ErrNoExtractableAction) {
			metrics.Default().IncActionTotal("none", string(apptype.OutcomeFallback))
			return []apptype.TurnResult{{
				Outcome: apptype.OutcomeFallback,
				Action:  apptype.ActionSay,
				Text:    FallbackText,
			}}, nil
		}
		return nil, err
	}

	results := make([]apptype.TurnResult, 0, len(raws))
	for _, raw := range raws {
		a, err := actionpkg.Validate(raw)
		if err != nil {
			if apptype.IsSchemaViolation(err) {
				r.log.Warn("action failed validation", zap.Error(err))
				metrics.Default().IncActionTotal("invalid", string(apptype.OutcomeRejected))
				results = append(results, apptype.TurnResult{
					Outcome: apptype.OutcomeRejected,
					Detail:  err.Error(),
				})
				continue
			}
			return nil, err
		}
		result, err := r.Apply(ctx, owner, a)
		if err != nil {
			return nil, err
		}
		metrics.Default().IncActionTotal(string(a.Kind), string(result.Outcome))
		results = append(results, result)
	}
	return results, nil
}

// Apply resolves and executes one validated action. Domain rejections
// (duplicates, ambiguity, missing references, cycles) are reported in the
// result; only infrastructure failures surface as errors.
func (r *Router) Apply(ctx context.Context, owner int64, a apptype.Action) (apptype.TurnResult, error) {
	res, err := r.res.Resolve(ctx, owner, a)
	if err != nil {
		if errors.Is(err, apptype.ErrCycleDetected) {
			return apptype.TurnResult{
				Outcome: apptype.OutcomeRejected,
				Action:  a.Kind,
				Detail:  err.Error(),
			}, nil
		}
		return apptype.TurnResult{}, err
	}

	switch res.State {
	case apptype.StateAmbiguousMatch:
		result := apptype.TurnResult{Outcome: apptype.OutcomeAmbiguous, Action: a.Kind}
		for _, c := range res.Candidates {
			result.Candidates = append(result.Candidates, c.Title)
		}
		return result, nil
	case apptype.StateNotFound:
		return apptype.TurnResult{
			Outcome:    apptype.OutcomeNotFound,
			Action:     a.Kind,
			MissingRef: res.MissingRef,
		}, nil
	case apptype.StateClarificationNeeded:
		return apptype.TurnResult{
			Outcome: apptype.OutcomeClarification,
			Action:  a.Kind,
			Pending: res.MissingRef,
		}, nil
	}

	switch a.Kind {
	case apptype.ActionCreate:
		return r.applyCreate(ctx, owner, a)
	case apptype.ActionAddTask:
		return r.applyAddTask(ctx, owner, res)
	case apptype.ActionShowTasks:
		return r.applyShowTasks(ctx, owner, res)
	case apptype.ActionShowLists, apptype.ActionShowAllTasks:
		return r.applyOverview(ctx, owner, a.Kind)
	case apptype.ActionShowCompletedTasks:
		return r.applyTaskListing(ctx, owner, a.Kind, r.store.CompletedTasks)
	case apptype.ActionShowDeletedTasks:
		return r.applyTaskListing(ctx, owner, a.Kind, r.store.DeletedTasks)
	case apptype.ActionSearchEntity:
		return r.applySearch(ctx, owner, a)
	case apptype.ActionRenameList:
		return r.applyRename(ctx, owner, res)
	case apptype.ActionUpdateTask:
		return r.applyUpdateTask(ctx, owner, res)
	case apptype.ActionMarkDone:
		return r.applyMarkDone(ctx, owner, res)
	case apptype.ActionDeleteTask:
		return r.applyDeleteTask(ctx, owner, res)
	case apptype.ActionDeleteList:
		return r.applyDeleteList(ctx, owner, res)
	case apptype.ActionRestoreTask:
		return r.applyRestore(ctx, owner, res)
	case apptype.ActionMoveEntity:
		return r.applyMove(ctx, owner, res)
	case apptype.ActionUpdateProfile:
		return r.applyUpdateProfile(ctx, owner, a)
	case apptype.ActionSay:
		return apptype.TurnResult{Outcome: apptype.OutcomeSay, Action: a.Kind, Text: a.Text}, nil
	case apptype.ActionClarify:
		return apptype.TurnResult{
			Outcome:  apptype.OutcomeClarification,
			Action:   a.Kind,
			Question: a.Question,
			Pending:  a.Pending,
		}, nil
	default:
		return apptype.TurnResult{
			Outcome: apptype.OutcomeRejected,
			Action:  a.Kind,
			Detail:  fmt.Sprintf("unhandled action kind %q", a.Kind),
		}, nil
	}
}

func (r *Router) applyCreate(ctx context.Context, owner int64, a apptype.Action) (apptype.TurnResult, error) {
	kind := apptype.Kind(a.Type)
	if a.Type == "" {
		kind = apptype.KindList
	}
	result := apptype.TurnResult{Outcome: apptype.OutcomeApplied, Action: a.Kind}

	// Near-duplicate warning: creation still proceeds unless the identity
	// tuple collides, but the caller learns about the close neighbour.
	if kind == apptype.KindList {
		similar, score, err := r.res.FindSimilarList(ctx, owner, a.Title)
		if err != nil {
			return apptype.TurnResult{}, err
		}
		if similar != nil {
			result.Duplicate = similar.Title
			result.Similarity = score
		}
	}

	created, err := r.store.Create(ctx, owner, kind, a.Title, "", nil, apptype.Metadata{})
	if err != nil {
		if apptype.IsConstraintViolation(err) {
			return apptype.TurnResult{
				Outcome:   apptype.OutcomeDuplicate,
				Action:    a.Kind,
				Duplicate: a.Title,
				Detail:    err.Error(),
			}, nil
		}
		return apptype.TurnResult{}, err
	}
	result.Changed = append(result.Changed, *created)

	for _, task := range a.Tasks {
		child, err := r.createOrRestoreTask(ctx, owner, created, task)
		if err != nil {
			return apptype.TurnResult{}, err
		}
		if child != nil {
			result.Changed = append(result.Changed, *child)
		}
	}

	if kind == apptype.KindList {
		if err := r.attachRecap(ctx, owner, created, &result); err != nil {
			return apptype.TurnResult{}, err
		}
	}
	return result, nil
}

func (r *Router) applyAddTask(ctx context.Context, owner int64, res apptype.Resolution) (apptype.TurnResult, error) {
	a := res.Action
	result := apptype.TurnResult{Outcome: apptype.OutcomeApplied, Action: a.Kind}

	list := res.List
	if res.CreateList {
		created, err := r.store.Create(ctx, owner, apptype.KindList, a.List, "", nil, apptype.Metadata{})
		if err != nil {
			if apptype.IsConstraintViolation(err) {
				// Lost a race with a concurrent create; reuse the winner.
				existing, getErr := r.store.Get(ctx, owner, apptype.KindList, a.List, nil)
				if getErr != nil {
					return apptype.TurnResult{}, err
				}
				created = existing
			} else {
				return apptype.TurnResult{}, err
			}
		} else {
			result.Changed = append(result.Changed, *created)
		}
		list = created
	}

	tasks := a.Tasks
	if a.Task != "" {
		tasks = append([]string{a.Task}, tasks...)
	}
	duplicates := 0
	for _, task := range tasks {
		child, err := r.createOrRestoreTask(ctx, owner, list, task)
		if err != nil {
			return apptype.TurnResult{}, err
		}
		if child != nil {
			result.Changed = append(result.Changed, *child)
		} else {
			duplicates++
			result.Duplicate = task
		}
	}
	if duplicates > 0 && duplicates == len(tasks) {
		result.Outcome = apptype.OutcomeDuplicate
	}

	if err := r.attachRecap(ctx, owner, list, &result); err != nil {
		return apptype.TurnResult{}, err
	}
	return result, nil
}

// createOrRestoreTask inserts a task under the list. When the identity
// tuple collides with a soft-deleted or done task, that task is restored
// instead; colliding with an active task returns (nil, nil) so the caller
// can report the duplicate.
func (r *Router) createOrRestoreTask(ctx context.Context, owner int64, list *apptype.Entity, title string) (*apptype.Entity, error) {
	created, err := r.store.Create(ctx, owner, apptype.KindTask, title, "", &list.ID, apptype.Metadata{})
	if err == nil {
		return created, nil
	}
	if !apptype.IsConstraintViolation(err) {
		return nil, err
	}
	existing, getErr := r.store.Get(ctx, owner, apptype.KindTask, title, &list.ID)
	if getErr != nil {
		return nil, fmt.Errorf("failed to load colliding task: %w", getErr)
	}
	if existing.Meta.Deleted || existing.Meta.Done() || existing.Meta.Archived {
		restored, restoreErr := r.store.Restore(ctx, existing.ID, owner)
		if restoreErr != nil {
			return nil, restoreErr
		}
		r.log.Debug("restored task instead of duplicating",
			zap.Int64("owner", owner), zap.String("task", title))
		return restored, nil
	}
	return nil, nil
}

func (r *Router) applyShowTasks(ctx context.Context, owner int64, res apptype.Resolution) (apptype.TurnResult, error) {
	result := apptype.TurnResult{Outcome: apptype.OutcomeApplied, Action: res.Action.Kind}
	if err := r.attachRecap(ctx, owner, res.List, &result); err != nil {
		return apptype.TurnResult{}, err
	}
	return result, nil
}

func (r *Router) applyOverview(ctx context.Context, owner int64, kind apptype.ActionKind) (apptype.TurnResult, error) {
	recap, err := r.store.Overview(ctx, owner)
	if err != nil {
		return apptype.TurnResult{}, err
	}
	return apptype.TurnResult{Outcome: apptype.OutcomeApplied, Action: kind, Recap: recap}, nil
}

func (r *Router) applyTaskListing(ctx context.Context, owner int64, kind apptype.ActionKind, query func(context.Context, int64) ([]apptype.TaskRef, error)) (apptype.TurnResult, error) {
	tasks, err := query(ctx, owner)
	if err != nil {
		return apptype.TurnResult{}, err
	}
	return apptype.TurnResult{Outcome: apptype.OutcomeApplied, Action: kind, Tasks: tasks}, nil
}

func (r *Router) applySearch(ctx context.Context, owner int64, a apptype.Action) (apptype.TurnResult, error) {
	tasks, err := r.store.SearchTasks(ctx, owner, a.Pattern)
	if err != nil {
		return apptype.TurnResult{}, err
	}
	result := apptype.TurnResult{Outcome: apptype.OutcomeApplied, Action: a.Kind, Tasks: tasks}
	if len(tasks) == 0 {
		result.Outcome = apptype.OutcomeNotFound
		result.MissingRef = a.Pattern
	}
	return result, nil
}

func (r *Router) applyRename(ctx context.Context, owner int64, res apptype.Resolution) (apptype.TurnResult, error) {
	a := res.Action
	updated, err := r.store.Update(ctx, res.List.ID, owner, database.FieldChanges{Title: &a.NewTitle})
	if err != nil {
		if apptype.IsConstraintViolation(err) {
			return apptype.TurnResult{
				Outcome:   apptype.OutcomeDuplicate,
				Action:    a.Kind,
				Duplicate: a.NewTitle,
				Detail:    err.Error(),
			}, nil
		}
		return apptype.TurnResult{}, err
	}
	return apptype.TurnResult{
		Outcome: apptype.OutcomeApplied,
		Action:  a.Kind,
		Changed: []apptype.Entity{*updated},
	}, nil
}

func (r *Router) applyUpdateTask(ctx context.Context, owner int64, res apptype.Resolution) (apptype.TurnResult, error) {
	a := res.Action
	target := res.Target
	if target == nil {
		// Positional reference: 1-based index into the list's active tasks.
		tasks, err := r.store.ListChildren(ctx, res.List.ID, owner, database.ListFilter{})
		if err != nil {
			return apptype.TurnResult{}, err
		}
		if a.ByIndex < 1 || a.ByIndex > len(tasks) {
			return apptype.TurnResult{
				Outcome:    apptype.OutcomeNotFound,
				Action:     a.Kind,
				MissingRef: fmt.Sprintf("#%d", a.ByIndex),
			}, nil
		}
		target = &tasks[a.ByIndex-1]
	}

	updated, err := r.store.Update(ctx, target.ID, owner, database.FieldChanges{Title: &a.NewTitle})
	if err != nil {
		if apptype.IsConstraintViolation(err) {
			return apptype.TurnResult{
				Outcome:   apptype.OutcomeDuplicate,
				Action:    a.Kind,
				Duplicate: a.NewTitle,
				Detail:    err.Error(),
			}, nil
		}
		return apptype.TurnResult{}, err
	}
	result := apptype.TurnResult{
		Outcome: apptype.OutcomeApplied,
		Action:  a.Kind,
		Changed: []apptype.Entity{*updated},
	}
	if err := r.attachRecap(ctx, owner, res.List, &result); err != nil {
		return apptype.TurnResult{}, err
	}
	return result, nil
}

func (r *Router) applyMarkDone(ctx context.Context, owner int64, res apptype.Resolution) (apptype.TurnResult, error) {
	meta := res.Target.Meta
	meta.Status = apptype.StatusDone
	meta.CompletedAt = time.Now().UTC().Format(time.RFC3339)
	updated, err := r.store.Update(ctx, res.Target.ID, owner, database.FieldChanges{Meta: &meta})
	if err != nil {
		return apptype.TurnResult{}, err
	}
	result := apptype.TurnResult{
		Outcome: apptype.OutcomeApplied,
		Action:  res.Action.Kind,
		Changed: []apptype.Entity{*updated},
	}
	if err := r.attachRecap(ctx, owner, res.List, &result); err != nil {
		return apptype.TurnResult{}, err
	}
	return result, nil
}

func (r *Router) applyDeleteTask(ctx context.Context, owner int64, res apptype.Resolution) (apptype.TurnResult, error) {
	deleted, err := r.store.SoftDelete(ctx, res.Target.ID, owner)
	if err != nil {
		return apptype.TurnResult{}, err
	}
	result := apptype.TurnResult{
		Outcome: apptype.OutcomeApplied,
		Action:  res.Action.Kind,
		Changed: []apptype.Entity{*deleted},
	}
	if err := r.attachRecap(ctx, owner, res.List, &result); err != nil {
		return apptype.TurnResult{}, err
	}
	return result, nil
}

// applyDeleteList archives the list's tasks with an attribution mark
// before soft-deleting the list itself, so completed-task history keeps
// naming the list it came from.
func (r *Router) applyDeleteList(ctx context.Context, owner int64, res apptype.Resolution) (apptype.TurnResult, error) {
	list := res.List
	tasks, err := r.store.ListChildren(ctx, list.ID, owner, database.ListFilter{IncludeDone: true})
	if err != nil {
		return apptype.TurnResult{}, err
	}
	result := apptype.TurnResult{Outcome: apptype.OutcomeApplied, Action: res.Action.Kind}
	for i := range tasks {
		meta := tasks[i].Meta
		meta.Archived = true
		meta.ArchivedFrom = list.Title
		archived, err := r.store.Update(ctx, tasks[i].ID, owner, database.FieldChanges{Meta: &meta})
		if err != nil {
			return apptype.TurnResult{}, err
		}
		result.Changed = append(result.Changed, *archived)
	}
	deleted, err := r.store.SoftDelete(ctx, list.ID, owner)
	if err != nil {
		return apptype.TurnResult{}, err
	}
	result.Changed = append(result.Changed, *deleted)
	return result, nil
}

func (r *Router) applyRestore(ctx context.Context, owner int64, res apptype.Resolution) (apptype.TurnResult, error) {
	restored, err := r.store.Restore(ctx, res.Target.ID, owner)
	if err != nil {
		if errors.Is(err, apptype.ErrNotFound) {
			return apptype.TurnResult{
				Outcome:    apptype.OutcomeNotFound,
				Action:     res.Action.Kind,
				MissingRef: res.Action.Task,
			}, nil
		}
		return apptype.TurnResult{}, err
	}
	return apptype.TurnResult{
		Outcome: apptype.OutcomeApplied,
		Action:  res.Action.Kind,
		Changed: []apptype.Entity{*restored},
	}, nil
}

func (r *Router) applyMove(ctx context.Context, owner int64, res apptype.Resolution) (apptype.TurnResult, error) {
	a := res.Action
	if res.Target.ParentID != nil && *res.Target.ParentID == res.Destination.ID {
		return apptype.TurnResult{
			Outcome: apptype.OutcomeApplied,
			Action:  a.Kind,
			Detail:  "already in destination",
		}, nil
	}
	moved, err := r.store.Move(ctx, res.Target.ID, owner, res.Destination.ID)
	if err != nil {
		if errors.Is(err, apptype.ErrCycleDetected) || apptype.IsConstraintViolation(err) {
			return apptype.TurnResult{
				Outcome: apptype.OutcomeRejected,
				Action:  a.Kind,
				Detail:  err.Error(),
			}, nil
		}
		return apptype.TurnResult{}, err
	}
	result := apptype.TurnResult{
		Outcome: apptype.OutcomeApplied,
		Action:  a.Kind,
		Changed: []apptype.Entity{*moved},
	}
	if err := r.attachRecap(ctx, owner, res.Destination, &result); err != nil {
		return apptype.TurnResult{}, err
	}
	return result, nil
}

func (r *Router) applyUpdateProfile(ctx context.Context, owner int64, a apptype.Action) (apptype.TurnResult, error) {
	profile, err := r.store.Get(ctx, owner, apptype.KindUserProfile, profileTitle, nil)
	if err != nil {
		if !errors.Is(err, apptype.ErrNotFound) {
			return apptype.TurnResult{}, err
		}
		meta := apptype.Metadata{City: a.City, Profession: a.Profession}
		created, createErr := r.store.Create(ctx, owner, apptype.KindUserProfile, profileTitle, "", nil, meta)
		if createErr != nil {
			return apptype.TurnResult{}, createErr
		}
		return apptype.TurnResult{
			Outcome: apptype.OutcomeApplied,
			Action:  a.Kind,
			Changed: []apptype.Entity{*created},
		}, nil
	}

	meta := profile.Meta
	if a.City != "" {
		meta.City = a.City
	}
	if a.Profession != "" {
		meta.Profession = a.Profession
	}
	updated, err := r.store.Update(ctx, profile.ID, owner, database.FieldChanges{Meta: &meta})
	if err != nil {
		return apptype.TurnResult{}, err
	}
	return apptype.TurnResult{
		Outcome: apptype.OutcomeApplied,
		Action:  a.Kind,
		Changed: []apptype.Entity{*updated},
	}, nil
}

// attachRecap loads the list's current active tasks into the result so the
// presentation layer can echo the post-change state.
func (r *Router) attachRecap(ctx context.Context, owner int64, list *apptype.Entity, result *apptype.TurnResult) error {
	tasks, err := r.store.ListChildren(ctx, list.ID, owner, database.ListFilter{})
	if err != nil {
		return err
	}
	recap := apptype.ListRecap{Name: list.Title, Tasks: make([]string, 0, len(tasks))}
	for _, t := range tasks {
		recap.Tasks = append(recap.Tasks, t.Title)
	}
	result.Recap = append(result.Recap, recap)
	return nil
}

// Context assembles the per-owner conversation context supplied to the
// interpreter: current lists with their tasks, kind counts, and the stored
// profile. History and pending state are the caller's to add.
func (r *Router) Context(ctx context.Context, owner int64) (apptype.ConversationContext, error) {
	cctx := apptype.ConversationContext{}

	recap, err := r.store.Overview(ctx, owner)
	if err != nil {
		return cctx, err
	}
	if len(recap) > 0 {
		cctx.Lists = make(map[string][]string, len(recap))
		for _, l := range recap {
			tasks := l.Tasks
			if len(tasks) > 10 {
				tasks = tasks[:10]
			}
			cctx.Lists[l.Name] = tasks
		}
	}

	counts, err := r.store.KindCounts(ctx, owner)
	if err != nil {
		return cctx, err
	}
	if len(counts) > 0 {
		cctx.KindCounts = counts
	}

	profile, err := r.store.Get(ctx, owner, apptype.KindUserProfile, profileTitle, nil)
	if err == nil {
		p := make(map[string]string)
		if profile.Meta.City != "" {
			p["city"] = profile.Meta.City
		}
		if profile.Meta.Profession != "" {
			p["profession"] = profile.Meta.Profession
		}
		if len(p) > 0 {
			cctx.Profile = p
		}
	} else if !errors.Is(err, apptype.ErrNotFound) {
		return cctx, err
	}

	return cctx, nil
}
