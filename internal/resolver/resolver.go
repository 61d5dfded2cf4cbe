// Package resolver binds the human-readable references inside validated
// actions to concrete stored entities. It only reads the store; deciding
// to create a missing container is reported as a flag, never performed
// here.
package resolver

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/aura-assistant/aura-core/internal/apptype"
	"github.com/aura-assistant/aura-core/internal/database"
	"github.com/aura-assistant/aura-core/internal/logging"
)

// Resolver matches action references against the owner's entities using
// tiered matching: byte-exact, then case-insensitive, then normalized, then
// unique containment, then token-overlap similarity. More than one hit at
// the deciding tier is ambiguous, never a guess.
type Resolver struct {
	store *database.Store
	log   *zap.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger attaches a logger; the default is a nop logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Resolver) { r.log = l }
}

// New builds a Resolver over the store.
func New(store *database.Store, opts ...Option) *Resolver {
	r := &Resolver{store: store, log: logging.Nop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve binds every reference the action carries. The returned state is
// StateResolved only when all of them bound (or are flagged for implicit
// creation); infrastructure failures come back as the error.
func (r *Resolver) Resolve(ctx context.Context, owner int64, a apptype.Action) (apptype.Resolution, error) {
	res := apptype.Resolution{State: apptype.StateResolved, Action: a}

	switch a.Kind {
	case apptype.ActionCreate:
		// Uniqueness and near-duplicate checks happen at apply time; there
		// is nothing to bind.
		return res, nil

	case apptype.ActionAddTask:
		list, outcome, err := r.resolveList(ctx, owner, a.List, &res)
		if err != nil || outcome {
			return res, err
		}
		if list == nil {
			// Missing container on a mutating create: flag for implicit
			// creation instead of failing.
			res.CreateList = true
			return res, nil
		}
		res.List = list
		return res, nil

	case apptype.ActionShowTasks, apptype.ActionRenameList, apptype.ActionDeleteList:
		list, outcome, err := r.resolveList(ctx, owner, a.List, &res)
		if err != nil || outcome {
			return res, err
		}
		if list == nil {
			res.State = apptype.StateNotFound
			res.MissingRef = a.List
			return res, nil
		}
		res.List = list
		return res, nil

	case apptype.ActionMarkDone, apptype.ActionDeleteTask, apptype.ActionUpdateTask:
		list, outcome, err := r.resolveList(ctx, owner, a.List, &res)
		if err != nil || outcome {
			return res, err
		}
		if list == nil {
			res.State = apptype.StateNotFound
			res.MissingRef = a.List
			return res, nil
		}
		res.List = list
		if a.Kind == apptype.ActionUpdateTask && a.Title == "" {
			// Positional reference; the index is applied later against the
			// bound list.
			return res, nil
		}
		ref := a.Task
		if a.Kind == apptype.ActionUpdateTask {
			ref = a.Title
		}
		target, outcome, err := r.resolveTaskIn(ctx, owner, list.ID, ref, &res)
		if err != nil || outcome {
			return res, err
		}
		if target == nil {
			res.State = apptype.StateNotFound
			res.MissingRef = ref
			return res, nil
		}
		res.Target = target
		return res, nil

	case apptype.ActionMoveEntity:
		return r.resolveMove(ctx, owner, a)

	case apptype.ActionRestoreTask:
		return r.resolveRestore(ctx, owner, a)

	default:
		// show_lists, show_all_tasks, completed/deleted listings, search,
		// profile updates, say and clarify carry no entity references.
		return res, nil
	}
}

// resolveList binds a list title against active root lists. A nil entity
// with outcome=false means not found; outcome=true means res already holds
// a terminal ambiguous state.
func (r *Resolver) resolveList(ctx context.Context, owner int64, ref string, res *apptype.Resolution) (*apptype.Entity, bool, error) {
	if strings.TrimSpace(ref) == "" {
		res.State = apptype.StateClarificationNeeded
		res.MissingRef = "list"
		return nil, true, nil
	}
	lists, err := r.store.Roots(ctx, owner, apptype.KindList, database.ListFilter{})
	if err != nil {
		return nil, false, fmt.Errorf("failed to load lists: %w", err)
	}
	return r.pick(lists, ref, res)
}

// resolveTaskIn binds a task title within one list.
func (r *Resolver) resolveTaskIn(ctx context.Context, owner, listID int64, ref string, res *apptype.Resolution) (*apptype.Entity, bool, error) {
	tasks, err := r.store.ListChildren(ctx, listID, owner, database.ListFilter{IncludeDone: true})
	if err != nil {
		return nil, false, fmt.Errorf("failed to load tasks: %w", err)
	}
	return r.pick(tasks, ref, res)
}

func (r *Resolver) resolveMove(ctx context.Context, owner int64, a apptype.Action) (apptype.Resolution, error) {
	res := apptype.Resolution{State: apptype.StateResolved, Action: a}

	var target *apptype.Entity
	if a.List != "" {
		list, outcome, err := r.resolveList(ctx, owner, a.List, &res)
		if err != nil || outcome {
			return res, err
		}
		if list == nil {
			res.State = apptype.StateNotFound
			res.MissingRef = a.List
			return res, nil
		}
		res.List = list
		t, outcome, err := r.resolveTaskIn(ctx, owner, list.ID, a.Task, &res)
		if err != nil || outcome {
			return res, err
		}
		target = t
	} else {
		// No source list given: search the task across every active list,
		// then fall back to list titles so whole lists can be moved too.
		t, outcome, err := r.resolveTaskAnywhere(ctx, owner, a.Task, &res)
		if err != nil || outcome {
			return res, err
		}
		target = t
		if target == nil {
			lists, err := r.store.Roots(ctx, owner, apptype.KindList, database.ListFilter{})
			if err != nil {
				return res, fmt.Errorf("failed to load lists: %w", err)
			}
			l, outcome, err := r.pick(lists, a.Task, &res)
			if err != nil || outcome {
				return res, err
			}
			target = l
		}
	}
	if target == nil {
		res.State = apptype.StateNotFound
		res.MissingRef = a.Task
		return res, nil
	}
	res.Target = target

	dest, outcome, err := r.resolveList(ctx, owner, a.ToList, &res)
	if err != nil || outcome {
		return res, err
	}
	if dest == nil {
		res.State = apptype.StateNotFound
		res.MissingRef = a.ToList
		return res, nil
	}
	// The destination must not sit at or below the moved entity, otherwise
	// applying the move would close a parent cycle.
	if dest.ID == target.ID {
		return res, fmt.Errorf("cannot move %q into itself: %w", target.Title, apptype.ErrCycleDetected)
	}
	under, err := r.store.IsDescendant(ctx, owner, target.ID, dest.ID)
	if err != nil {
		return res, err
	}
	if under {
		return res, fmt.Errorf("cannot move %q under its own descendant %q: %w",
			target.Title, dest.Title, apptype.ErrCycleDetected)
	}
	res.Destination = dest
	return res, nil
}

// resolveTaskAnywhere matches a task title across all active lists.
func (r *Resolver) resolveTaskAnywhere(ctx context.Context, owner int64, ref string, res *apptype.Resolution) (*apptype.Entity, bool, error) {
	lists, err := r.store.Roots(ctx, owner, apptype.KindList, database.ListFilter{})
	if err != nil {
		return nil, false, fmt.Errorf("failed to load lists: %w", err)
	}
	var pool []apptype.Entity
	for _, list := range lists {
		tasks, err := r.store.ListChildren(ctx, list.ID, owner, database.ListFilter{IncludeDone: true})
		if err != nil {
			return nil, false, fmt.Errorf("failed to load tasks: %w", err)
		}
		pool = append(pool, tasks...)
	}
	return r.pick(pool, ref, res)
}

func (r *Resolver) resolveRestore(ctx context.Context, owner int64, a apptype.Action) (apptype.Resolution, error) {
	res := apptype.Resolution{State: apptype.StateResolved, Action: a}

	refs, err := r.store.DeletedTasks(ctx, owner)
	if err != nil {
		return res, err
	}
	completed, err := r.store.CompletedTasks(ctx, owner)
	if err != nil {
		return res, err
	}
	refs = append(refs, completed...)

	pool := make([]apptype.Entity, 0, len(refs))
	for _, ref := range refs {
		e, err := r.store.GetByID(ctx, ref.ID, owner)
		if err != nil {
			return res, fmt.Errorf("failed to load restorable task: %w", err)
		}
		pool = append(pool, *e)
	}
	target, outcome, err := r.pick(pool, a.Task, &res)
	if err != nil || outcome {
		return res, err
	}
	if target == nil {
		res.State = apptype.StateNotFound
		res.MissingRef = a.Task
		return res, nil
	}
	res.Target = target
	return res, nil
}

// pick runs the matching tiers over a candidate pool. Exact and normalized
// equality win outright; containment only when unique; the similarity tier
// auto-uses a single high-confidence hit and turns anything weaker into
// candidates for the user. A stricter tier always settles the match before
// a looser one gets to look, so case variants of the same title stay apart.
func (r *Resolver) pick(pool []apptype.Entity, ref string, res *apptype.Resolution) (*apptype.Entity, bool, error) {
	if len(pool) == 0 {
		return nil, false, nil
	}

	trimmedRef := strings.TrimSpace(ref)
	exact := filter(pool, func(e *apptype.Entity) bool {
		return strings.TrimSpace(e.Title) == trimmedRef
	})
	if e, terminal := decide(exact, res); e != nil || terminal {
		return e, terminal, nil
	}

	folded := filter(pool, func(e *apptype.Entity) bool {
		return strings.EqualFold(strings.TrimSpace(e.Title), trimmedRef)
	})
	if e, terminal := decide(folded, res); e != nil || terminal {
		return e, terminal, nil
	}

	normRef := Normalize(ref)
	normalized := filter(pool, func(e *apptype.Entity) bool {
		return Normalize(e.Title) == normRef
	})
	if e, terminal := decide(normalized, res); e != nil || terminal {
		return e, terminal, nil
	}

	contained := filter(pool, func(e *apptype.Entity) bool {
		nt := Normalize(e.Title)
		return nt != "" && normRef != "" &&
			(strings.Contains(nt, normRef) || strings.Contains(normRef, nt))
	})
	// Containment is only trustworthy when it singles out one entity.
	if len(contained) == 1 {
		return &contained[0], false, nil
	}
	if len(contained) > 1 {
		res.State = apptype.StateAmbiguousMatch
		res.Candidates = contained
		return nil, true, nil
	}

	type scored struct {
		entity apptype.Entity
		score  float64
	}
	var fuzzy []scored
	for i := range pool {
		if s := Similarity(pool[i].Title, ref); s >= similarityThreshold {
			fuzzy = append(fuzzy, scored{pool[i], s})
		}
	}
	if len(fuzzy) == 1 && fuzzy[0].score >= autoUseScore {
		r.log.Debug("fuzzy match auto-used",
			zap.String("ref", ref), zap.String("title", fuzzy[0].entity.Title),
			zap.Float64("score", fuzzy[0].score))
		return &fuzzy[0].entity, false, nil
	}
	if len(fuzzy) > 0 {
		res.State = apptype.StateAmbiguousMatch
		for _, f := range fuzzy {
			res.Candidates = append(res.Candidates, f.entity)
		}
		return nil, true, nil
	}
	return nil, false, nil
}

// FindSimilarList reports the closest existing active list to a proposed
// title, for near-duplicate warnings on creation. Returns nil when nothing
// scores above the similarity threshold.
func (r *Resolver) FindSimilarList(ctx context.Context, owner int64, title string) (*apptype.Entity, float64, error) {
	lists, err := r.store.Roots(ctx, owner, apptype.KindList, database.ListFilter{})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to load lists: %w", err)
	}
	var (
		best      *apptype.Entity
		bestScore float64
	)
	for i := range lists {
		if s := Similarity(lists[i].Title, title); s >= similarityThreshold && s > bestScore {
			best = &lists[i]
			bestScore = s
		}
	}
	return best, bestScore, nil
}

func filter(pool []apptype.Entity, keep func(*apptype.Entity) bool) []apptype.Entity {
	var out []apptype.Entity
	for i := range pool {
		if keep(&pool[i]) {
			out = append(out, pool[i])
		}
	}
	return out
}

// decide turns a tier's matches into an outcome: one match resolves,
// several are ambiguous, zero falls through to the next tier.
func decide(matches []apptype.Entity, res *apptype.Resolution) (*apptype.Entity, bool) {
	switch len(matches) {
	case 0:
		return nil, false
	case 1:
		return &matches[0], false
	default:
		res.State = apptype.StateAmbiguousMatch
		res.Candidates = matches
		return nil, true
	}
}
