// Package savedview is the saved-recipes screen: it lists the shared saved
// mirror and lets the user open, remove or re-save recipes.
package savedview

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/pageza/pantrycam/internal/coordinator"
	"github.com/pageza/pantrycam/internal/gateway"
	"github.com/pageza/pantrycam/internal/notify"
	"github.com/pageza/pantrycam/internal/observability"
	"github.com/pageza/pantrycam/internal/types"
)

// EmptyMessage is shown when nothing is saved.
const EmptyMessage = "No saved recipes yet. Start by scanning your ingredients!"

var ErrNoRecipeID = errors.New("recipe has no id")

// API is the part of the gateway the view calls.
type API interface {
	SaveRecipe(ctx context.Context, recipe types.Recipe) (*types.SavedRecipe, error)
	RemoveSavedRecipe(ctx context.Context, id string) error
}

// Mirror is the shared saved-recipes cache.
type Mirror interface {
	Read(ctx context.Context) ([]types.Recipe, error)
	Total() int
	Stale() bool
	IsSaved(id string) bool
	Invalidate()
	Subscribe(fn func(types.SavedRecipesPage)) func()
}

// Notifier shows operation outcomes to the user.
type Notifier interface {
	Notify(message string, severity notify.Severity, opts ...notify.Option) notify.ID
}

// State is what the screen renders. Stale is set while a refetch of the list
// is outstanding.
type State struct {
	Recipes []types.Recipe
	Total   int
	Stale   bool
	Detail  *types.Recipe
}

// CountText is the header line, e.g. "1 recipe saved".
func (s State) CountText() string {
	if s.Total == 1 {
		return "1 recipe saved"
	}
	return fmt.Sprintf("%d recipes saved", s.Total)
}

type Option func(*View)

func WithMetrics(m *observability.Metrics) Option {
	return func(v *View) {
		v.metrics = m
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(v *View) {
		v.log = l
	}
}

// View owns its own coordinator; the mirror is shared with the recognition
// flow.
type View struct {
	mu       sync.Mutex
	api      API
	mirror   Mirror
	notifier Notifier
	coord    *coordinator.Coordinator
	metrics  *observability.Metrics
	log      zerolog.Logger

	recipes []types.Recipe
	detail  *types.Recipe
	closed  bool
	subs    map[int]func(State)
	nextSub int
	unwatch func()
}

func New(api API, mirror Mirror, notifier Notifier, opts ...Option) *View {
	v := &View{
		api:      api,
		mirror:   mirror,
		notifier: notifier,
		subs:     make(map[int]func(State)),
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(v)
	}
	v.coord = coordinator.New(
		coordinator.WithInvalidator(mirror),
		coordinator.WithMetrics(v.metrics),
		coordinator.WithLogger(v.log),
	)
	v.unwatch = mirror.Subscribe(v.refreshed)
	return v
}

// Load reads the mirror, fetching it on first use.
func (v *View) Load(ctx context.Context) (State, error) {
	recipes, err := coordinator.Run(ctx, v.coord, coordinator.KindFetchSaved, v.mirror.Read)
	if err != nil {
		if !coordinator.IsDiscarded(err) {
			v.notifier.Notify(gateway.Message(err), notify.SeverityError)
		}
		return State{}, err
	}
	v.mu.Lock()
	v.recipes = recipes
	v.mu.Unlock()
	v.publish()
	return v.State(), nil
}

// Remove deletes a saved recipe. Removing one that is already gone counts as
// success.
func (v *View) Remove(ctx context.Context, id string) error {
	if id == "" {
		return ErrNoRecipeID
	}
	_, err := v.coord.Do(ctx, coordinator.KindRemove, func(ctx context.Context) (any, error) {
		return nil, gateway.IgnoreNotFound(v.api.RemoveSavedRecipe(ctx, id))
	})
	if err != nil {
		return v.fail(err)
	}
	v.notifier.Notify("Recipe removed from your saved recipes.", notify.SeveritySuccess)
	return nil
}

// Save saves recipe again, e.g. right after removing it by mistake.
func (v *View) Save(ctx context.Context, recipe types.Recipe) (*types.SavedRecipe, error) {
	saved, err := coordinator.Run(ctx, v.coord, coordinator.KindSave, func(ctx context.Context) (*types.SavedRecipe, error) {
		return v.api.SaveRecipe(ctx, recipe)
	})
	if err != nil {
		return nil, v.fail(err)
	}
	v.notifier.Notify("Recipe saved!", notify.SeveritySuccess)
	return saved, nil
}

// ToggleSaved removes recipe if it is saved and saves it otherwise. The
// mirror is read first; if it cannot be loaded nothing is changed.
func (v *View) ToggleSaved(ctx context.Context, recipe types.Recipe) (bool, error) {
	if _, err := v.mirror.Read(ctx); err != nil {
		return false, v.fail(err)
	}
	if recipe.HasID() && v.mirror.IsSaved(recipe.ID) {
		return false, v.Remove(ctx, recipe.ID)
	}
	if _, err := v.Save(ctx, recipe); err != nil {
		return false, err
	}
	return true, nil
}

func (v *View) OpenDetail(recipe types.Recipe) {
	v.mu.Lock()
	v.detail = &recipe
	v.mu.Unlock()
	v.publish()
}

func (v *View) CloseDetail() {
	v.mu.Lock()
	v.detail = nil
	v.mu.Unlock()
	v.publish()
}

func (v *View) IsSaved(id string) bool {
	return v.mirror.IsSaved(id)
}

func (v *View) Pending(kind coordinator.Kind) bool {
	return v.coord.Pending(kind)
}

// State returns the last loaded list and the detail view.
func (v *View) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.stateLocked()
}

// Subscribe registers fn for every change, including refetches of the
// mirror triggered elsewhere.
func (v *View) Subscribe(fn func(State)) func() {
	v.mu.Lock()
	defer v.mu.Unlock()
	id := v.nextSub
	v.nextSub++
	v.subs[id] = fn
	return func() {
		v.mu.Lock()
		defer v.mu.Unlock()
		delete(v.subs, id)
	}
}

// Close detaches the view from the mirror and drops in-flight results.
func (v *View) Close() {
	v.coord.Close()
	v.unwatch()
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closed = true
	v.subs = make(map[int]func(State))
}

func (v *View) refreshed(page types.SavedRecipesPage) {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.recipes = page.Recipes
	v.mu.Unlock()
	v.publish()
}

func (v *View) fail(err error) error {
	if coordinator.IsDiscarded(err) {
		return err
	}
	v.log.Warn().Err(err).Msg("saved recipes operation failed")
	v.notifier.Notify(gateway.Message(err), notify.SeverityError)
	return err
}

// stateLocked must be called with mu held.
func (v *View) stateLocked() State {
	s := State{
		Recipes: append([]types.Recipe(nil), v.recipes...),
		Total:   v.mirror.Total(),
		Stale:   v.mirror.Stale(),
	}
	if s.Total < len(s.Recipes) {
		s.Total = len(s.Recipes)
	}
	if v.detail != nil {
		d := *v.detail
		s.Detail = &d
	}
	return s
}

func (v *View) publish() {
	v.mu.Lock()
	if v.closed || len(v.subs) == 0 {
		v.mu.Unlock()
		return
	}
	st := v.stateLocked()
	subs := make([]func(State), 0, len(v.subs))
	for _, fn := range v.subs {
		subs = append(subs, fn)
	}
	v.mu.Unlock()
	for _, fn := range subs {
		fn(st)
	}
}
