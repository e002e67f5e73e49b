// Package pipeline sequences one recognition flow: upload a photo, recognize
// its ingredients, curate the selection, request recommendations and open
// recipes in detail. Restarting an upstream stage resets everything
// downstream of it.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"

	"github.com/pageza/pantrycam/internal/coordinator"
	"github.com/pageza/pantrycam/internal/gateway"
	"github.com/pageza/pantrycam/internal/imagestore"
	"github.com/pageza/pantrycam/internal/notify"
	"github.com/pageza/pantrycam/internal/observability"
	"github.com/pageza/pantrycam/internal/selection"
	"github.com/pageza/pantrycam/internal/types"
)

var (
	ErrNoImage        = errors.New("no image uploaded")
	ErrNotImage       = errors.New("file is not an image")
	ErrEmptySelection = errors.New("no ingredients selected")
	ErrNoRecipes      = errors.New("no recipes to act on")
	ErrNoRecipeID     = errors.New("recipe has no id")
)

const (
	msgRecognized    = "Ingredients identified successfully!"
	msgNoneFound     = "No ingredients were recognized in this photo."
	msgNoRecipes     = "No recipes found for the selected ingredients."
	msgSaved         = "Recipe saved!"
	msgRemoved       = "Recipe removed from your saved recipes."
	msgChooseAnImage = "Please choose an image file."
)

// RecipeAPI is the part of the gateway the flow calls.
type RecipeAPI interface {
	RecognizeIngredients(ctx context.Context, img types.Image) ([]string, error)
	RecommendRecipes(ctx context.Context, ingredients []string) ([]types.Recipe, error)
	GetRecipe(ctx context.Context, id string) (*types.Recipe, error)
	SaveRecipe(ctx context.Context, recipe types.Recipe) (*types.SavedRecipe, error)
	RemoveSavedRecipe(ctx context.Context, id string) error
}

// SavedMirror answers saved/unsaved questions and is refreshed after
// mutations. Read loads it on first use.
type SavedMirror interface {
	Read(ctx context.Context) ([]types.Recipe, error)
	IsSaved(id string) bool
	Invalidate()
}

// Notifier shows operation outcomes to the user.
type Notifier interface {
	Notify(message string, severity notify.Severity, opts ...notify.Option) notify.ID
}

// Snapshot is a copy of the pipeline state.
type Snapshot struct {
	Stage         Stage
	Image         *types.Image
	ImageLocation string
	Recognized    []string
	Selected      []string
	Recommended   []types.Recipe
	Detail        *types.Recipe
}

// DetailOpen reports whether a recipe is shown in detail.
func (s Snapshot) DetailOpen() bool {
	return s.Detail != nil
}

type Option func(*Pipeline)

// WithImageStore archives every uploaded image.
func WithImageStore(s imagestore.Store) Option {
	return func(p *Pipeline) {
		p.images = s
	}
}

func WithMetrics(m *observability.Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(p *Pipeline) {
		p.log = l
	}
}

// Pipeline is the state of one recognition view. It lives until Close.
type Pipeline struct {
	mu       sync.Mutex
	api      RecipeAPI
	saved    SavedMirror
	notifier Notifier
	images   imagestore.Store
	metrics  *observability.Metrics
	coord    *coordinator.Coordinator
	sel      *selection.Set
	log      zerolog.Logger

	stage       Stage
	image       *types.Image
	location    string
	recommended []types.Recipe
	detail      *types.Recipe
	// epoch changes on every upload; results started under an older epoch
	// are dropped.
	epoch   uint64
	closed  bool
	subs    map[int]func(Snapshot)
	nextSub int
}

func New(api RecipeAPI, saved SavedMirror, notifier Notifier, opts ...Option) *Pipeline {
	p := &Pipeline{
		api:      api,
		saved:    saved,
		notifier: notifier,
		sel:      selection.New(),
		subs:     make(map[int]func(Snapshot)),
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.coord = coordinator.New(
		coordinator.WithInvalidator(saved),
		coordinator.WithMetrics(p.metrics),
		coordinator.WithLogger(p.log),
	)
	return p
}

// Upload starts the flow over with img. Recognized ingredients, the
// selection, recommendations and the detail view are cleared.
func (p *Pipeline) Upload(ctx context.Context, img types.Image) error {
	if len(img.Data) == 0 {
		return ErrNoImage
	}
	detected := mimetype.Detect(img.Data)
	if !strings.HasPrefix(detected.String(), "image/") {
		p.notifier.Notify(msgChooseAnImage, notify.SeverityError)
		return fmt.Errorf("%w: detected %s", ErrNotImage, detected.String())
	}
	if img.ContentType == "" || !strings.HasPrefix(img.ContentType, "image/") {
		img.ContentType = detected.String()
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return coordinator.ErrDetached
	}
	p.epoch++
	epoch := p.epoch
	p.stage = StageImageUploaded
	p.image = &img
	p.location = ""
	p.sel.Reset()
	p.recommended = nil
	p.detail = nil
	p.mu.Unlock()
	p.publish()

	p.log.Info().Str("filename", img.Filename).Str("content_type", img.ContentType).Msg("image uploaded")

	if p.images == nil {
		return nil
	}
	loc, err := coordinator.Run(ctx, p.coord, coordinator.KindUpload, func(ctx context.Context) (string, error) {
		return p.images.Put(ctx, img)
	})
	if err != nil {
		if !coordinator.IsDiscarded(err) {
			// the flow does not depend on the archive
			p.log.Warn().Err(err).Msg("failed to archive image")
		}
		return nil
	}
	p.mu.Lock()
	if p.epoch == epoch {
		p.location = loc
	}
	p.mu.Unlock()
	p.publish()
	return nil
}

// Recognize sends the uploaded image for ingredient recognition. On success
// every recognized ingredient is selected.
func (p *Pipeline) Recognize(ctx context.Context) error {
	p.mu.Lock()
	if p.image == nil {
		p.mu.Unlock()
		return ErrNoImage
	}
	img := *p.image
	epoch := p.epoch
	p.mu.Unlock()

	names, err := coordinator.Run(ctx, p.coord, coordinator.KindRecognize, func(ctx context.Context) ([]string, error) {
		return p.api.RecognizeIngredients(ctx, img)
	})
	if err != nil {
		return p.fail(err)
	}

	p.mu.Lock()
	if p.closed || p.epoch != epoch {
		p.mu.Unlock()
		return fmt.Errorf("%s: %w", coordinator.KindRecognize, coordinator.ErrStale)
	}
	p.sel.SetRecognized(names)
	p.stage = StageIngredientsRecognized
	p.recommended = nil
	p.detail = nil
	count := p.sel.Len()
	p.mu.Unlock()
	p.publish()

	p.log.Info().Int("ingredients", count).Msg("ingredients recognized")
	if count == 0 {
		p.notifier.Notify(msgNoneFound, notify.SeverityInfo)
	} else {
		p.notifier.Notify(msgRecognized, notify.SeveritySuccess)
	}
	return nil
}

// Toggle flips the selection of one recognized ingredient. Recommended
// recipes are kept.
func (p *Pipeline) Toggle(name string) (bool, error) {
	selected, err := p.sel.Toggle(name)
	if err != nil {
		return false, err
	}
	p.publish()
	return selected, nil
}

// Recommend requests recipes for the selected ingredients. An empty
// selection is rejected without calling the API.
func (p *Pipeline) Recommend(ctx context.Context) error {
	p.mu.Lock()
	selected := p.sel.Selected()
	epoch := p.epoch
	p.mu.Unlock()
	if len(selected) == 0 {
		return ErrEmptySelection
	}

	recipes, err := coordinator.Run(ctx, p.coord, coordinator.KindRecommend, func(ctx context.Context) ([]types.Recipe, error) {
		return p.api.RecommendRecipes(ctx, selected)
	})
	if err != nil {
		return p.fail(err)
	}

	// Cards are marked saved from the mirror, so load it before they show.
	p.loadSaved(ctx)

	p.mu.Lock()
	if p.closed || p.epoch != epoch {
		p.mu.Unlock()
		return fmt.Errorf("%s: %w", coordinator.KindRecommend, coordinator.ErrStale)
	}
	p.recommended = recipes
	p.stage = StageRecipesRecommended
	p.mu.Unlock()
	p.publish()

	p.log.Info().Strs("ingredients", selected).Int("recipes", len(recipes)).Msg("recipes recommended")
	if len(recipes) == 0 {
		p.notifier.Notify(msgNoRecipes, notify.SeverityInfo)
	}
	return nil
}

// Save persists recipe. The saved mirror is refreshed once the server
// confirms; nothing is written to it locally.
func (p *Pipeline) Save(ctx context.Context, recipe types.Recipe) (*types.SavedRecipe, error) {
	if !p.hasRecipes() {
		return nil, ErrNoRecipes
	}
	saved, err := coordinator.Run(ctx, p.coord, coordinator.KindSave, func(ctx context.Context) (*types.SavedRecipe, error) {
		return p.api.SaveRecipe(ctx, recipe)
	})
	if err != nil {
		return nil, p.fail(err)
	}
	p.notifier.Notify(msgSaved, notify.SeveritySuccess)
	return saved, nil
}

// Remove deletes a saved recipe. A recipe that is already gone counts as
// removed.
func (p *Pipeline) Remove(ctx context.Context, id string) error {
	if id == "" {
		return ErrNoRecipeID
	}
	if !p.hasRecipes() {
		return ErrNoRecipes
	}
	_, err := p.coord.Do(ctx, coordinator.KindRemove, func(ctx context.Context) (any, error) {
		return nil, gateway.IgnoreNotFound(p.api.RemoveSavedRecipe(ctx, id))
	})
	if err != nil {
		return p.fail(err)
	}
	p.notifier.Notify(msgRemoved, notify.SeveritySuccess)
	return nil
}

// ToggleSaved removes recipe if the mirror says it is saved and saves it
// otherwise. It reports whether the recipe ends up saved. The mirror is read
// first; if it cannot be loaded nothing is changed.
func (p *Pipeline) ToggleSaved(ctx context.Context, recipe types.Recipe) (bool, error) {
	if !p.hasRecipes() {
		return false, ErrNoRecipes
	}
	if _, err := p.saved.Read(ctx); err != nil {
		return false, p.fail(err)
	}
	if recipe.HasID() && p.saved.IsSaved(recipe.ID) {
		return false, p.Remove(ctx, recipe.ID)
	}
	if _, err := p.Save(ctx, recipe); err != nil {
		return false, err
	}
	return true, nil
}

// OpenDetail shows recipe in detail without leaving the current stage.
func (p *Pipeline) OpenDetail(recipe types.Recipe) {
	p.mu.Lock()
	p.detail = &recipe
	p.mu.Unlock()
	p.publish()
}

// OpenDetailByID fetches a recipe and shows it in detail.
func (p *Pipeline) OpenDetailByID(ctx context.Context, id string) (*types.Recipe, error) {
	if id == "" {
		return nil, ErrNoRecipeID
	}
	recipe, err := coordinator.Run(ctx, p.coord, coordinator.KindFetchRecipe, func(ctx context.Context) (*types.Recipe, error) {
		return p.api.GetRecipe(ctx, id)
	})
	if err != nil {
		return nil, p.fail(err)
	}
	p.OpenDetail(*recipe)
	return recipe, nil
}

// CloseDetail returns to the stage the detail view was opened from.
func (p *Pipeline) CloseDetail() {
	p.mu.Lock()
	p.detail = nil
	p.mu.Unlock()
	p.publish()
}

// IsSaved reports whether the recipe with id is in the saved mirror.
func (p *Pipeline) IsSaved(id string) bool {
	return p.saved.IsSaved(id)
}

// Pending reports whether an operation of kind is outstanding, for disabling
// the control that triggers it.
func (p *Pipeline) Pending(kind coordinator.Kind) bool {
	return p.coord.Pending(kind)
}

func (p *Pipeline) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshotLocked()
}

func (p *Pipeline) Stage() Stage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stage
}

// Subscribe registers fn for every state change. The returned func
// unsubscribes.
func (p *Pipeline) Subscribe(fn func(Snapshot)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextSub
	p.nextSub++
	p.subs[id] = fn
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.subs, id)
	}
}

// Close discards the view. Calls still in flight finish without touching
// the state.
func (p *Pipeline) Close() {
	p.coord.Close()
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.subs = make(map[int]func(Snapshot))
}

// fail reports err to the user unless it was discarded, and returns it.
func (p *Pipeline) fail(err error) error {
	if coordinator.IsDiscarded(err) {
		return err
	}
	p.notifier.Notify(gateway.Message(err), notify.SeverityError)
	return err
}

// loadSaved reads the mirror through. Failures only leave recipes unmarked.
func (p *Pipeline) loadSaved(ctx context.Context) {
	if _, err := p.saved.Read(ctx); err != nil {
		p.log.Warn().Err(err).Msg("failed to load saved recipes")
	}
}

func (p *Pipeline) hasRecipes() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stage == StageRecipesRecommended || p.detail != nil
}

// snapshotLocked must be called with mu held.
func (p *Pipeline) snapshotLocked() Snapshot {
	s := Snapshot{
		Stage:         p.stage,
		ImageLocation: p.location,
		Recognized:    p.sel.Recognized(),
		Selected:      p.sel.Selected(),
		Recommended:   append([]types.Recipe(nil), p.recommended...),
	}
	if p.image != nil {
		img := *p.image
		s.Image = &img
	}
	if p.detail != nil {
		d := *p.detail
		s.Detail = &d
	}
	return s
}

func (p *Pipeline) publish() {
	p.mu.Lock()
	if p.closed || len(p.subs) == 0 {
		p.mu.Unlock()
		return
	}
	snap := p.snapshotLocked()
	subs := make([]func(Snapshot), 0, len(p.subs))
	for _, fn := range p.subs {
		subs = append(subs, fn)
	}
	p.mu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
}
