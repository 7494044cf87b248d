package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/xraph/adjudicator/claim"
)

// DefaultTimeout bounds a single hook call.
const DefaultTimeout = 5 * time.Second

// Registry manages all registered plugins and provides efficient dispatch.
// Hook implementations are discovered once at registration so emitting an
// event is a slice walk.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	// Type-cached plugin lists for efficient dispatch
	onInit               []OnInit
	onShutdown           []OnShutdown
	onClaimSubmitted     []OnClaimSubmitted
	onClaimAdjudicated   []OnClaimAdjudicated
	onClaimVoided        []OnClaimVoided
	onAppealOpened       []OnAppealOpened
	onBenefitExhausted   []OnBenefitExhausted
	onAdvisorFailed      []OnAdvisorFailed
	onTransition         []OnTransition
	onTransitionRejected []OnTransitionRejected
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  slog.Default(),
		timeout: DefaultTimeout,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout sets the per-hook timeout.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	if d > 0 {
		r.timeout = d
	}
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnClaimSubmitted); ok {
		r.onClaimSubmitted = append(r.onClaimSubmitted, v)
	}
	if v, ok := p.(OnClaimAdjudicated); ok {
		r.onClaimAdjudicated = append(r.onClaimAdjudicated, v)
	}
	if v, ok := p.(OnClaimVoided); ok {
		r.onClaimVoided = append(r.onClaimVoided, v)
	}
	if v, ok := p.(OnAppealOpened); ok {
		r.onAppealOpened = append(r.onAppealOpened, v)
	}
	if v, ok := p.(OnBenefitExhausted); ok {
		r.onBenefitExhausted = append(r.onBenefitExhausted, v)
	}
	if v, ok := p.(OnAdvisorFailed); ok {
		r.onAdvisorFailed = append(r.onAdvisorFailed, v)
	}
	if v, ok := p.(OnTransition); ok {
		r.onTransition = append(r.onTransition, v)
	}
	if v, ok := p.(OnTransitionRejected); ok {
		r.onTransitionRejected = append(r.onTransitionRejected, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", implementedHooks(p),
	)

	return nil
}

var hookTypes = []struct {
	name string
	typ  reflect.Type
}{
	{"OnInit", reflect.TypeFor[OnInit]()},
	{"OnShutdown", reflect.TypeFor[OnShutdown]()},
	{"OnClaimSubmitted", reflect.TypeFor[OnClaimSubmitted]()},
	{"OnClaimAdjudicated", reflect.TypeFor[OnClaimAdjudicated]()},
	{"OnClaimVoided", reflect.TypeFor[OnClaimVoided]()},
	{"OnAppealOpened", reflect.TypeFor[OnAppealOpened]()},
	{"OnBenefitExhausted", reflect.TypeFor[OnBenefitExhausted]()},
	{"OnAdvisorFailed", reflect.TypeFor[OnAdvisorFailed]()},
	{"OnTransition", reflect.TypeFor[OnTransition]()},
	{"OnTransitionRejected", reflect.TypeFor[OnTransitionRejected]()},
}

// implementedHooks returns the hook interfaces p implements.
func implementedHooks(p Plugin) []string {
	var names []string
	t := reflect.TypeOf(p)
	for _, h := range hookTypes {
		if t.Implements(h.typ) {
			names = append(names, h.name)
		}
	}
	return names
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, engine any) {
	emit(ctx, r, "OnInit", snapshot(r, &r.onInit), func(p OnInit) error {
		return p.OnInit(ctx, engine)
	})
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	emit(ctx, r, "OnShutdown", snapshot(r, &r.onShutdown), func(p OnShutdown) error {
		return p.OnShutdown(ctx)
	})
}

// EmitClaimSubmitted emits a claim submitted event.
func (r *Registry) EmitClaimSubmitted(ctx context.Context, c *claim.Claim) {
	emit(ctx, r, "OnClaimSubmitted", snapshot(r, &r.onClaimSubmitted), func(p OnClaimSubmitted) error {
		return p.OnClaimSubmitted(ctx, c)
	})
}

// EmitClaimAdjudicated emits a claim adjudicated event for the claim's
// latest decision.
func (r *Registry) EmitClaimAdjudicated(ctx context.Context, c *claim.Claim) {
	rec := c.Decision()
	if rec == nil {
		return
	}
	emit(ctx, r, "OnClaimAdjudicated", snapshot(r, &r.onClaimAdjudicated), func(p OnClaimAdjudicated) error {
		return p.OnClaimAdjudicated(ctx, c, rec)
	})
}

// EmitClaimVoided emits a claim voided event.
func (r *Registry) EmitClaimVoided(ctx context.Context, c *claim.Claim) {
	emit(ctx, r, "OnClaimVoided", snapshot(r, &r.onClaimVoided), func(p OnClaimVoided) error {
		return p.OnClaimVoided(ctx, c)
	})
}

// EmitAppealOpened emits an appeal opened event.
func (r *Registry) EmitAppealOpened(ctx context.Context, c *claim.Claim) {
	emit(ctx, r, "OnAppealOpened", snapshot(r, &r.onAppealOpened), func(p OnAppealOpened) error {
		return p.OnAppealOpened(ctx, c)
	})
}

// EmitBenefitExhausted emits a benefit exhausted event.
func (r *Registry) EmitBenefitExhausted(ctx context.Context, c *claim.Claim) {
	emit(ctx, r, "OnBenefitExhausted", snapshot(r, &r.onBenefitExhausted), func(p OnBenefitExhausted) error {
		return p.OnBenefitExhausted(ctx, c)
	})
}

// EmitAdvisorFailed emits an advisor failure event.
func (r *Registry) EmitAdvisorFailed(ctx context.Context, c *claim.Claim, err error) {
	emit(ctx, r, "OnAdvisorFailed", snapshot(r, &r.onAdvisorFailed), func(p OnAdvisorFailed) error {
		return p.OnAdvisorFailed(ctx, c, err)
	})
}

// Transitioned forwards a lifecycle transition to OnTransition hooks.
func (r *Registry) Transitioned(ctx context.Context, c *claim.Claim, entry *claim.AuditEntry) {
	emit(ctx, r, "OnTransition", snapshot(r, &r.onTransition), func(p OnTransition) error {
		return p.OnTransition(ctx, c, entry)
	})
}

// Rejected forwards a refused transition to OnTransitionRejected hooks.
func (r *Registry) Rejected(ctx context.Context, c *claim.Claim, entry *claim.AuditEntry) {
	emit(ctx, r, "OnTransitionRejected", snapshot(r, &r.onTransitionRejected), func(p OnTransitionRejected) error {
		return p.OnTransitionRejected(ctx, c, entry)
	})
}

func snapshot[T any](r *Registry, list *[]T) []T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return *list
}

// emit calls fn for every plugin, logging failures. Hook errors never
// reach the claim pipeline.
func emit[T Plugin](ctx context.Context, r *Registry, hook string, plugins []T, fn func(T) error) {
	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error { return fn(p) }); err != nil {
			r.logger.Warn("plugin "+hook+" failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block claim processing.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
