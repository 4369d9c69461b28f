package alert

import (
	"context"
	"log"
	"sync"
	"time"

	"anoa.com/noticeboard/internal/entity"
)

const (
	DefaultAutoDismiss       = 5 * time.Second
	DefaultPermissionTimeout = 30 * time.Second
)

// Platform is the host's alerting surface (the browser, for a socket
// session).
type Platform interface {
	PlaySound(ctx context.Context, asset string, volume float64) error
	Permission() Permission
	RequestPermission(ctx context.Context) (Permission, error)
	ShowAlert(ctx context.Context, alert Alert) error
	CloseAlert(ctx context.Context, tag string) error
	Focus(ctx context.Context) error
}

// NavigateFunc asks the host application to open actionURL.
type NavigateFunc func(ctx context.Context, actionURL string)

type instance struct {
	alert Alert
	once  sync.Once
	timer *time.Timer
}

type Dispatcher struct {
	platform          Platform
	navigate          NavigateFunc
	assets            Assets
	autoDismiss       time.Duration
	permissionTimeout time.Duration

	mu       sync.Mutex
	settings Settings
	alerts   map[string]*instance
}

type Option func(*Dispatcher)

func WithAssets(assets Assets) Option {
	return func(d *Dispatcher) { d.assets = assets }
}

func WithAutoDismiss(after time.Duration) Option {
	return func(d *Dispatcher) { d.autoDismiss = after }
}

func WithPermissionTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) { d.permissionTimeout = timeout }
}

func WithSettings(settings Settings) Option {
	return func(d *Dispatcher) { d.settings = settings }
}

func NewDispatcher(platform Platform, navigate NavigateFunc, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		platform:          platform,
		navigate:          navigate,
		assets:            DefaultAssets,
		autoDismiss:       DefaultAutoDismiss,
		permissionTimeout: DefaultPermissionTimeout,
		settings:          Settings{Sound: true, System: true},
		alerts:            make(map[string]*instance),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Dispatcher) Settings() Settings {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.settings
}

func (d *Dispatcher) SetSettings(settings Settings) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.settings = settings
}

func (d *Dispatcher) SetSound(enabled bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.settings.Sound = enabled
}

func (d *Dispatcher) SetSystem(enabled bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.settings.System = enabled
}

// Dispatch alerts on a batch of newly visible records. It does not wait
// for sound playback or permission prompts.
func (d *Dispatcher) Dispatch(ctx context.Context, batch []entity.Notification) {
	if len(batch) == 0 {
		return
	}
	actions := Plan(batch, d.Settings(), d.platform.Permission(), d.assets)
	for _, action := range actions {
		d.run(ctx, action)
	}
}

// run isolates one action so a failing record never stops the batch.
func (d *Dispatcher) run(ctx context.Context, action Action) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[alert] %s for %s panicked: %v", action.Kind, action.Record.ID, r)
		}
	}()

	switch action.Kind {
	case ActionPlaySound:
		go func() {
			defer func() { _ = recover() }()
			// playback failures are never reported
			_ = d.platform.PlaySound(ctx, action.Sound, action.Volume)
		}()
	case ActionShowAlert:
		d.show(ctx, action.Alert)
	case ActionRequestPermission:
		go d.requestAndShow(ctx, action.Alert)
	}
}

func (d *Dispatcher) requestAndShow(ctx context.Context, alert Alert) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[alert] permission request for %s panicked: %v", alert.Tag, r)
		}
	}()

	if d.permissionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.permissionTimeout)
		defer cancel()
	}
	permission, err := d.platform.RequestPermission(ctx)
	if err != nil || permission != PermissionGranted {
		return
	}
	d.show(ctx, alert)
}

func (d *Dispatcher) show(ctx context.Context, alert Alert) {
	if err := d.platform.ShowAlert(ctx, alert); err != nil {
		log.Printf("[alert] failed to show alert %s: %v", alert.Tag, err)
		return
	}

	inst := &instance{alert: alert}
	d.mu.Lock()
	if old, ok := d.alerts[alert.Tag]; ok && old.timer != nil {
		old.timer.Stop()
	}
	d.alerts[alert.Tag] = inst
	if !alert.RequireInteraction && d.autoDismiss > 0 {
		inst.timer = time.AfterFunc(d.autoDismiss, func() {
			d.finish(inst, func() {
				if err := d.platform.CloseAlert(context.WithoutCancel(ctx), alert.Tag); err != nil {
					log.Printf("[alert] failed to close alert %s: %v", alert.Tag, err)
				}
			})
		})
	}
	d.mu.Unlock()
}

// finish ends an alert instance exactly once, by click or by dismissal.
func (d *Dispatcher) finish(inst *instance, fn func()) bool {
	done := false
	inst.once.Do(func() {
		done = true
		d.mu.Lock()
		if inst.timer != nil {
			inst.timer.Stop()
		}
		if d.alerts[inst.alert.Tag] == inst {
			delete(d.alerts, inst.alert.Tag)
		}
		d.mu.Unlock()
		fn()
	})
	return done
}

// Click handles the user activating an alert: focus the host, navigate
// to the action URL if any, close the alert. Returns false when the
// alert is unknown or already finished.
func (d *Dispatcher) Click(ctx context.Context, tag string) bool {
	d.mu.Lock()
	inst, ok := d.alerts[tag]
	d.mu.Unlock()
	if !ok {
		return false
	}

	return d.finish(inst, func() {
		if err := d.platform.Focus(ctx); err != nil {
			log.Printf("[alert] failed to focus host: %v", err)
		}
		if inst.alert.ActionURL != "" && d.navigate != nil {
			d.navigate(ctx, inst.alert.ActionURL)
		}
		if err := d.platform.CloseAlert(ctx, tag); err != nil {
			log.Printf("[alert] failed to close alert %s: %v", tag, err)
		}
	})
}

// Active reports whether an alert with tag is on screen.
func (d *Dispatcher) Active(tag string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.alerts[tag]
	return ok
}
