package identity

import (
	"log/slog"
	"strings"
	"sync"

	"lensmint/device-identity/internal/platform/privacylog"
)

// BuildFunc constructs a ready identity for a camera id.
type BuildFunc func(cameraID string) (*Identity, error)

// BuilderFor returns a BuildFunc that runs New with opts and the given
// camera id.
func BuilderFor(opts Options) BuildFunc {
	return func(cameraID string) (*Identity, error) {
		o := opts
		o.CameraID = cameraID
		return New(o)
	}
}

type RegistryOptions struct {
	// DefaultCameraID is used by Get when no identity is cached yet.
	DefaultCameraID string
	Build           BuildFunc
	Logger          *slog.Logger
}

// Registry owns at most one live Identity. It is created once at
// application start and shared by whoever needs the device identity.
// Construction is serialised so concurrent callers observe the same
// instance and each camera id is derived once.
type Registry struct {
	mu              sync.Mutex
	build           BuildFunc
	defaultCameraID string
	current         *Identity
	logger          *slog.Logger
}

func NewRegistry(opts RegistryOptions) *Registry {
	return &Registry{
		build:           opts.Build,
		defaultCameraID: opts.DefaultCameraID,
		logger:          privacylog.OrDiscard(opts.Logger),
	}
}

// Get returns the cached identity, constructing it with the default camera
// id on first use. Failed constructions are not cached.
func (r *Registry) Get() (*Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current != nil {
		return r.current, nil
	}
	return r.replaceLocked(r.defaultCameraID)
}

// Rekey makes cameraID the live identity's camera id. When it differs from
// the cached one the identity is re-derived from scratch (fingerprint
// recomputed, salt re-read) and replaces the cached instance. The replaced
// instance is never returned by the registry again; callers still holding
// it keep a working identity for the old key.
func (r *Registry) Rekey(cameraID string) (*Identity, error) {
	cameraID = strings.TrimSpace(cameraID)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current != nil && r.current.CameraID() == cameraID {
		return r.current, nil
	}
	return r.replaceLocked(cameraID)
}

// Resolve is Get for an empty camera id and Rekey otherwise.
func (r *Registry) Resolve(cameraID string) (*Identity, error) {
	if strings.TrimSpace(cameraID) == "" {
		return r.Get()
	}
	return r.Rekey(cameraID)
}

// Current returns the cached identity without constructing one.
func (r *Registry) Current() (*Identity, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current, r.current != nil
}

// CameraID is the camera id of the live identity, or "" when none exists.
func (r *Registry) CameraID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current.CameraID()
}

func (r *Registry) replaceLocked(cameraID string) (*Identity, error) {
	if r.build == nil {
		return nil, ErrInitialization
	}
	next, err := r.build(cameraID)
	if err != nil {
		return nil, err
	}
	if prev := r.current; prev != nil {
		r.logger.Info("device identity re-keyed",
			"camera_id", cameraID,
			"previous_address", prev.Address(),
			"address", next.Address(),
		)
	}
	r.current = next
	return next, nil
}
