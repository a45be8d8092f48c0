package feature

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/danmuck/ocppctl/internal/protocol"
)

var (
	ErrDuplicateAction = errors.New("feature: duplicate action")
	ErrInvalidFeature  = errors.New("feature: invalid feature")
	ErrUnknownAction   = errors.New("feature: unknown action")
)

// Profile is a named capability set. 1.6 calls these profiles and 2.0.1 calls
// them functional blocks; both register the same way.
type Profile struct {
	Name     string
	Features []Feature
}

// Bind returns a copy of p with handlers attached by action name.
func (p Profile) Bind(handlers map[string]Handler) (Profile, error) {
	out := Profile{Name: p.Name, Features: make([]Feature, len(p.Features))}
	copy(out.Features, p.Features)
	for action, h := range handlers {
		found := false
		for i := range out.Features {
			if out.Features[i].Action == action {
				out.Features[i].Handler = h
				found = true
			}
		}
		if !found {
			return Profile{}, fmt.Errorf("%w: %q not in profile %s", ErrUnknownAction, action, p.Name)
		}
	}
	return out, nil
}

// MustBind is Bind that panics, for static wiring at startup.
func (p Profile) MustBind(handlers map[string]Handler) Profile {
	out, err := p.Bind(handlers)
	if err != nil {
		panic(err)
	}
	return out
}

// Registry is the immutable action table for one protocol version and one
// call origin. It is safe for concurrent use.
type Registry struct {
	version protocol.Version
	origin  Origin
	items   map[string]Feature
}

// NewRegistry collects the features of profiles initiated by origin.
// Features of the other origin are skipped, so one profile can feed both
// directions.
func NewRegistry(version protocol.Version, origin Origin, profiles ...Profile) (*Registry, error) {
	if !version.Valid() {
		return nil, fmt.Errorf("%w: %q", protocol.ErrUnsupportedVersion, version)
	}
	r := &Registry{version: version, origin: origin, items: make(map[string]Feature)}
	for _, p := range profiles {
		for _, f := range p.Features {
			if f.Origin != origin {
				continue
			}
			if err := validateFeature(f); err != nil {
				return nil, fmt.Errorf("%w (profile %s)", err, p.Name)
			}
			if _, ok := r.items[f.Action]; ok {
				return nil, fmt.Errorf("%w: %s %s %q", ErrDuplicateAction, version, origin, f.Action)
			}
			r.items[f.Action] = f
		}
	}
	return r, nil
}

// MustRegistry is NewRegistry that panics; duplicate actions are a startup bug.
func MustRegistry(version protocol.Version, origin Origin, profiles ...Profile) *Registry {
	r, err := NewRegistry(version, origin, profiles...)
	if err != nil {
		panic(err)
	}
	return r
}

func validateFeature(f Feature) error {
	if strings.TrimSpace(f.Action) == "" {
		return fmt.Errorf("%w: empty action", ErrInvalidFeature)
	}
	if f.NewRequest == nil || f.NewConfirmation == nil {
		return fmt.Errorf("%w: %q missing payload constructors", ErrInvalidFeature, f.Action)
	}
	return nil
}

func (r *Registry) Version() protocol.Version {
	return r.version
}

func (r *Registry) Origin() Origin {
	return r.origin
}

func (r *Registry) Lookup(action string) (Feature, bool) {
	f, ok := r.items[action]
	return f, ok
}

// HandlerFor returns the bound handler. ok is false when the action is
// unknown or known without a handler.
func (r *Registry) HandlerFor(action string) (Handler, bool) {
	f, ok := r.items[action]
	if !ok || f.Handler == nil {
		return nil, false
	}
	return f.Handler, true
}

// Resolve maps an outbound request to its feature.
func (r *Registry) Resolve(req Request) (Feature, error) {
	if req == nil {
		return Feature{}, fmt.Errorf("%w: nil request", ErrUnknownAction)
	}
	f, ok := r.items[req.Action()]
	if !ok {
		return Feature{}, fmt.Errorf("%w: %s %s %q", ErrUnknownAction, r.version, r.origin, req.Action())
	}
	return f, nil
}

// Actions returns registered action names in sorted order.
func (r *Registry) Actions() []string {
	out := make([]string, 0, len(r.items))
	for action := range r.items {
		out = append(out, action)
	}
	sort.Strings(out)
	return out
}

// Set pairs the registries one endpoint needs: calls it serves and calls it
// makes.
type Set struct {
	Inbound  *Registry
	Outbound *Registry
}

// NewSet builds the registry pair for the endpoint playing self.
func NewSet(version protocol.Version, self Origin, profiles ...Profile) (Set, error) {
	inbound, err := NewRegistry(version, self.Peer(), profiles...)
	if err != nil {
		return Set{}, err
	}
	outbound, err := NewRegistry(version, self, profiles...)
	if err != nil {
		return Set{}, err
	}
	return Set{Inbound: inbound, Outbound: outbound}, nil
}
