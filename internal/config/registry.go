package config

import (
	"fmt"
	"slices"

	"github.com/roach88/cohort/internal/app"
	"github.com/roach88/cohort/internal/groupsize"
)

// Registry holds every validated session config, app and room known to the
// process. It is assembled once at startup and never mutated afterwards, so
// it is safe to share across goroutines.
type Registry struct {
	apps      *app.Registry
	defaults  map[string]any
	configs   map[string]*SessionConfig
	order     []string
	rooms     map[string]*Room
	roomOrder []string
}

// NewRegistry validates each raw session config against defaults and apps.
func NewRegistry(apps *app.Registry, defaults map[string]any, raws []map[string]any, rooms []Room) (*Registry, error) {
	if apps == nil {
		apps, _ = app.NewRegistry()
	}
	r := &Registry{
		apps:     apps,
		defaults: deepCopy(defaults).(map[string]any),
		configs:  make(map[string]*SessionConfig, len(raws)),
		rooms:    make(map[string]*Room, len(rooms)),
	}

	for _, raw := range raws {
		cfg, err := Validate(raw, defaults, apps)
		if err != nil {
			return nil, err
		}
		if _, dup := r.configs[cfg.Name()]; dup {
			return nil, &Error{
				Code:    ErrCodeDuplicateConfig,
				Config:  cfg.Name(),
				Field:   "name",
				Value:   cfg.Name(),
				Message: "session config names must be unique",
			}
		}
		r.configs[cfg.Name()] = cfg
		r.order = append(r.order, cfg.Name())
	}

	for i := range rooms {
		room := rooms[i]
		if !nameRe.MatchString(room.Name) {
			return nil, &Error{
				Code:    ErrCodeInvalidName,
				Field:   "rooms.name",
				Value:   room.Name,
				Message: "room name must be alphanumeric with no spaces (underscores allowed)",
			}
		}
		if _, dup := r.rooms[room.Name]; dup {
			return nil, &Error{
				Code:    ErrCodeInvalidValue,
				Field:   "rooms.name",
				Value:   room.Name,
				Message: "room names must be unique",
			}
		}
		r.rooms[room.Name] = &room
		r.roomOrder = append(r.roomOrder, room.Name)
	}

	return r, nil
}

// Config returns the named session config.
func (r *Registry) Config(name string) (*SessionConfig, error) {
	cfg, ok := r.configs[name]
	if !ok {
		return nil, &NotFoundError{Kind: "session config", Name: name}
	}
	return cfg, nil
}

// Configs returns all session configs in declaration order.
func (r *Registry) Configs() []*SessionConfig {
	out := make([]*SessionConfig, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.configs[name])
	}
	return out
}

// Apps returns the app registry.
func (r *Registry) Apps() *app.Registry {
	return r.apps
}

// App resolves an app identifier, failing closed with a config error.
func (r *Registry) App(name string) (app.App, error) {
	a, ok := r.apps.Lookup(name)
	if !ok {
		return nil, &Error{
			Code:    ErrCodeUnknownApp,
			Field:   "app_sequence",
			Value:   name,
			Message: "app is not registered",
		}
	}
	return a, nil
}

// Room returns the named room.
func (r *Registry) Room(name string) (*Room, error) {
	room, ok := r.rooms[name]
	if !ok {
		return nil, &NotFoundError{Kind: "room", Name: name}
	}
	return room, nil
}

// Rooms returns all rooms in declaration order.
func (r *Registry) Rooms() []*Room {
	out := make([]*Room, 0, len(r.roomOrder))
	for _, name := range r.roomOrder {
		out = append(out, r.rooms[name])
	}
	return out
}

// Defaults returns a copy of the system-wide session config defaults.
func (r *Registry) Defaults() map[string]any {
	return deepCopy(r.defaults).(map[string]any)
}

// MinimumMultiple is the participant-count divisor for cfg: the LCM of each
// app's minimum group multiple, in app_sequence order.
func (r *Registry) MinimumMultiple(cfg *SessionConfig) (int, error) {
	specs := make([]groupsize.Spec, 0, len(cfg.appSequence))
	for _, name := range cfg.appSequence {
		a, err := r.App(name)
		if err != nil {
			return 0, err
		}
		specs = append(specs, a.PlayersPerGroup())
	}
	return groupsize.SessionMinimumMultiple(specs...), nil
}

// AppSummary describes one app of a session config for listings.
type AppSummary struct {
	Name      string `json:"name"`
	Doc       string `json:"doc,omitempty"`
	NumRounds int    `json:"num_rounds"`
}

// Summary describes a session config for the create-session listing.
type Summary struct {
	Name        string       `json:"name"`
	DisplayName string       `json:"display_name"`
	Doc         string       `json:"doc,omitempty"`
	Apps        []AppSummary `json:"app_sequence"`
	Divisor     int          `json:"lcm"`
}

// Summary builds the listing entry for the named config. App names are
// formatted for humans, with "(n rounds)" appended to multi-round apps.
func (r *Registry) Summary(name string) (Summary, error) {
	cfg, err := r.Config(name)
	if err != nil {
		return Summary{}, err
	}
	divisor, err := r.MinimumMultiple(cfg)
	if err != nil {
		return Summary{}, err
	}

	s := Summary{
		Name:        cfg.Name(),
		DisplayName: cfg.DisplayName(),
		Doc:         cfg.Doc(),
		Divisor:     divisor,
	}
	for _, appName := range cfg.appSequence {
		a, _ := r.apps.Lookup(appName)
		formatted := app.FormatName(appName)
		if a.NumRounds() > 1 {
			formatted = fmt.Sprintf("%s (%d rounds)", formatted, a.NumRounds())
		}
		entry := AppSummary{Name: formatted, NumRounds: a.NumRounds()}
		if d, ok := a.(*app.Descriptor); ok {
			entry.Doc = d.Doc
		}
		s.Apps = append(s.Apps, entry)
	}
	return s, nil
}

// ConfigNames returns the session config names in declaration order.
func (r *Registry) ConfigNames() []string {
	return slices.Clone(r.order)
}
