package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"

	"github.com/roach88/cohort/internal/app"
	"github.com/roach88/cohort/internal/groupsize"
)

//go:embed schema.cue
var manifestSchema string

// Manifest is the static experiment manifest: apps, session configs, rooms
// and system-wide defaults. It is written by the experimenter as YAML or CUE.
type Manifest struct {
	SessionConfigDefaults map[string]any   `yaml:"session_config_defaults" json:"session_config_defaults"`
	Apps                  []AppManifest    `yaml:"apps" json:"apps"`
	SessionConfigs        []map[string]any `yaml:"session_configs" json:"session_configs"`
	Rooms                 []RoomManifest   `yaml:"rooms" json:"rooms"`
}

// AppManifest declares one app.
type AppManifest struct {
	Name            string `yaml:"name" json:"name"`
	NumRounds       int    `yaml:"num_rounds" json:"num_rounds"`
	PlayersPerGroup any    `yaml:"players_per_group" json:"players_per_group"`

	// PageSequence entries are either a page name or {name, wait}.
	PageSequence []any `yaml:"page_sequence" json:"page_sequence"`

	Doc            string         `yaml:"doc" json:"doc"`
	SubsessionVars map[string]any `yaml:"subsession_vars" json:"subsession_vars"`
	PlayerVars     map[string]any `yaml:"player_vars" json:"player_vars"`
}

// RoomManifest declares one room.
type RoomManifest struct {
	Name                 string `yaml:"name" json:"name"`
	DisplayName          string `yaml:"display_name" json:"display_name"`
	ParticipantLabelFile string `yaml:"participant_label_file" json:"participant_label_file"`
	UseSecureURLs        *bool  `yaml:"use_secure_urls" json:"use_secure_urls"`
}

// LoadManifest reads a .yaml/.yml or .cue manifest. Relative
// participant_label_file paths are resolved against the manifest's directory.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, manifestError(path, fmt.Errorf("read manifest: %w", err))
	}
	m, err := ParseManifest(data, path)
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(path)
	for i := range m.Rooms {
		f := m.Rooms[i].ParticipantLabelFile
		if f != "" && !filepath.IsAbs(f) {
			m.Rooms[i].ParticipantLabelFile = filepath.Join(dir, f)
		}
	}
	return m, nil
}

// ParseManifest decodes manifest bytes; filename selects the format by
// extension and is used in error positions. Both formats are checked against
// the embedded CUE schema before decoding.
func ParseManifest(data []byte, filename string) (*Manifest, error) {
	ctx := cuecontext.New()

	var (
		value cue.Value
		m     Manifest
	)
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		var doc any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, manifestError(filename, fmt.Errorf("parse yaml: %w", err))
		}
		value = ctx.Encode(doc)
		if err := validateSchema(ctx, value); err != nil {
			return nil, manifestError(filename, err)
		}
		if err := yaml.Unmarshal(data, &m); err != nil {
			return nil, manifestError(filename, fmt.Errorf("decode yaml: %w", err))
		}
	case ".cue":
		value = ctx.CompileBytes(data, cue.Filename(filename))
		if err := value.Err(); err != nil {
			return nil, manifestError(filename, fmt.Errorf("compile cue: %w", err))
		}
		if err := validateSchema(ctx, value); err != nil {
			return nil, manifestError(filename, err)
		}
		raw, err := value.MarshalJSON()
		if err != nil {
			return nil, manifestError(filename, fmt.Errorf("export cue: %w", err))
		}
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, manifestError(filename, fmt.Errorf("decode cue export: %w", err))
		}
	default:
		return nil, manifestError(filename, fmt.Errorf("unsupported manifest extension %q (want .yaml, .yml or .cue)", filepath.Ext(filename)))
	}
	return &m, nil
}

func validateSchema(ctx *cue.Context, v cue.Value) error {
	schema := ctx.CompileString(manifestSchema, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile manifest schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Manifest"))
	if err := def.Unify(v).Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("manifest does not match schema: %w", err)
	}
	return nil
}

func manifestError(path string, err error) *Error {
	return &Error{
		Code:    ErrCodeInvalidManifest,
		Field:   path,
		Message: "cannot load manifest",
		Err:     err,
	}
}

// BuildApps converts the declared apps into app descriptors.
func (m *Manifest) BuildApps() ([]app.App, error) {
	apps := make([]app.App, 0, len(m.Apps))
	for _, am := range m.Apps {
		spec, err := groupsize.Parse(am.PlayersPerGroup)
		if err != nil {
			return nil, &Error{
				Code:    ErrCodeInvalidValue,
				Field:   "apps." + am.Name + ".players_per_group",
				Value:   am.PlayersPerGroup,
				Message: "invalid group size",
				Err:     err,
			}
		}
		pages, err := parsePages(am)
		if err != nil {
			return nil, err
		}
		apps = append(apps, &app.Descriptor{
			AppName:        am.Name,
			Rounds:         am.NumRounds,
			GroupSpec:      spec,
			Pages:          pages,
			Doc:            strings.TrimSpace(am.Doc),
			SubsessionVars: am.SubsessionVars,
			PlayerVars:     am.PlayerVars,
		})
	}
	return apps, nil
}

func parsePages(am AppManifest) ([]app.Page, error) {
	pages := make([]app.Page, 0, len(am.PageSequence))
	for i, entry := range am.PageSequence {
		switch e := entry.(type) {
		case string:
			pages = append(pages, app.Page{Name: e})
		case map[string]any:
			name, _ := e["name"].(string)
			wait, _ := e["wait"].(bool)
			pages = append(pages, app.Page{Name: name, Wait: wait})
		default:
			return nil, &Error{
				Code:    ErrCodeInvalidValue,
				Field:   fmt.Sprintf("apps.%s.page_sequence[%d]", am.Name, i),
				Value:   entry,
				Message: "page must be a name or {name, wait}",
			}
		}
	}
	return pages, nil
}

// BuildRegistry validates everything in the manifest and returns the
// process-wide registry.
func (m *Manifest) BuildRegistry() (*Registry, error) {
	apps, err := m.BuildApps()
	if err != nil {
		return nil, err
	}
	appRegistry, err := app.NewRegistry(apps...)
	if err != nil {
		return nil, &Error{Code: ErrCodeInvalidValue, Field: "apps", Message: "invalid app", Err: err}
	}

	rooms := make([]Room, 0, len(m.Rooms))
	for _, rm := range m.Rooms {
		secure := true
		if rm.UseSecureURLs != nil {
			secure = *rm.UseSecureURLs
		}
		rooms = append(rooms, Room{
			Name:                 rm.Name,
			DisplayName:          rm.DisplayName,
			ParticipantLabelFile: rm.ParticipantLabelFile,
			UseSecureURLs:        secure,
		})
	}

	return NewRegistry(appRegistry, m.SessionConfigDefaults, m.SessionConfigs, rooms)
}

// LoadRegistry loads a manifest file and builds its registry.
func LoadRegistry(path string) (*Registry, error) {
	m, err := LoadManifest(path)
	if err != nil {
		return nil, err
	}
	return m.BuildRegistry()
}
