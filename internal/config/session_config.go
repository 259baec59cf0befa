package config

import (
	"fmt"
	"log/slog"
	"maps"
	"math"
	"regexp"
	"slices"
	"strings"

	"github.com/roach88/cohort/internal/app"
	"github.com/roach88/cohort/internal/money"
)

// RequiredKeys must be present in every session config after defaults are merged.
var RequiredKeys = []string{
	"name",
	"app_sequence",
	"participation_fee",
	"num_bots",
	"display_name",
	"real_world_currency_per_point",
	"num_demo_participants",
	"doc",
}

var nameRe = regexp.MustCompile(`^\w+$`)

// SessionConfig is a validated, normalized and immutable session config.
type SessionConfig struct {
	name                string
	displayName         string
	doc                 string
	appSequence         []string
	participationFee    money.Currency
	currencyPerPoint    money.Rate
	numBots             int
	numDemoParticipants int
	randomStartOrder    bool
	values              map[string]any
}

// Name is the config's identifier, matching ^\w+$.
func (c *SessionConfig) Name() string { return c.name }

// DisplayName is the human-readable title.
func (c *SessionConfig) DisplayName() string { return c.displayName }

// Doc is the trimmed description, possibly empty.
func (c *SessionConfig) Doc() string { return c.doc }

// AppSequence returns a copy of the ordered app names.
func (c *SessionConfig) AppSequence() []string { return slices.Clone(c.appSequence) }

// ParticipationFee is the show-up fee, fixed to two decimal places.
func (c *SessionConfig) ParticipationFee() money.Currency { return c.participationFee }

// RealWorldCurrencyPerPoint converts points to currency, quantized to five places.
func (c *SessionConfig) RealWorldCurrencyPerPoint() money.Rate { return c.currencyPerPoint }

// NumBots is the participant count for bot and test sessions.
func (c *SessionConfig) NumBots() int { return c.numBots }

// NumDemoParticipants is the participant count for demo sessions.
func (c *SessionConfig) NumDemoParticipants() int { return c.numDemoParticipants }

// RandomStartOrder reports whether participants are shuffled before grouping.
func (c *SessionConfig) RandomStartOrder() bool { return c.randomStartOrder }

// Get returns a copy of any config value, including author-defined extensions.
func (c *SessionConfig) Get(key string) (any, bool) {
	v, ok := c.values[key]
	if !ok {
		return nil, false
	}
	return deepCopy(v), true
}

// Map returns a deep copy of the normalized config. Currency fields are
// rendered as decimal strings so the map round-trips through JSON exactly.
func (c *SessionConfig) Map() map[string]any {
	out := deepCopy(c.values).(map[string]any)
	out["app_sequence"] = slices.Clone(c.appSequence)
	out["participation_fee"] = c.participationFee.String()
	out["real_world_currency_per_point"] = c.currencyPerPoint.String()
	return out
}

// Validate merges raw over defaults, checks required keys, name format and
// app_sequence, and coerces monetary fields. apps may be nil, in which case
// app identifiers are not resolved.
func Validate(raw, defaults map[string]any, apps *app.Registry) (*SessionConfig, error) {
	merged := map[string]any{"doc": ""}
	maps.Copy(merged, deepCopy(defaults).(map[string]any))
	maps.Copy(merged, deepCopy(raw).(map[string]any))

	nameForErrors, _ := merged["name"].(string)

	if _, hasFee := merged["participation_fee"]; !hasFee {
		if fixed, ok := merged["fixed_pay"]; ok {
			slog.Warn("\"fixed_pay\" is deprecated; rename it to \"participation_fee\"", "config", nameForErrors)
			merged["participation_fee"] = fixed
		}
	}

	for _, key := range RequiredKeys {
		if _, ok := merged[key]; !ok {
			return nil, &Error{
				Code:    ErrCodeMissingKey,
				Config:  nameForErrors,
				Field:   key,
				Message: fmt.Sprintf("required key %q is missing", key),
			}
		}
	}

	name, ok := merged["name"].(string)
	if !ok || !nameRe.MatchString(name) {
		return nil, &Error{
			Code:    ErrCodeInvalidName,
			Field:   "name",
			Value:   merged["name"],
			Message: "name must be alphanumeric with no spaces (underscores allowed)",
		}
	}

	seq, err := appSequence(name, merged["app_sequence"])
	if err != nil {
		return nil, err
	}
	if apps != nil {
		for _, appName := range seq {
			if _, ok := apps.Lookup(appName); !ok {
				return nil, &Error{
					Code:    ErrCodeUnknownApp,
					Config:  name,
					Field:   "app_sequence",
					Value:   appName,
					Message: "app is not registered",
				}
			}
		}
	}

	cfg := &SessionConfig{name: name, appSequence: seq}

	if cfg.displayName, err = stringField(name, merged, "display_name"); err != nil {
		return nil, err
	}
	doc, err := stringField(name, merged, "doc")
	if err != nil {
		return nil, err
	}
	cfg.doc = strings.TrimSpace(doc)
	merged["doc"] = cfg.doc

	if cfg.participationFee, err = money.ParseCurrency(merged["participation_fee"]); err != nil {
		return nil, invalidValue(name, "participation_fee", merged["participation_fee"], err)
	}
	if cfg.currencyPerPoint, err = money.ParseRate(merged["real_world_currency_per_point"]); err != nil {
		return nil, invalidValue(name, "real_world_currency_per_point", merged["real_world_currency_per_point"], err)
	}
	if cfg.numBots, err = countField(name, merged, "num_bots"); err != nil {
		return nil, err
	}
	if cfg.numDemoParticipants, err = countField(name, merged, "num_demo_participants"); err != nil {
		return nil, err
	}
	merged["num_bots"] = cfg.numBots
	merged["num_demo_participants"] = cfg.numDemoParticipants

	if v, ok := merged["random_start_order"]; ok && v != nil {
		b, isBool := v.(bool)
		if !isBool {
			return nil, invalidValue(name, "random_start_order", v, fmt.Errorf("must be a boolean"))
		}
		cfg.randomStartOrder = b
	}

	delete(merged, "fixed_pay")
	cfg.values = merged
	return cfg, nil
}

func appSequence(configName string, v any) ([]string, error) {
	var seq []string
	switch list := v.(type) {
	case []string:
		seq = slices.Clone(list)
	case []any:
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, invalidValue(configName, "app_sequence", v, fmt.Errorf("entries must be strings"))
			}
			seq = append(seq, s)
		}
	default:
		return nil, invalidValue(configName, "app_sequence", v, fmt.Errorf("must be a list of app names"))
	}

	if len(seq) == 0 {
		return nil, &Error{
			Code:    ErrCodeEmptyAppSequence,
			Config:  configName,
			Field:   "app_sequence",
			Message: "need at least one app",
		}
	}

	seen := make(map[string]bool, len(seq))
	for _, s := range seq {
		if seen[s] {
			return nil, &Error{
				Code:    ErrCodeDuplicateApp,
				Config:  configName,
				Field:   "app_sequence",
				Value:   s,
				Message: "app_sequence must not contain duplicates; use num_rounds for repeated play",
			}
		}
		seen[s] = true
	}
	return seq, nil
}

func stringField(configName string, m map[string]any, key string) (string, error) {
	s, ok := m[key].(string)
	if !ok {
		return "", invalidValue(configName, key, m[key], fmt.Errorf("must be a string"))
	}
	return s, nil
}

func countField(configName string, m map[string]any, key string) (int, error) {
	var n int
	switch v := m[key].(type) {
	case int:
		n = v
	case int64:
		n = int(v)
	case float64:
		if v != math.Trunc(v) {
			return 0, invalidValue(configName, key, v, fmt.Errorf("must be an integer"))
		}
		n = int(v)
	default:
		return 0, invalidValue(configName, key, m[key], fmt.Errorf("must be an integer"))
	}
	if n < 0 {
		return 0, invalidValue(configName, key, n, fmt.Errorf("must not be negative"))
	}
	return n, nil
}

func invalidValue(configName, field string, value any, err error) *Error {
	return &Error{
		Code:    ErrCodeInvalidValue,
		Config:  configName,
		Field:   field,
		Value:   value,
		Message: err.Error(),
	}
}

// deepCopy clones the map/slice structure of decoded config values so a
// frozen config never shares mutable state with its input.
func deepCopy(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = deepCopy(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = deepCopy(item)
		}
		return out
	case []string:
		return slices.Clone(val)
	default:
		return val
	}
}
