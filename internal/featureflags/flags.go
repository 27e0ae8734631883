// Package featureflags holds the runtime switches operators can flip without
// a redeploy. Flags live in Postgres and are served from an in-process
// snapshot.
package featureflags

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/saferoute/saferoute/internal/safety"
)

// Flag keys.
const (
	// FlagScoringModel overrides the configured risk model ("density" or
	// "additive"). Empty keeps the configured model.
	FlagScoringModel = "scoring_model"

	// FlagDisableGraphRouting stops route requests from using the safety
	// graph, e.g. while a bad build is being investigated.
	FlagDisableGraphRouting = "disable_graph_routing"
)

// ErrInvalidFlag is returned for an unknown key or a value of the wrong type.
var ErrInvalidFlag = errors.New("invalid feature flag")

// Definition describes one known flag.
type Definition struct {
	Key         string
	Description string
	Default     any
	check       func(any) error
}

var definitions = map[string]Definition{
	FlagScoringModel: {
		Key:         FlagScoringModel,
		Description: "Risk model override: density, additive or empty for the configured model",
		Default:     "",
		check: func(v any) error {
			s, ok := v.(string)
			if !ok {
				return errors.New("must be a string")
			}
			if s == "" {
				return nil
			}
			_, err := safety.ParseModel(s)
			return err
		},
	},
	FlagDisableGraphRouting: {
		Key:         FlagDisableGraphRouting,
		Description: "Serve routes from the directions provider only",
		Default:     false,
		check: func(v any) error {
			if _, ok := v.(bool); !ok {
				return errors.New("must be a boolean")
			}
			return nil
		},
	},
}

// Lookup returns the definition of key.
func Lookup(key string) (Definition, bool) {
	d, ok := definitions[key]
	return d, ok
}

// Flag is a flag's current value.
type Flag struct {
	Key         string    `json:"key"`
	Value       any       `json:"value"`
	Description string    `json:"description,omitempty"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Bool returns the value as a boolean, or def when unset or not a boolean.
func (f *Flag) Bool(def bool) bool {
	if f == nil {
		return def
	}
	if v, ok := f.Value.(bool); ok {
		return v
	}
	return def
}

// String returns the value as a string, or def when unset or not a string.
func (f *Flag) String(def string) string {
	if f == nil {
		return def
	}
	if v, ok := f.Value.(string); ok {
		return v
	}
	return def
}

// FlagList is the body of GET /v1/admin/feature-flags.
type FlagList struct {
	Items []Flag `json:"items"`
}

func newFlagList(flags map[string]*Flag) FlagList {
	items := make([]Flag, 0, len(flags))
	for _, f := range flags {
		items = append(items, *f)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Key < items[j].Key })
	return FlagList{Items: items}
}

// FlagUpdate sets one flag.
type FlagUpdate struct {
	Key   string `json:"key" validate:"required"`
	Value any    `json:"value"`
}

// Validate checks u against its flag's definition.
func (u FlagUpdate) Validate() error {
	d, ok := definitions[u.Key]
	if !ok {
		return fmt.Errorf("%w: unknown key %q", ErrInvalidFlag, u.Key)
	}
	if err := d.check(u.Value); err != nil {
		return fmt.Errorf("%w: %s %v", ErrInvalidFlag, u.Key, err)
	}
	return nil
}

// FlagUpdateRequest is the body of PUT /v1/admin/feature-flags. Reason is
// kept in the change log.
type FlagUpdateRequest struct {
	Updates []FlagUpdate `json:"updates" validate:"required,min=1,dive"`
	Reason  string       `json:"reason" validate:"required,max=500"`
}

// Change records who changed a batch of flags and why.
type Change struct {
	Subject string
	Reason  string
	At      time.Time
}

// DefaultFlags returns every known flag at its default value.
func DefaultFlags() map[string]*Flag {
	flags := make(map[string]*Flag, len(definitions))
	for key, d := range definitions {
		flags[key] = &Flag{Key: key, Value: d.Default, Description: d.Description}
	}
	return flags
}
