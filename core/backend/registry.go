// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package backend

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/carevine/carevine/core/logger"
)

// ErrRegistrationCollision is the fatal boot error for ambiguous
// registrations: duplicate configuration keys or two operations binding
// the same verb and path. Unlike a malformed entry, a collision must not
// run silently.
var ErrRegistrationCollision = errors.New("registration collision")

// Factory creates a handler family. A factory returning an error marks
// the referencing configuration entry as malformed.
type Factory func() (HandlerFamily, error)

// HandlerRegistry is the closed set of handler families a configuration
// can reference by name. Families are registered at boot, before the
// configuration is loaded; there is no open ended dynamic resolution.
type HandlerRegistry struct {
	factories map[string]Factory
}

// NewHandlerRegistry creates an empty handler registry
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{factories: make(map[string]Factory)}
}

// Register adds a named handler family factory to the registry.
// Registering the same name twice panics, that is a programming error.
func (hr *HandlerRegistry) Register(name string, factory Factory) *HandlerRegistry {
	if _, ok := hr.factories[name]; ok {
		panic(fmt.Sprintf("handler family %s registered twice", name))
	}
	hr.factories[name] = factory
	return hr
}

// ResourceDescriptor binds a configuration key to a loaded handler family
type ResourceDescriptor struct {
	Key    string
	Family HandlerFamily
}

// Diagnostic describes a configuration entry that was skipped at load time
type Diagnostic struct {
	ConfigKey string `json:"config_key"`
	Reason    string `json:"reason"`
}

// Load validates the configuration against the registry. Every entry
// whose handler reference resolves to a well formed handler family
// yields a descriptor; malformed entries are skipped and reported as
// diagnostics, in addition to being logged. Descriptor order is
// configuration order.
//
// Duplicate resource keys are a fatal ErrRegistrationCollision: a
// silently overwritten resource is an unresolvable ambiguity, not a
// degraded one.
func (hr *HandlerRegistry) Load(config Configuration) ([]ResourceDescriptor, []Diagnostic, error) {
	rlog := logger.Default()

	var descriptors []ResourceDescriptor
	var diagnostics []Diagnostic
	seen := map[string]bool{}

	skip := func(configKey, reason string) {
		diagnostics = append(diagnostics, Diagnostic{ConfigKey: configKey, Reason: reason})
		rlog.WithFields(logrus.Fields{
			"configKey": configKey,
			"reason":    reason,
		}).Warningln("skipping invalid resource configuration entry")
	}

	for i, rc := range config.Resources {
		configKey := rc.Key
		if len(configKey) == 0 {
			configKey = strconv.Itoa(i)
		}
		if len(rc.Key) == 0 {
			skip(configKey, "missing resource key")
			continue
		}
		if seen[rc.Key] {
			return nil, diagnostics, fmt.Errorf("%w: duplicate resource key %q", ErrRegistrationCollision, rc.Key)
		}
		seen[rc.Key] = true

		name, ok := rc.handlerName()
		if !ok {
			skip(configKey, "handler reference is not a string identifier")
			continue
		}
		if len(name) == 0 {
			skip(configKey, "empty handler reference")
			continue
		}
		factory, ok := hr.factories[name]
		if !ok {
			skip(configKey, "unknown handler family "+strconv.Quote(name))
			continue
		}
		family, err := factory()
		if err != nil {
			skip(configKey, "handler family "+strconv.Quote(name)+" is malformed: "+err.Error())
			continue
		}
		descriptors = append(descriptors, ResourceDescriptor{Key: rc.Key, Family: family})
	}
	return descriptors, diagnostics, nil
}
