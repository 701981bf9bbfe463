// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package backend

import (
	"github.com/goccy/go-json"
)

// Configuration holds a complete backend configuration
type Configuration struct {
	Resources []ResourceConfiguration `json:"resources"`
}

// ResourceConfiguration maps a resource key to a handler family
// reference. The handler value must be a string identifier naming a
// registered handler family; anything else makes the entry malformed.
// Malformed entries are skipped at load time, they do not abort boot.
type ResourceConfiguration struct {
	Key         string          `json:"key"`
	Handler     json.RawMessage `json:"handler"`
	Description string          `json:"description"`
}

// handlerName returns the handler reference as string identifier, or
// false if the value is not a string.
func (rc ResourceConfiguration) handlerName() (string, bool) {
	var name string
	if err := json.Unmarshal(rc.Handler, &name); err != nil {
		return "", false
	}
	return name, true
}
