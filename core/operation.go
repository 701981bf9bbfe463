/*Package core provides the shared vocabulary of the carevine backend:
the resource operations and the notification interface.
*/
package core

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"
)

// Operation represents a resource operation, one of Create, Read, Update, Delete, List
type Operation string

// all supported resource operations
const (
	OperationCreate Operation = "create"
	OperationRead   Operation = "read"
	OperationUpdate Operation = "update"
	OperationDelete Operation = "delete"
	OperationList   Operation = "list"
)

// UnmarshalJSON is a custom JSON unmarshaller which rejects unknown operations
func (o *Operation) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*o = Operation(s)
	switch *o {
	case OperationCreate, OperationRead, OperationUpdate, OperationDelete, OperationList:
		return nil
	default:
		return fmt.Errorf("%s is not a valid operation", s)
	}
}

// Notifier is an interface to receive resource change notifications
type Notifier interface {
	Notify(resource string, operation Operation, payload []byte)
}

// Plural returns the plural form of the passed singular string.
//
// This is the algorithm used to create idiomatic REST routes
func Plural(singular string) string {
	if strings.HasSuffix(singular, "y") {
		return strings.TrimSuffix(singular, "y") + "ies"
	}
	return singular + "s"
}
