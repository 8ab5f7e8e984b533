package datasets

import "fmt"

type WarningCode string

const (
	WarnUpdateRemoved      WarningCode = "update-removed"
	WarnRemoveMissing      WarningCode = "remove-missing"
	WarnRemoveRemoved      WarningCode = "remove-removed"
	WarnReplacedIdentifier WarningCode = "replaced-identifier"
)

// Warning is a soft inconsistency found while applying an operation.
type Warning struct {
	Code       WarningCode
	Name       string
	Identifier string
	Message    string
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %s (%s:%s)", w.Code, w.Message, w.Name, w.Identifier)
}
