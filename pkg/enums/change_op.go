package enums

import "fmt"

// ChangeOp is the operation carried by a change-feed event.
type ChangeOp string

const (
	ChangeOpInsert ChangeOp = "insert"
	ChangeOpUpdate ChangeOp = "update"
	ChangeOpDelete ChangeOp = "delete"
)

var validChangeOps = []ChangeOp{
	ChangeOpInsert,
	ChangeOpUpdate,
	ChangeOpDelete,
}

// String implements fmt.Stringer.
func (o ChangeOp) String() string {
	return string(o)
}

// IsValid reports whether the value is a known ChangeOp.
func (o ChangeOp) IsValid() bool {
	for _, candidate := range validChangeOps {
		if candidate == o {
			return true
		}
	}
	return false
}

// ParseChangeOp converts raw input into a ChangeOp.
func ParseChangeOp(value string) (ChangeOp, error) {
	for _, candidate := range validChangeOps {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid change op %q", value)
}
