package querycache

import (
	"strconv"
	"strings"
)

// RequestKey identifies a cacheable call: an operation name plus its
// normalized parameters. Keys compare structurally with ==.
type RequestKey struct {
	op     string
	params string
}

// NewKey builds a key. Parameters are kept in order.
func NewKey(op string, params ...string) RequestKey {
	quoted := make([]string, len(params))
	for i, p := range params {
		quoted[i] = strconv.Quote(p)
	}
	return RequestKey{op: op, params: strings.Join(quoted, ",")}
}

// Op returns the operation name.
func (k RequestKey) Op() string {
	return k.op
}

func (k RequestKey) String() string {
	return k.op + "(" + k.params + ")"
}
