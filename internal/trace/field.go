package trace

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rosdevs/pdevs-sim/internal/handle"
)

// Field is one key/value pair in a trace record. Repr already holds
// the fully formatted value — numeric handles as "0x<HEX>", strings
// quoted, GIDs as indexed arrays — per the external trace contract.
// Precomputing Repr at
// construction keeps FormatLine a pure string-join with no type
// switches, and keeps the formatting rules in one place per field
// constructor instead of scattered through every call site.
type Field struct {
	Key  string
	Repr string
}

// Str renders a quoted string value.
func Str(key, val string) Field {
	return Field{Key: key, Repr: strconv.Quote(val)}
}

// Int renders a signed integer value.
func Int(key string, val int64) Field {
	return Field{Key: key, Repr: strconv.FormatInt(val, 10)}
}

// Uint renders an unsigned integer value.
func Uint(key string, val uint64) Field {
	return Field{Key: key, Repr: strconv.FormatUint(val, 10)}
}

// Bool renders a boolean value.
func Bool(key string, val bool) Field {
	return Field{Key: key, Repr: strconv.FormatBool(val)}
}

// Float renders a floating-point value.
func Float(key string, val float64) Field {
	return Field{Key: key, Repr: strconv.FormatFloat(val, 'g', -1, 64)}
}

// Handle renders a per-layer handle as "0x<UPPERCASE_HEX>".
func Handle[T ~uint64](key string, h T) Field {
	return Field{Key: key, Repr: handle.Hex(h)}
}

// GID renders a GUID's component words as an indexed array, e.g.
// "[ [0]=1, [1]=15 ]".
func GID(key string, words []uint64) Field {
	parts := make([]string, len(words))
	for i, w := range words {
		parts[i] = fmt.Sprintf("[%d]=%d", i, w)
	}
	return Field{Key: key, Repr: "[ " + strings.Join(parts, ", ") + " ]"}
}

// Raw renders val with its default fmt verb. Used sparingly, for field
// values (e.g. a Duration, an enum) that do not fit the typed helpers
// above but still need to appear in a trace record.
func Raw(key string, val any) Field {
	return Field{Key: key, Repr: fmt.Sprint(val)}
}
