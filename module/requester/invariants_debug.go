//go:build debug

package requester

import (
	"fmt"
)

// invariant panics: debug builds stop at the first inconsistency.
func (c *Core) invariant(format string, args ...interface{}) {
	panic(fmt.Sprintf("request scheduler invariant violated: "+format, args...))
}
