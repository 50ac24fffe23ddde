//go:build !debug

package requester

import (
	"fmt"
)

// invariant logs the inconsistency. The caller returns without touching
// shared state.
func (c *Core) invariant(format string, args ...interface{}) {
	c.log.Error().Str("violation", fmt.Sprintf(format, args...)).Msg("request scheduler invariant violated")
}
