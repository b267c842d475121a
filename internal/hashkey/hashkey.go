// Package hashkey derives short deterministic memoization keys from
// arbitrary query descriptors.
package hashkey

import (
	"fmt"
	"io"

	"github.com/cespare/xxhash/v2"
	"github.com/davecgh/go-spew/spew"
)

// dumper renders values without pointer addresses or capacities and with
// map keys sorted, so structurally-equal values produce identical output.
var dumper = spew.ConfigState{
	Indent:                  " ",
	SortKeys:                true,
	DisablePointerAddresses: true,
	DisableCapacities:       true,
	DisableMethods:          true,
}

// Sum returns a 16 character hex key for v.
//
// v may hold maps, slices, structs, pointers and nil values. Function and
// channel values must not be passed: they are rendered by address and would
// break determinism. Callers identify behaviour by a stable name instead.
func Sum(v any) string {
	h := xxhash.New()
	Write(h, v)
	return fmt.Sprintf("%016x", h.Sum64())
}

// Write streams the canonical rendering of v into w.
func Write(w io.Writer, v any) {
	dumper.Fdump(w, v)
}
