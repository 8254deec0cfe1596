// Package debug provides cheap invariant checks used throughout the
// runtime core. Checks are enabled by default and are switched off at
// process start when the PGASRT_NODEBUG environment variable is set,
// mirroring aistore's debug-build toggle.
/*
 * Copyright (c) 2024, pgasrt authors. All rights reserved.
 */
package debug

import (
	"fmt"
	"os"
)

var enabled = os.Getenv("PGASRT_NODEBUG") == ""

// Assert panics with the given message if cond is false.
func Assert(cond bool, msg ...interface{}) {
	if !enabled || cond {
		return
	}
	panic(fmt.Sprint(msg...))
}

// Assertf is Assert with a format string.
func Assertf(cond bool, format string, args ...interface{}) {
	if !enabled || cond {
		return
	}
	panic(fmt.Sprintf(format, args...))
}

// AssertNoErr panics if err is non-nil.
func AssertNoErr(err error) {
	if !enabled || err == nil {
		return
	}
	panic(err)
}

// Enabled reports whether assertions are active for this run.
func Enabled() bool { return enabled }
