// Package vm implements the Catena execution core: NaN-boxed 32-bit tagged
// cells, segmented stack memory, flat-stack list and tuple aggregates with
// backward LINK markers, in-place range rotation, capsule (closure) freezing,
// and a dictionary-driven unified dispatch for builtins and user code.
//
// All interpreter state lives on an explicit *VM; the package has no mutable
// globals, so multiple instances can coexist and tests construct isolated
// machines. A VM is single-threaded by contract: one goroutine drives the
// fetch-execute loop and every core operation runs to completion before the
// next instruction is fetched.
package vm
