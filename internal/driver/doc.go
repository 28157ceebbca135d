// Package driver runs the external configure/compile/install sequence once
// per build target and records a model.BuildResult for each.
//
// Every target builds in its own directory, {work}/{label}, which is wiped and
// re-staged with a private copy of the source tree before the build starts.
// A failing, unsupported or timed-out target is recorded and the run moves on
// to the next one; the driver itself never aborts the remaining targets.
//
// With Workers set to 1 targets build strictly one after another. Higher
// values build several targets at once, which is safe only because of the
// per-target source copies. Results are always returned in input order.
package driver
