// Package supervisor runs the build step and owns the lifecycle of a single
// server process: spawn with piped standard input and output, and stop by
// closing input, waiting a grace period, then killing.
//
// Stop is cooperative first and forced second. A child that exits once its
// input is closed is never killed; one that ignores the closed input is
// killed after the grace period, together with its process group on Unix.
package supervisor
