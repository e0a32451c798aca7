// Package retroarch reads live core memory from a running RetroArch instance
// over its UDP network command interface.
//
// The package is organized around two types:
//   - Channel: a strictly sequential request/response client for the
//     READ_CORE_MEMORY text command.
//   - Sampler: reads a fixed set of per-player counters on each poll tick and
//     assembles them into an immutable Snapshot.
package retroarch
