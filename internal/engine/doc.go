// Package engine drives the telemetry poll and reward pipeline.
//
// Each tick runs sample → detect → gate → dispatch. Two independent
// detectors diff the same snapshot stream: one feeds the event log and UI
// broadcast, the other feeds payment dispatch, so false-positive suppression
// on one path can never be bypassed by the other path resetting a shared
// baseline. Payment dispatch runs detached from the tick so a slow provider
// call cannot stall the loop; the payment baseline is advanced before any
// network call, which keeps overlapping ticks from double-counting a delta.
package engine
