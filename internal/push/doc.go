// Package push broadcasts engine events to UI clients over websockets.
//
// The flow is strictly one-way: the engine publishes snapshots, reward
// events, payment errors, and lifecycle notices; clients only ever read.
package push
