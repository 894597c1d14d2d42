// Package capture implements the bulk screenshot orchestrator: a retrying,
// circuit-broken work loop that drives a single shared render session across a
// queue of target URLs and persists each full-page capture to object storage.
package capture
