// Package events provides the observer bus the orchestrator reports through,
// plus an ordered, batching Hub that forwards bus traffic to slow sinks such
// as databases and message brokers on a background goroutine.
package events
