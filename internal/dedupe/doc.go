// Package dedupe provides a time-based cache for collapsing duplicate
// mutation deliveries, used by consumers of the at-least-once sync feed.
package dedupe
