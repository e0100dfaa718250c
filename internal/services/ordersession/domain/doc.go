// Package domain holds the order-session core: the session lifecycle, the
// participant response state machine, the deadline sweep, and the
// notification engine. It has no storage or transport dependencies; callers
// inject stores, collaborators, clocks, and id generators.
package domain
