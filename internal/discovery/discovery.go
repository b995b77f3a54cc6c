// Package discovery checks whether a worker executable is installed and
// reachable on PATH, caching the result per command name so repeated Spawn
// calls don't re-stat the filesystem on every launch.
package discovery

import (
	"os/exec"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/worklet/fleet/pkg/fleet"
)

// defaultTTL mirrors the 30s discovery cache window used for agent registry
// lookups elsewhere in this codebase's lineage.
const defaultTTL = 30 * time.Second

// Checker answers "is this worker command installed", backed by a small TTL
// cache so a flapping PATH lookup doesn't thrash on every Spawn.
type Checker struct {
	cache *cache.Cache
}

// NewChecker returns a Checker with the default 30s TTL.
func NewChecker() *Checker {
	return &Checker{cache: cache.New(defaultTTL, 2*defaultTTL)}
}

// EnsureInstalled returns fleet.ErrNotInstalled if command cannot be
// resolved on PATH. A positive or negative result is cached for the TTL, so
// callers should tolerate a stale answer for that window.
func (c *Checker) EnsureInstalled(command string) error {
	if v, ok := c.cache.Get(command); ok {
		if v.(bool) {
			return nil
		}
		return fleet.ErrNotInstalled
	}

	_, err := exec.LookPath(command)
	installed := err == nil
	c.cache.Set(command, installed, cache.DefaultExpiration)

	if !installed {
		return fleet.ErrNotInstalled
	}
	return nil
}

// Invalidate clears the cached result for command, forcing the next
// EnsureInstalled call to re-stat PATH.
func (c *Checker) Invalidate(command string) {
	c.cache.Delete(command)
}
