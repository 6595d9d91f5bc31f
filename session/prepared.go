package session

import "github.com/lib/pq"

// DefaultPreparedMax is how many server-side prepared statements a connection
// keeps before evicting the oldest one.
const DefaultPreparedMax = 100

// PreparedCache maps query text to the server-side prepared statement name
// holding its plan. Rollback invalidates the whole cache, because aborting a
// (sub)transaction may discard plans prepared inside it; the deallocation is
// carried out by maintenance commands appended to the next command batch.
//
// Not safe for concurrent use on its own: the owning connection serializes
// access under its lock.
type PreparedCache struct {
	maxSize     int
	names       map[string]string
	order       []string
	maintenance []string
}

func newPreparedCache(maxSize int) *PreparedCache {
	return &PreparedCache{
		maxSize: maxSize,
		names:   make(map[string]string),
	}
}

func (c *PreparedCache) Get(query string) (string, bool) {
	name, ok := c.names[query]
	return name, ok
}

func (c *PreparedCache) Put(query string, name string) {
	if _, ok := c.names[query]; ok {
		c.names[query] = name
		return
	}
	if len(c.order) >= c.maxSize {
		oldest := c.order[0]
		c.order = c.order[1:]
		c.maintenance = append(c.maintenance, "DEALLOCATE "+pq.QuoteIdentifier(c.names[oldest]))
		delete(c.names, oldest)
	}
	c.names[query] = name
	c.order = append(c.order, query)
}

func (c *PreparedCache) Len() int {
	return len(c.order)
}

// Clear empties the cache and reports whether anything was dropped. When it
// was, a DEALLOCATE ALL is queued so the server forgets the plans too.
// Clearing an empty cache is a no-op, so repeated rollbacks deallocate once.
func (c *PreparedCache) Clear() bool {
	if len(c.order) == 0 {
		return false
	}
	c.names = make(map[string]string)
	c.order = nil
	c.maintenance = append(c.maintenance, "DEALLOCATE ALL")
	return true
}

// MaintenanceCommands returns the queued cache-maintenance statements and
// resets the queue; each command is returned exactly once.
func (c *PreparedCache) MaintenanceCommands() []string {
	commands := c.maintenance
	c.maintenance = nil
	return commands
}
