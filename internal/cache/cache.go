package cache

import (
	"sync"
	"time"
)

type CacheItem struct {
	Value      []byte
	MIMEType   string
	Expiration int64
}

// Cache guarda bytes descargados (imágenes de producto) por URL con TTL.
// Al llegar a maxItems descarta primero los vencidos y luego el más antiguo.
type Cache struct {
	items    map[string]CacheItem
	mu       sync.RWMutex
	ttl      time.Duration
	maxItems int
	stop     chan struct{}
	stopOnce sync.Once
}

// New crea un caché y arranca la limpieza periódica
func New(defaultTTL time.Duration, maxItems int) *Cache {
	c := &Cache{
		items:    make(map[string]CacheItem),
		ttl:      defaultTTL,
		maxItems: maxItems,
		stop:     make(chan struct{}),
	}
	go c.cleanupExpired(time.Minute)
	return c
}

// Set guarda un valor en caché
func (c *Cache) Set(key string, value []byte, mimeType string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.maxItems > 0 && len(c.items) >= c.maxItems {
		if _, exists := c.items[key]; !exists {
			c.evictLocked()
		}
	}

	c.items[key] = CacheItem{
		Value:      value,
		MIMEType:   mimeType,
		Expiration: time.Now().Add(c.ttl).UnixNano(),
	}
}

// GetValue obtiene un valor del caché
func (c *Cache) GetValue(key string) ([]byte, string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	item, found := c.items[key]
	if !found || time.Now().UnixNano() > item.Expiration {
		return nil, "", false
	}
	return item.Value, item.MIMEType, true
}

// ProductKey es la clave del JSON cacheado de un producto
func ProductKey(dbName, id string) string {
	return "product:" + dbName + ":" + id
}

// Delete elimina un valor del caché
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

// Size retorna el número de items en caché
func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Close detiene la limpieza periódica
func (c *Cache) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Cache) evictLocked() {
	now := time.Now().UnixNano()
	oldestKey := ""
	var oldest int64
	for key, item := range c.items {
		if now > item.Expiration {
			delete(c.items, key)
			continue
		}
		if oldestKey == "" || item.Expiration < oldest {
			oldestKey, oldest = key, item.Expiration
		}
	}
	if len(c.items) >= c.maxItems && oldestKey != "" {
		delete(c.items, oldestKey)
	}
}

// cleanupExpired limpia items expirados periódicamente
func (c *Cache) cleanupExpired(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.mu.Lock()
			now := time.Now().UnixNano()
			for key, item := range c.items {
				if now > item.Expiration {
					delete(c.items, key)
				}
			}
			c.mu.Unlock()
		}
	}
}
