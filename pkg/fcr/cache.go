package fcr

import (
	lru "github.com/hashicorp/golang-lru"
)

const certificateCacheSize = 100

// certCache is a bounded instance→certificate cache. Certificates accumulate
// one per consensus instance indefinitely in principle; the LRU cap keeps
// memory bounded since only recent instances are ever queried for a pending
// settlement's target height.
type certCache struct {
	lru *lru.Cache
}

func newCertCache() *certCache {
	c, err := lru.New(certificateCacheSize)
	if err != nil {
		// Only non-nil on a non-positive size, which certificateCacheSize never is.
		panic(err)
	}
	return &certCache{lru: c}
}

func (c *certCache) put(cert *Certificate) {
	if cert == nil {
		return
	}
	c.lru.Add(cert.Instance, cert)
}

func (c *certCache) get(instance uint64) (*Certificate, bool) {
	v, ok := c.lru.Get(instance)
	if !ok {
		return nil, false
	}
	return v.(*Certificate), true
}

func (c *certCache) latest() (*Certificate, bool) {
	var best *Certificate
	for _, key := range c.lru.Keys() {
		v, ok := c.lru.Peek(key)
		if !ok {
			continue
		}
		cert := v.(*Certificate)
		if best == nil || cert.Instance > best.Instance {
			best = cert
		}
	}
	if best == nil {
		return nil, false
	}
	return best, true
}
