package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestFreshHonorsAge(t *testing.T) {
	c := NewQuoteCache()
	c.Put("AAPL", 101.5)

	price, ok := c.Fresh("AAPL", time.Minute)
	if !ok || price != 101.5 {
		t.Fatalf("Fresh=%v,%v, expected 101.5,true", price, ok)
	}
	if _, ok := c.Fresh("AAPL", 0); ok {
		t.Fatal("zero max age must never serve a cached price")
	}
	if _, ok := c.Fresh("TSLA", time.Minute); ok {
		t.Fatal("unknown symbol must miss")
	}
}

func TestPurgeDropsOnlyStale(t *testing.T) {
	c := NewQuoteCache()
	for i := 0; i < 40; i++ {
		c.Put(fmt.Sprintf("SYM%d", i), float64(i))
	}
	if got := c.Len(); got != 40 {
		t.Fatalf("Len=%d, expected 40", got)
	}
	if removed := c.Purge(time.Minute); removed != 0 {
		t.Fatalf("Purge removed %d fresh entries", removed)
	}
	if removed := c.Purge(-time.Second); removed != 40 {
		t.Fatalf("Purge removed %d, expected 40", removed)
	}
}

func TestConcurrentReadersAndWriters(t *testing.T) {
	c := NewQuoteCache()
	symbols := []string{"AAPL", "TSLA", "NVDA", "AMD", "MSFT"}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				sym := symbols[(n+j)%len(symbols)]
				c.Put(sym, float64(j))
				c.Fresh(sym, time.Minute)
			}
		}(i)
	}
	wg.Wait()

	if got := c.Len(); got != len(symbols) {
		t.Fatalf("Len=%d, expected %d", got, len(symbols))
	}
}
