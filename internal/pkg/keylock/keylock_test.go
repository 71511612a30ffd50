package keylock

import (
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSerializesSameKey(t *testing.T) {
	l := New(8)

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Lock(42)
			counter++
			l.Unlock(42)
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, counter)
}

func TestNegativeKeysDoNotPanic(t *testing.T) {
	l := New(0)

	assert.NotPanics(t, func() {
		l.Lock(-9001)
		l.Unlock(-9001)
	})
	assert.NotPanics(t, func() {
		l.Lock(math.MinInt64)
		l.Unlock(math.MinInt64)
	})
}
