package mutex

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	var km KeyedMutex[int64]
	var wg sync.WaitGroup

	counter := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			km.Lock(42)
			defer km.Unlock(42)
			v := counter
			counter = v + 1
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
	assert.Zero(t, km.Len())
}

func TestKeyedMutexIndependentKeys(t *testing.T) {
	var km KeyedMutex[string]

	km.Lock("a")
	km.Lock("b")
	assert.Equal(t, 2, km.Len())

	km.Unlock("a")
	km.Unlock("b")
	assert.Zero(t, km.Len())
}

func TestKeyedMutexUnlockUnknownPanics(t *testing.T) {
	var km KeyedMutex[string]
	assert.Panics(t, func() { km.Unlock("missing") })
}
