package orderlock

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestRegistry_SerializesSameOrder(t *testing.T) {
	r := NewRegistry()
	orderID := uuid.New()

	var mu sync.Mutex
	inSection := 0
	maxInSection := 0

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := r.Lock(orderID)
			defer unlock()

			mu.Lock()
			inSection++
			if inSection > maxInSection {
				maxInSection = inSection
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inSection--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxInSection)
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_DifferentOrdersRunInParallel(t *testing.T) {
	r := NewRegistry()

	first := r.Lock(uuid.New())
	defer first()

	done := make(chan struct{})
	go func() {
		unlock := r.Lock(uuid.New())
		unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("блокировка одного заказа не должна задерживать другой")
	}
}

func TestRegistry_UnlockIsIdempotent(t *testing.T) {
	r := NewRegistry()
	orderID := uuid.New()

	unlock := r.Lock(orderID)
	unlock()
	assert.NotPanics(t, func() { unlock() })
	assert.Equal(t, 0, r.Len())

	// После освобождения заказ можно захватить снова.
	second := r.Lock(orderID)
	second()
}
