package orderlock

import (
	"sync"

	"github.com/google/uuid"
)

// Registry выдаёт эксклюзивную секцию на каждый заказ. Операции над разными
// заказами идут параллельно, над одним — строго по очереди. Записи со
// счётчиком ссылок удаляются, когда заказ никто не держит, так что реестр
// не растёт вместе с историей заказов.
type Registry struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*entry
}

type entry struct {
	mu   sync.Mutex
	refs int
}

// NewRegistry создаёт пустой реестр блокировок.
func NewRegistry() *Registry {
	return &Registry{locks: make(map[uuid.UUID]*entry)}
}

// Lock захватывает эксклюзивную секцию заказа и возвращает функцию
// освобождения. Освобождать обязательно на каждом пути выхода.
func (r *Registry) Lock(orderID uuid.UUID) func() {
	r.mu.Lock()
	e, ok := r.locks[orderID]
	if !ok {
		e = &entry{}
		r.locks[orderID] = e
	}
	e.refs++
	r.mu.Unlock()

	e.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Unlock()

			r.mu.Lock()
			e.refs--
			if e.refs == 0 {
				delete(r.locks, orderID)
			}
			r.mu.Unlock()
		})
	}
}

// Len возвращает число заказов с активными держателями. Используется в тестах.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.locks)
}
