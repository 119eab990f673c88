package events

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

type Topic string

const (
	InventoryChanged   Topic = "inventory.changed"
	PrintersChanged    Topic = "printers.changed"
	ProjectsChanged    Topic = "projects.changed"
	CyclesSynced       Topic = "cycles.synced"
	ReplanNotification Topic = "replan.notification"
)

type Event struct {
	Topic   Topic
	Payload any
	At      time.Time
}

type Handler func(Event)

// Bus is a synchronous in-process publish/subscribe hub.
type Bus struct {
	log  *slog.Logger
	mu   sync.RWMutex
	next int
	subs map[Topic]map[int]Handler
}

func New(log *slog.Logger) *Bus {
	return &Bus{log: log, subs: map[Topic]map[int]Handler{}}
}

// Subscribe registers h for topic and returns a function that removes it.
func (b *Bus) Subscribe(topic Topic, h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.next++
	id := b.next
	if b.subs[topic] == nil {
		b.subs[topic] = map[int]Handler{}
	}
	b.subs[topic][id] = h

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs[topic], id)
		})
	}
}

// Publish delivers the event to every subscriber in subscription order. A panicking handler is logged
// and does not stop delivery to the others.
func (b *Bus) Publish(topic Topic, payload any) {
	const op = "events.Publish"

	b.mu.RLock()
	ids := make([]int, 0, len(b.subs[topic]))
	for id := range b.subs[topic] {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	handlers := make([]Handler, 0, len(ids))
	for _, id := range ids {
		handlers = append(handlers, b.subs[topic][id])
	}
	b.mu.RUnlock()

	ev := Event{Topic: topic, Payload: payload, At: time.Now()}
	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					b.log.Error("subscriber panicked",
						slog.String("op", op),
						slog.String("topic", string(topic)),
						slog.String("error", fmt.Sprint(r)),
					)
				}
			}()
			h(ev)
		}()
	}
}

func (b *Bus) Subscribers(topic Topic) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}
