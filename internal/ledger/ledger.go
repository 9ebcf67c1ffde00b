package ledger

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ppetrenko/civicplan/internal/model"
)

var (
	// ErrCapacityExceeded means a reserve would violate soft+hard <= capacity
	ErrCapacityExceeded = errors.New("reservation exceeds slot capacity")
	// ErrNegativeRelease means a release would drive an allocation below zero
	ErrNegativeRelease = errors.New("release exceeds current allocation")
	// ErrUnknownSlot means the (resource type, week, year) key was never seeded
	ErrUnknownSlot = errors.New("unknown resource slot")
)

type slotKey struct {
	resourceType string
	week         int
	year         int
}

// Ledger is the weekly capacity table per crew type with soft/hard
// sub-allocations. It is the single shared mutable resource in the planner;
// all reserve/release operations run under one mutex so the capacity
// invariant holds at every observable instant.
type Ledger struct {
	mu    sync.Mutex
	slots map[slotKey]*model.ResourceSlot
	year  int
}

// New seeds a ledger for the planning horizon from per-type weekly capacities
func New(capacities map[string]int, horizonWeeks, year int) *Ledger {
	l := &Ledger{
		slots: make(map[slotKey]*model.ResourceSlot, len(capacities)*horizonWeeks),
		year:  year,
	}
	for resourceType, capacity := range capacities {
		for week := 1; week <= horizonWeeks; week++ {
			l.slots[slotKey{resourceType, week, year}] = &model.ResourceSlot{
				ResourceType: resourceType,
				WeekNumber:   week,
				Year:         year,
				Capacity:     capacity,
			}
		}
	}
	return l
}

// Restore rebuilds a ledger from persisted slots
func Restore(slots []model.ResourceSlot, year int) *Ledger {
	l := &Ledger{
		slots: make(map[slotKey]*model.ResourceSlot, len(slots)),
		year:  year,
	}
	for i := range slots {
		s := slots[i]
		l.slots[slotKey{s.ResourceType, s.WeekNumber, s.Year}] = &s
	}
	return l
}

// Available returns capacity - soft - hard for a slot; zero for unknown slots
func (l *Ledger) Available(resourceType string, week int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot, ok := l.slots[slotKey{resourceType, week, l.year}]
	if !ok {
		return 0
	}
	return slot.Available()
}

// Reserve atomically increments the chosen sub-allocation for one week.
// Fails without modifying the slot if the capacity invariant would break.
func (l *Ledger) Reserve(resourceType string, week, amount int, kind model.ReservationKind) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.reserveLocked(resourceType, week, amount, kind)
}

func (l *Ledger) reserveLocked(resourceType string, week, amount int, kind model.ReservationKind) error {
	slot, ok := l.slots[slotKey{resourceType, week, l.year}]
	if !ok {
		return fmt.Errorf("%w: %s week %d", ErrUnknownSlot, resourceType, week)
	}
	if slot.SoftAllocated+slot.HardAllocated+amount > slot.Capacity {
		return fmt.Errorf("%w: %s week %d (capacity %d, allocated %d, requested %d)",
			ErrCapacityExceeded, resourceType, week, slot.Capacity,
			slot.SoftAllocated+slot.HardAllocated, amount)
	}
	switch kind {
	case model.ReservationSoft:
		slot.SoftAllocated += amount
	case model.ReservationHard:
		slot.HardAllocated += amount
	default:
		return fmt.Errorf("unknown reservation kind %q", kind)
	}
	return nil
}

// Release atomically decrements the chosen sub-allocation; never goes negative
func (l *Ledger) Release(resourceType string, week, amount int, kind model.ReservationKind) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.releaseLocked(resourceType, week, amount, kind)
}

func (l *Ledger) releaseLocked(resourceType string, week, amount int, kind model.ReservationKind) error {
	slot, ok := l.slots[slotKey{resourceType, week, l.year}]
	if !ok {
		return fmt.Errorf("%w: %s week %d", ErrUnknownSlot, resourceType, week)
	}
	switch kind {
	case model.ReservationSoft:
		if slot.SoftAllocated-amount < 0 {
			return fmt.Errorf("%w: %s week %d soft", ErrNegativeRelease, resourceType, week)
		}
		slot.SoftAllocated -= amount
	case model.ReservationHard:
		if slot.HardAllocated-amount < 0 {
			return fmt.Errorf("%w: %s week %d hard", ErrNegativeRelease, resourceType, week)
		}
		slot.HardAllocated -= amount
	default:
		return fmt.Errorf("unknown reservation kind %q", kind)
	}
	return nil
}

// ReserveWindow reserves amount across [startWeek, endWeek] as one atomic
// operation: either every week is reserved or none is.
func (l *Ledger) ReserveWindow(resourceType string, startWeek, endWeek, amount int, kind model.ReservationKind) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for week := startWeek; week <= endWeek; week++ {
		slot, ok := l.slots[slotKey{resourceType, week, l.year}]
		if !ok {
			return fmt.Errorf("%w: %s week %d", ErrUnknownSlot, resourceType, week)
		}
		if slot.SoftAllocated+slot.HardAllocated+amount > slot.Capacity {
			return fmt.Errorf("%w: %s week %d", ErrCapacityExceeded, resourceType, week)
		}
	}
	for week := startWeek; week <= endWeek; week++ {
		if err := l.reserveLocked(resourceType, week, amount, kind); err != nil {
			// Pre-check above makes this unreachable; roll back defensively
			for w := startWeek; w < week; w++ {
				_ = l.releaseLocked(resourceType, w, amount, kind)
			}
			return err
		}
	}
	return nil
}

// ReleaseWindow releases amount across [startWeek, endWeek]
func (l *Ledger) ReleaseWindow(resourceType string, startWeek, endWeek, amount int, kind model.ReservationKind) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for week := startWeek; week <= endWeek; week++ {
		if err := l.releaseLocked(resourceType, week, amount, kind); err != nil {
			return err
		}
	}
	return nil
}

// Upgrade converts a soft window reservation into a hard one (on human
// confirmation). Atomic: the total allocation never changes mid-flight.
func (l *Ledger) Upgrade(resourceType string, startWeek, endWeek, amount int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for week := startWeek; week <= endWeek; week++ {
		slot, ok := l.slots[slotKey{resourceType, week, l.year}]
		if !ok {
			return fmt.Errorf("%w: %s week %d", ErrUnknownSlot, resourceType, week)
		}
		if slot.SoftAllocated < amount {
			return fmt.Errorf("%w: %s week %d soft", ErrNegativeRelease, resourceType, week)
		}
	}
	for week := startWeek; week <= endWeek; week++ {
		slot := l.slots[slotKey{resourceType, week, l.year}]
		slot.SoftAllocated -= amount
		slot.HardAllocated += amount
	}
	return nil
}

// Slot returns a copy of one slot
func (l *Ledger) Slot(resourceType string, week int) (model.ResourceSlot, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot, ok := l.slots[slotKey{resourceType, week, l.year}]
	if !ok {
		return model.ResourceSlot{}, false
	}
	return *slot, true
}

// Snapshot returns all slots ordered by resource type then week
func (l *Ledger) Snapshot() []model.ResourceSlot {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]model.ResourceSlot, 0, len(l.slots))
	for _, slot := range l.slots {
		out = append(out, *slot)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ResourceType != out[j].ResourceType {
			return out[i].ResourceType < out[j].ResourceType
		}
		return out[i].WeekNumber < out[j].WeekNumber
	})
	return out
}

// ResourceTypes returns the distinct seeded crew types
func (l *Ledger) ResourceTypes() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	seen := map[string]bool{}
	for key := range l.slots {
		seen[key.resourceType] = true
	}
	types := make([]string, 0, len(seen))
	for t := range seen {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
