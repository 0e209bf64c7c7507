package mqtt

import "sync"

// FakePublisher records published payloads for assertions.
type FakePublisher struct {
	mu        sync.Mutex
	Waterings []WateringPayload
	Statuses  []StatusPayload
	Closed    bool

	// PublishError, if set, is returned by both publish methods.
	PublishError error
}

func (f *FakePublisher) PublishWatering(p WateringPayload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	f.Waterings = append(f.Waterings, p)
	return nil
}

func (f *FakePublisher) PublishStatus(p StatusPayload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	f.Statuses = append(f.Statuses, p)
	return nil
}

func (f *FakePublisher) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

// WateringCount returns how many watering events were published.
func (f *FakePublisher) WateringCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Waterings)
}

// StatusCount returns how many status snapshots were published.
func (f *FakePublisher) StatusCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Statuses)
}

// LastStatus returns the most recent status snapshot.
func (f *FakePublisher) LastStatus() (StatusPayload, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Statuses) == 0 {
		return StatusPayload{}, false
	}
	return f.Statuses[len(f.Statuses)-1], true
}
