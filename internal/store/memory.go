package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/driftmarket/hookline/internal/hook"
)

// Memory is an in-memory implementation of the store interfaces, used for
// development mode and tests. Records are copied on the way in and out so
// callers never share memory with the store.
type Memory struct {
	mu         sync.RWMutex
	endpoints  map[string]*hook.Endpoint
	deliveries map[string]*hook.DeliveryRecord
}

func NewMemory() *Memory {
	return &Memory{
		endpoints:  make(map[string]*hook.Endpoint),
		deliveries: make(map[string]*hook.DeliveryRecord),
	}
}

func copyEndpoint(ep *hook.Endpoint) *hook.Endpoint {
	cp := *ep
	cp.Events = append([]string(nil), ep.Events...)
	return &cp
}

func copyDelivery(rec *hook.DeliveryRecord) *hook.DeliveryRecord {
	cp := *rec
	cp.Payload = append([]byte(nil), rec.Payload...)
	if rec.RequestHeaders != nil {
		cp.RequestHeaders = make(map[string]string, len(rec.RequestHeaders))
		for k, v := range rec.RequestHeaders {
			cp.RequestHeaders[k] = v
		}
	}
	return &cp
}

func (m *Memory) CreateEndpoint(_ context.Context, ep *hook.Endpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.endpoints[ep.ID] = copyEndpoint(ep)
	return nil
}

func (m *Memory) GetEndpoint(_ context.Context, id, ownerID string) (*hook.Endpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ep, ok := m.endpoints[id]
	if !ok || ep.DeletedAt != nil || (ownerID != "" && ep.OwnerID != ownerID) {
		return nil, hook.NotFoundf("endpoint %s", id)
	}
	return copyEndpoint(ep), nil
}

func (m *Memory) ListEndpoints(_ context.Context, ownerID string) ([]*hook.Endpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*hook.Endpoint
	for _, ep := range m.endpoints {
		if ep.DeletedAt == nil && ep.OwnerID == ownerID {
			out = append(out, copyEndpoint(ep))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) UpdateEndpoint(_ context.Context, ep *hook.Endpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.endpoints[ep.ID]
	if !ok || cur.DeletedAt != nil {
		return hook.NotFoundf("endpoint %s", ep.ID)
	}
	upd := copyEndpoint(ep)
	upd.UpdatedAt = time.Now().UTC()
	m.endpoints[ep.ID] = upd
	return nil
}

func (m *Memory) SoftDeleteEndpoint(_ context.Context, id, ownerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ep, ok := m.endpoints[id]
	if !ok || ep.DeletedAt != nil || ep.OwnerID != ownerID {
		return hook.NotFoundf("endpoint %s", id)
	}
	now := time.Now().UTC()
	ep.DeletedAt = &now
	ep.UpdatedAt = now
	return nil
}

func (m *Memory) ListActiveSubscribers(_ context.Context, eventType string) ([]*hook.Endpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*hook.Endpoint
	for _, ep := range m.endpoints {
		if ep.Deliverable() && ep.SubscribedTo(eventType) {
			out = append(out, copyEndpoint(ep))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) RecordSuccess(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ep, ok := m.endpoints[id]
	if !ok {
		return hook.NotFoundf("endpoint %s", id)
	}
	at = at.UTC()
	ep.ConsecutiveFailures = 0
	ep.LastDeliveryAt = &at
	ep.LastSuccessAt = &at
	ep.LastFailureReason = ""
	ep.UpdatedAt = at
	return nil
}

func (m *Memory) RecordFailure(_ context.Context, id string, at time.Time, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ep, ok := m.endpoints[id]
	if !ok {
		return hook.NotFoundf("endpoint %s", id)
	}
	at = at.UTC()
	ep.ConsecutiveFailures++
	ep.LastDeliveryAt = &at
	ep.LastFailureAt = &at
	ep.LastFailureReason = reason
	ep.UpdatedAt = at
	return nil
}

func (m *Memory) Quarantine(_ context.Context, threshold int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for _, ep := range m.endpoints {
		if ep.Status == hook.EndpointActive && ep.DeletedAt == nil && ep.ConsecutiveFailures >= threshold {
			ep.Status = hook.EndpointFailing
			ep.UpdatedAt = time.Now().UTC()
			ids = append(ids, ep.ID)
		}
	}
	return ids, nil
}

func (m *Memory) CreateDelivery(_ context.Context, rec *hook.DeliveryRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deliveries[rec.ID] = copyDelivery(rec)
	return nil
}

func (m *Memory) GetDelivery(_ context.Context, id string) (*hook.DeliveryRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.deliveries[id]
	if !ok {
		return nil, hook.NotFoundf("delivery %s", id)
	}
	return copyDelivery(rec), nil
}

func (m *Memory) UpdateDelivery(_ context.Context, rec *hook.DeliveryRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.deliveries[rec.ID]; !ok {
		return hook.NotFoundf("delivery %s", rec.ID)
	}
	upd := copyDelivery(rec)
	upd.UpdatedAt = time.Now().UTC()
	m.deliveries[rec.ID] = upd
	return nil
}

func (m *Memory) ListDeliveries(_ context.Context, f hook.DeliveryFilter) ([]*hook.DeliveryRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*hook.DeliveryRecord
	for _, rec := range m.deliveries {
		if f.EndpointID != "" && rec.EndpointID != f.EndpointID {
			continue
		}
		if f.Event != "" && rec.Event != f.Event {
			continue
		}
		if f.Status != "" && rec.Status != f.Status {
			continue
		}
		if !f.From.IsZero() && rec.CreatedAt.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && rec.CreatedAt.After(f.To) {
			continue
		}
		out = append(out, copyDelivery(rec))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := max(f.Offset, 0)
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) ListDueRetries(_ context.Context, now time.Time, limit int) ([]*hook.DeliveryRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*hook.DeliveryRecord
	for _, rec := range m.deliveries {
		if rec.Status != hook.DeliveryRetried && rec.Status != hook.DeliveryFailed {
			continue
		}
		if rec.NextRetryAt == nil || rec.NextRetryAt.After(now) {
			continue
		}
		out = append(out, copyDelivery(rec))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NextRetryAt.Before(*out[j].NextRetryAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) ClaimForRetry(_ context.Context, id string, prev hook.DeliveryStatus, prevNextRetryAt *time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.deliveries[id]
	if !ok {
		return false, hook.NotFoundf("delivery %s", id)
	}
	if rec.Status != prev {
		return false, nil
	}
	switch {
	case rec.NextRetryAt == nil && prevNextRetryAt == nil:
	case rec.NextRetryAt != nil && prevNextRetryAt != nil && rec.NextRetryAt.Equal(*prevNextRetryAt):
	default:
		return false, nil
	}
	rec.Status = hook.DeliveryRetried
	rec.NextRetryAt = nil
	rec.UpdatedAt = time.Now().UTC()
	return true, nil
}

var (
	_ hook.EndpointStore = (*Memory)(nil)
	_ hook.DeliveryStore = (*Memory)(nil)
)
