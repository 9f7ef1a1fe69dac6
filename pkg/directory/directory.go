// Package directory provides in-memory segment and subscriber directories.
// Production deployments back these interfaces with the CRM; the in-memory
// versions serve tests and single-process setups.
package directory

import (
	"context"
	"fmt"
	"sync"

	"github.com/dripline/dripline/pkg/protocol"
)

// Static holds subscribers and segment memberships in memory.
type Static struct {
	mu         sync.RWMutex
	attributes map[string]map[string]any // subscriber id -> attributes
	segments   map[string][]string       // segment id -> subscriber ids
}

// NewStatic creates an empty directory.
func NewStatic() *Static {
	return &Static{
		attributes: make(map[string]map[string]any),
		segments:   make(map[string][]string),
	}
}

// PutSubscriber stores a subscriber's attributes. The attribute map should
// include "email".
func (d *Static) PutSubscriber(subscriberID string, attributes map[string]any) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.attributes[subscriberID] = attributes
}

// AddToSegment records a segment membership.
func (d *Static) AddToSegment(subscriberID, segmentID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, id := range d.segments[segmentID] {
		if id == subscriberID {
			return
		}
	}

	d.segments[segmentID] = append(d.segments[segmentID], subscriberID)
}

func (d *Static) Attributes(_ context.Context, subscriberID string) (map[string]any, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	attributes, ok := d.attributes[subscriberID]
	if !ok {
		return nil, fmt.Errorf("subscriber %q not found", subscriberID)
	}

	copied := make(map[string]any, len(attributes))
	for k, v := range attributes {
		copied[k] = v
	}

	return copied, nil
}

func (d *Static) IsMember(_ context.Context, subscriberID, segmentID string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, id := range d.segments[segmentID] {
		if id == subscriberID {
			return true, nil
		}
	}

	return false, nil
}

func (d *Static) SubscribersOf(_ context.Context, segmentID string) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	members := d.segments[segmentID]
	out := make([]string, len(members))
	copy(out, members)

	return out, nil
}

var (
	_ protocol.SubscriberDirectory = (*Static)(nil)
	_ protocol.SegmentDirectory    = (*Static)(nil)
)
