// Package catalog serves audit details from a static, in-memory lookup with
// a fixed simulated latency. It stands in for the document-review backend.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"repair-fund-audit/internal/modal"
)

type Catalog struct {
	details map[int64]modal.AuditDetail
	latency time.Duration
}

func New(details []modal.AuditDetail, latency time.Duration) *Catalog {
	m := make(map[int64]modal.AuditDetail, len(details))
	for _, d := range details {
		m[d.TaskID] = d
	}
	return &Catalog{details: m, latency: latency}
}

// Load waits out the configured latency and returns a private copy of the
// detail for taskID. A task without a detail yields (nil, nil).
func (c *Catalog) Load(ctx context.Context, taskID int64) (*modal.AuditDetail, error) {
	if c.latency > 0 {
		timer := time.NewTimer(c.latency)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	} else if err := ctx.Err(); err != nil {
		return nil, err
	}

	d, ok := c.details[taskID]
	if !ok {
		return nil, nil
	}
	return clone(d)
}

// clone deep-copies through JSON so callers can never mutate the catalog's
// nested maps and slices.
func clone(d modal.AuditDetail) (*modal.AuditDetail, error) {
	b, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("copy detail %d: %w", d.TaskID, err)
	}
	var out modal.AuditDetail
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("copy detail %d: %w", d.TaskID, err)
	}
	return &out, nil
}
