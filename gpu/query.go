// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package gpu

// MaxQueryCount is the maximum number of queries in a set.
const MaxQueryCount = 4096

// QuerySize is the size in bytes of a resolved query.
const QuerySize = 8

// QueryResolveAlignment is the required alignment of
// ResolveQuerySet destination offsets.
const QueryResolveAlignment = 256

// QuerySetDescriptor describes a QuerySet.
type QuerySetDescriptor struct {
	Label string
	Type  QueryType
	Count uint32
}

// QuerySet is an array of GPU counters.
// Occlusion queries count the samples that pass the
// per-fragment tests; timestamp queries hold nanoseconds.
// Results are only visible to the host after
// ResolveQuerySet and synchronization.
type QuerySet struct {
	object
	h     QuerySetHandle
	typ   QueryType
	count uint32
}

// CreateQuerySet creates a new query set.
func (d *Device) CreateQuerySet(desc *QuerySetDescriptor) (*QuerySet, error) {
	const op = "Device.CreateQuerySet"
	if err := d.check(op); err != nil {
		return nil, err
	}
	if desc == nil {
		return nil, configErr(op, ErrNilDescriptor)
	}
	switch {
	case desc.Count == 0:
		return nil, configErr(op, ErrZeroSize)
	case desc.Count > MaxQueryCount:
		return nil, configErr(op, wrapf(ErrLimit, "query count %d", desc.Count))
	}
	switch desc.Type {
	case QueryOcclusion:
	case QueryTimestamp:
		if !d.features.Has(FeatureTimestampQuery) {
			return nil, configErr(op, wrapf(ErrMissingFeature, "timestamp-query"))
		}
	default:
		return nil, configErr(op, wrapf(ErrInvalidValue, "query type %v", desc.Type))
	}
	dc := *desc
	h, err := d.be.NewQuerySet(&dc)
	if err != nil {
		return nil, d.fail(op, err)
	}
	q := &QuerySet{h: h, typ: dc.Type, count: dc.Count}
	q.init(d, dc.Label)
	d.created()
	return q, nil
}

// Type returns the query type.
func (q *QuerySet) Type() QueryType { return q.typ }

// Count returns the number of queries.
func (q *QuerySet) Count() uint32 { return q.count }

// Handle returns the backend's handle.
func (q *QuerySet) Handle() QuerySetHandle { return q.h }

// Destroy destroys the query set.
func (q *QuerySet) Destroy() error {
	if err := q.kill("QuerySet.Destroy"); err != nil {
		return err
	}
	q.h.Destroy()
	q.dev.forget()
	return nil
}
