package event

import (
	"context"
	"strings"

	"github.com/segmentio/errors-go"
	"github.com/segmentio/events/v2"
)

type (
	changelog interface {
		start(ctx context.Context) error
		next(ctx context.Context) (ChangeEvent, error)
	}
	// Iterator streams change events out of a changelog in the order the
	// capture process wrote them.
	Iterator struct {
		changelog  changelog          // streams in change events from somewhere
		cancelFunc context.CancelFunc // used to shut down the changelog
		previous   *ChangeEvent       // the previous event we read
	}
	IteratorOpt      func(i *Iterator)
	FilteredIterator struct {
		iterator *Iterator
		dataset  string
		table    string
	}
)

var (
	ErrOutOfSync = errors.New("out of sync with changelog. invalidate caches please.")
)

// NewIterator returns a new iterator that looks for change events in the
// background and then exposes them through the Next method. Make sure to
// Close() the iterator when you are done using it.
//
// If ErrOutOfSync is returned, that means that the iterator likely could
// not keep up with the changelog, and the deriver consuming it may have
// missed events.
func NewIterator(ctx context.Context, changelogPath string, opts ...IteratorOpt) (*Iterator, error) {
	iter := &Iterator{}
	for _, opt := range opts {
		opt(iter)
	}
	if iter.changelog == nil {
		cl := newFileChangelog(changelogPath)
		if err := cl.validate(); err != nil {
			return nil, errors.Wrap(err, "validate changelog")
		}
		iter.changelog = cl
	}
	ctx, iter.cancelFunc = context.WithCancel(ctx)
	if err := iter.changelog.start(ctx); err != nil {
		return nil, errors.Wrap(err, "start changelog")
	}
	return iter, nil
}

// Next blocks and returns the next change event
func (i *Iterator) Next(ctx context.Context) (event ChangeEvent, err error) {
	event, err = i.changelog.next(ctx)
	if err != nil {
		return event, err
	}
	previous := i.previous
	i.previous = &event
	if previous != nil {
		if previous.Sequence != event.Sequence-1 {
			events.Log("out of sync sequences (cur-1 should equal prev), prev: %d cur: %d", previous.Sequence, event.Sequence)
			// we have an out of order changelog
			return event, ErrOutOfSync
		}
	}
	return event, err
}

func (i *Iterator) Close() error {
	i.cancelFunc() // shut down the changelog
	return nil
}

// NewFilteredIterator returns a new iterator that only produces change
// events bound for the specified destination dataset and table.
// Make sure to Close() the iterator when you are done using it.
func NewFilteredIterator(ctx context.Context, changelogPath, dataset, table string, opts ...IteratorOpt) (*FilteredIterator, error) {
	iter, err := NewIterator(ctx, changelogPath, opts...)
	if err != nil {
		return nil, err
	}
	fi := &FilteredIterator{
		iterator: iter,
		dataset:  dataset,
		table:    table,
	}
	return fi, nil
}

// Next blocks and returns the next change event that matches the specified
// destination dataset and table
func (i *FilteredIterator) Next(ctx context.Context) (event ChangeEvent, err error) {
	for {
		event, err = i.iterator.Next(ctx)
		if err != nil ||
			(strings.EqualFold(event.Target.Dataset, i.dataset) && strings.EqualFold(event.Target.Table, i.table)) {
			break
		}
	}
	return event, err
}

func (i *FilteredIterator) Close() error {
	return i.iterator.Close()
}
