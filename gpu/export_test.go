// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package gpu

import "sync"

// HoldQueue stalls the worker of q until release is called.
// Submissions to q stay pending meanwhile.
func HoldQueue(q *Queue) (release func(), err error) {
	block := make(chan struct{})
	if err := q.enqueue("HoldQueue", func() { <-block }); err != nil {
		return nil, err
	}
	var once sync.Once
	return func() { once.Do(func() { close(block) }) }, nil
}
