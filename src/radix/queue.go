package radix

import "sync"

// job is pending work over keys[left:right], whose keys share their first depth bytes
type job struct {
	left, right int

	// depth is the key byte used as the digit
	depth int

	// alphabet is TextAlphabetSize while reading text bytes and
	// NumberAlphabetSize once the separator has been passed
	alphabet int

	// numberByte counts number bytes already partitioned on
	numberByte int
}

func (j job) size() int {
	return j.right - j.left
}

// jobQueue is a FIFO shared by a fixed pool of workers
// The queue is drained when it is empty and every worker is waiting on it
type jobQueue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	jobs    []job
	head    int
	idle    int
	workers int
	closed  bool
}

func newJobQueue(workers int) *jobQueue {
	q := &jobQueue{workers: workers}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// push enqueues jobs and wakes waiting workers
func (q *jobQueue) push(jobs ...job) {
	if len(jobs) == 0 {
		return
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.jobs = append(q.jobs, jobs...)
	if len(jobs) == 1 {
		q.cond.Signal()
	} else {
		q.cond.Broadcast()
	}
}

// pop blocks until a job is available. It returns false once the queue is
// closed, or when the caller is the last worker to go idle on an empty queue,
// in which case the queue closes and every other waiting worker is released
func (q *jobQueue) pop() (job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for {
		if q.closed {
			return job{}, false
		}
		if q.head < len(q.jobs) {
			break
		}

		q.idle++
		if q.idle == q.workers {
			q.closed = true
			q.cond.Broadcast()
			return job{}, false
		}
		q.cond.Wait()
		q.idle--
	}

	j := q.jobs[q.head]
	q.head++
	if q.head == len(q.jobs) {
		q.jobs = q.jobs[:0]
		q.head = 0
	}
	return j, true
}

// close releases every waiting worker; pending jobs are dropped
func (q *jobQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	q.cond.Broadcast()
}
