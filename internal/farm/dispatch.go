package farm

import "sync"

// dispatcher runs remote work one task at a time in submission order, off the
// caller's goroutine.
type dispatcher struct {
	mu      sync.Mutex
	idle    *sync.Cond
	queue   []func()
	running bool
}

func newDispatcher() *dispatcher {
	d := &dispatcher{}
	d.idle = sync.NewCond(&d.mu)
	return d
}

func (d *dispatcher) submit(task func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.queue = append(d.queue, task)
	if !d.running {
		d.running = true
		go d.drain()
	}
}

func (d *dispatcher) drain() {
	for {
		d.mu.Lock()
		if len(d.queue) == 0 {
			d.running = false
			d.idle.Broadcast()
			d.mu.Unlock()
			return
		}
		task := d.queue[0]
		d.queue = d.queue[1:]
		d.mu.Unlock()
		task()
	}
}

// wait blocks until the queue is empty and no task is running.
func (d *dispatcher) wait() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for d.running || len(d.queue) > 0 {
		d.idle.Wait()
	}
}
