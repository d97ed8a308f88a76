package worker

import "context"

type task struct {
	ctx      context.Context
	fn       Task
	resultCh chan error
}

type workerState struct {
	taskCh chan task
	stopCh chan struct{}
}

func newWorkerState() *workerState {
	return &workerState{
		taskCh: make(chan task, queueLen),
		stopCh: make(chan struct{}),
	}
}

// drain fails every queued task with err.
func (s *workerState) drain(err error) {
	for {
		select {
		case t := <-s.taskCh:
			t.resultCh <- err
		default:
			return
		}
	}
}
