package queue

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

// JobProcessor runs a pool of workers that pull jobs from the Redis
// queue and dispatch them to registered handlers
type JobProcessor struct {
	queue       *RedisQueue
	handlers    map[JobType]JobHandler
	workerCount int
	stopChan    chan struct{}
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
}

// NewJobProcessor creates a job processor
func NewJobProcessor(queue *RedisQueue, workerCount int) *JobProcessor {
	ctx, cancel := context.WithCancel(context.Background())
	return &JobProcessor{
		queue:       queue,
		handlers:    make(map[JobType]JobHandler),
		workerCount: workerCount,
		stopChan:    make(chan struct{}),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// RegisterHandler registers a handler for a job type. Must be called
// before Start.
func (p *JobProcessor) RegisterHandler(jobType JobType, handler JobHandler) {
	p.handlers[jobType] = handler
}

// Start starts the worker pool
func (p *JobProcessor) Start() {
	log.Printf("Starting job processor with %d workers", p.workerCount)
	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Stop stops the worker pool and waits for in-flight jobs
func (p *JobProcessor) Stop() {
	log.Println("Stopping job processor")
	close(p.stopChan)
	p.cancel()
	p.wg.Wait()
	log.Println("Job processor stopped")
}

func (p *JobProcessor) worker(id int) {
	defer p.wg.Done()

	jobTypes := make([]JobType, 0, len(p.handlers))
	for jobType := range p.handlers {
		jobTypes = append(jobTypes, jobType)
	}
	if len(jobTypes) == 0 {
		log.Printf("Worker %d exiting: no handlers registered", id)
		return
	}

	for {
		select {
		case <-p.stopChan:
			return
		default:
			for _, jobType := range jobTypes {
				job, err := p.queue.Dequeue(jobType)
				if err != nil {
					log.Printf("Worker %d error dequeueing from %s: %v", id, jobType, err)
					continue
				}
				if job == nil {
					continue
				}

				if err := p.processJob(job); err != nil {
					log.Printf("Worker %d error processing job %s: %v", id, job.ID, err)
				}

				// One job per iteration so other queues get a turn
				break
			}

			time.Sleep(100 * time.Millisecond)
		}
	}
}

func (p *JobProcessor) processJob(job *Job) error {
	handler, ok := p.handlers[job.Type]
	if !ok {
		err := fmt.Errorf("no handler registered for job type: %s", job.Type)
		p.queue.Fail(job, err)
		return err
	}

	if err := handler(p.ctx, *job); err != nil {
		p.queue.Fail(job, err)
		return fmt.Errorf("job processing failed: %w", err)
	}

	p.queue.Complete(job)
	return nil
}
