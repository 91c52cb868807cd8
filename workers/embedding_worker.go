package workers

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/classroll/attendancebackend/repository"
	"github.com/classroll/attendancebackend/services"
)

// EmbeddingJob asks for one crop's embedding under one model.
type EmbeddingJob struct {
	CropID uint
	Model  string
	Force  bool
}

// EmbeddingProcessor runs embedding generation in the background so bulk
// uploads do not block request handlers. Duplicate jobs for the same
// (crop, model) pair are coalesced while one is pending.
type EmbeddingProcessor struct {
	JobQueue   chan EmbeddingJob
	Embeddings *services.EmbeddingService
	Sessions   repository.SessionRepositoryInterface
	Crops      repository.FaceCropRepositoryInterface
	Wg         sync.WaitGroup
	StopChan   chan struct{}
	Pending    map[string]bool
	Mutex      sync.Mutex
}

func NewEmbeddingProcessor(
	embeddings *services.EmbeddingService,
	sessions repository.SessionRepositoryInterface,
	crops repository.FaceCropRepositoryInterface,
	queueSize, numWorkers int,
) *EmbeddingProcessor {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	if queueSize <= 0 {
		queueSize = 100
	}
	proc := &EmbeddingProcessor{
		JobQueue:   make(chan EmbeddingJob, queueSize),
		Embeddings: embeddings,
		Sessions:   sessions,
		Crops:      crops,
		StopChan:   make(chan struct{}),
		Pending:    make(map[string]bool),
	}
	proc.Wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go proc.worker(i)
	}
	log.Printf("Started %d embedding worker(s) with queue size %d", numWorkers, queueSize)
	return proc
}

func (ep *EmbeddingProcessor) worker(id int) {
	defer ep.Wg.Done()

	log.Printf("Embedding worker %d started", id)
	for {
		select {
		case job, ok := <-ep.JobQueue:
			if !ok {
				log.Printf("Embedding worker %d stopping: job queue closed", id)
				return
			}

			pendingKey := pendingKey(job)
			_, err := ep.Embeddings.Generate(context.Background(), job.CropID, job.Model, job.Force)
			if err != nil {
				// ErrModelUnavailable and ErrCropNotFound mean the job can
				// never succeed; everything else is worth surfacing too
				log.Printf("Embedding worker %d: ERROR generating for crop %d model %s: %v", id, job.CropID, job.Model, err)
			}

			ep.Mutex.Lock()
			delete(ep.Pending, pendingKey)
			ep.Mutex.Unlock()

		case <-ep.StopChan:
			log.Printf("Embedding worker %d stopping: stop signal received", id)
			return
		}
	}
}

// QueueJob queues one crop for generation unless the same (crop, model) pair
// is already waiting. Returns false when coalesced or when the queue is full.
func (ep *EmbeddingProcessor) QueueJob(job EmbeddingJob) bool {
	key := pendingKey(job)

	ep.Mutex.Lock()
	if ep.Pending[key] {
		ep.Mutex.Unlock()
		return false
	}
	ep.Pending[key] = true
	ep.Mutex.Unlock()

	select {
	case ep.JobQueue <- job:
		return true
	default:
		log.Printf("WARNING: embedding job queue full, dropped crop %d model %s", job.CropID, job.Model)
		ep.Mutex.Lock()
		delete(ep.Pending, key)
		ep.Mutex.Unlock()
		return false
	}
}

// QueueSession queues generation for every crop of every image in a session.
// Returns the number of jobs actually enqueued.
func (ep *EmbeddingProcessor) QueueSession(sessionID uint, model string, force bool) (int, error) {
	images, err := ep.Sessions.ListImagesBySessionID(sessionID)
	if err != nil {
		return 0, fmt.Errorf("failed to list images for session %d: %w", sessionID, err)
	}
	if len(images) == 0 {
		return 0, nil
	}

	queued := 0
	for _, image := range images {
		crops, err := ep.Crops.ListByImageID(image.ID)
		if err != nil {
			return queued, fmt.Errorf("failed to list crops for image %d: %w", image.ID, err)
		}
		for _, crop := range crops {
			if ep.QueueJob(EmbeddingJob{CropID: crop.ID, Model: model, Force: force}) {
				queued++
			}
		}
	}
	log.Printf("Queued %d embedding job(s) for session %d (model %s)", queued, sessionID, model)
	return queued, nil
}

func (ep *EmbeddingProcessor) Stop() {
	log.Println("Stopping embedding workers...")
	close(ep.StopChan)
	ep.Wg.Wait()
	log.Println("All embedding workers stopped")
}

func pendingKey(job EmbeddingJob) string {
	return fmt.Sprintf("%d:%s", job.CropID, job.Model)
}
