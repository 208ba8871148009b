package main

import (
	"context"
	"errors"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	jobPending    = "pending"
	jobInProgress = "in_progress"
	jobCompleted  = "completed"
	jobFailed     = "failed"
	jobCancelled  = "cancelled"
)

var (
	jobCancellersMu sync.Mutex
	jobCancellers   = make(map[string]context.CancelFunc)
)

// Job represents one run of ProcessVerification
type Job struct {
	ID             string
	VerificationID uint
	Status         string // "pending", "in_progress", "completed", "failed", "cancelled"
	Outcome        *VerificationOutcome
	Error          string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// JobStore manages jobs and their statuses
type JobStore struct {
	sync.RWMutex
	jobs map[string]*Job
}

var (
	logger = logrus.New()

	jobStore = newJobStore()
	jobQueue = make(chan *Job, 100) // Buffered channel with capacity of 100 jobs
)

func init() {
	logger.SetOutput(os.Stdout)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	logger.SetLevel(logrus.InfoLevel)
}

func newJobStore() *JobStore {
	return &JobStore{jobs: make(map[string]*Job)}
}

func generateJobID() string {
	return uuid.New().String()
}

func newJob(verificationID uint) *Job {
	now := time.Now()
	return &Job{
		ID:             generateJobID(),
		VerificationID: verificationID,
		Status:         jobPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func (store *JobStore) addJob(job *Job) {
	store.Lock()
	defer store.Unlock()
	store.jobs[job.ID] = job
	logger.WithFields(logrus.Fields{"job_id": job.ID, "verification_id": job.VerificationID}).Info("Job added")
}

// getJob returns a copy of the job so callers can read it without locking
func (store *JobStore) getJob(jobID string) (Job, bool) {
	store.RLock()
	defer store.RUnlock()
	job, exists := store.jobs[jobID]
	if !exists {
		return Job{}, false
	}
	return *job, true
}

func (store *JobStore) GetAllJobs() []Job {
	store.RLock()
	defer store.RUnlock()

	jobs := make([]Job, 0, len(store.jobs))
	for _, job := range store.jobs {
		jobs = append(jobs, *job)
	}

	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})

	return jobs
}

func (store *JobStore) updateJobStatus(jobID, status string) {
	store.update(jobID, func(job *Job) { job.Status = status })
}

func (store *JobStore) finishJob(jobID string, outcome *VerificationOutcome, err error) {
	store.update(jobID, func(job *Job) {
		if err != nil {
			job.Status = jobFailed
			job.Error = err.Error()
			return
		}
		job.Status = jobCompleted
		job.Outcome = outcome
	})
}

func (store *JobStore) update(jobID string, fn func(*Job)) {
	store.Lock()
	defer store.Unlock()
	if job, exists := store.jobs[jobID]; exists {
		fn(job)
		job.UpdatedAt = time.Now()
		logger.WithFields(logrus.Fields{"job_id": job.ID, "status": job.Status}).Info("Job status updated")
	}
}

// cancelJob cancels a running job. It reports false when the job is not
// running.
func cancelJob(jobID string) bool {
	jobCancellersMu.Lock()
	cancel, ok := jobCancellers[jobID]
	jobCancellersMu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

func startWorkerPool(app *App, numWorkers int) {
	for i := 0; i < numWorkers; i++ {
		go func(workerID int) {
			logger.Infof("Worker %d started", workerID)
			for job := range jobQueue {
				logger.Infof("Worker %d processing job: %s", workerID, job.ID)
				processJob(app, job)
			}
		}(i)
	}
}

func processJob(app *App, job *Job) {
	jobStore.updateJobStatus(job.ID, jobInProgress)

	jobCtx, cancel := context.WithCancel(context.Background())
	jobCancellersMu.Lock()
	jobCancellers[job.ID] = cancel
	jobCancellersMu.Unlock()
	defer func() {
		cancel()
		jobCancellersMu.Lock()
		delete(jobCancellers, job.ID)
		jobCancellersMu.Unlock()
	}()

	outcome, err := app.ProcessVerification(jobCtx, job.VerificationID)
	if err != nil {
		if errors.Is(jobCtx.Err(), context.Canceled) {
			jobStore.updateJobStatus(job.ID, jobCancelled)
			logger.Infof("Job cancelled: %s", job.ID)
			return
		}
		logger.Errorf("Error processing verification %d for job %s: %v", job.VerificationID, job.ID, err)
		jobStore.finishJob(job.ID, nil, err)
		return
	}

	jobStore.finishJob(job.ID, outcome, nil)
	logger.Infof("Job completed: %s", job.ID)
}
