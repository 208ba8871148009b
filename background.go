package main

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// staleVerifications returns the verifications that have both files
// uploaded but whose stored records do not match them yet, for example
// because the server stopped while their job was queued. Inputs that ended
// in a recorded outcome count as processed.
func staleVerifications(db *gorm.DB) ([]Verification, error) {
	all, err := ListVerifications(db)
	if err != nil {
		return nil, err
	}
	var stale []Verification
	for _, v := range all {
		if v.ReferencePath == "" || v.ImagePath == "" {
			continue
		}
		referenceCurrent := v.ReferenceSource == v.ReferenceHash
		if referenceCurrent && v.ReferenceOutcome != "" {
			continue
		}
		if !referenceCurrent || v.ObservedSource != imageSourceKey(&v) {
			stale = append(stale, v)
		}
	}
	return stale, nil
}

// requeueStaleVerifications queues a job for every stale verification
func requeueStaleVerifications(db *gorm.DB, enqueue func(*Job)) (int, error) {
	stale, err := staleVerifications(db)
	if err != nil {
		return 0, fmt.Errorf("error listing verifications: %w", err)
	}
	for _, v := range stale {
		job := newJob(v.ID)
		jobStore.addJob(job)
		enqueue(job)
	}
	return len(stale), nil
}

// StartBackgroundTasks requeues interrupted verifications once the
// database answers, backing off exponentially while it does not.
func StartBackgroundTasks(ctx context.Context, app *App) {
	go func() {
		minBackoffDuration := 10 * time.Second
		maxBackoffDuration := time.Hour
		backoffDuration := minBackoffDuration

		for {
			count, err := requeueStaleVerifications(app.Database, func(job *Job) { jobQueue <- job })
			if err == nil {
				if count > 0 {
					log.Infof("Requeued %d interrupted verifications", count)
				}
				return
			}

			log.Errorf("Error requeueing verifications: %v", err)
			select {
			case <-ctx.Done():
				log.Infoln("Background tasks shutting down")
				return
			case <-time.After(backoffDuration):
			}

			// Exponential backoff logic
			backoffDuration *= 2
			if backoffDuration > maxBackoffDuration {
				log.Warnf("Max backoff duration reached. Using %v", maxBackoffDuration)
				backoffDuration = maxBackoffDuration
			}
		}
	}()
}
