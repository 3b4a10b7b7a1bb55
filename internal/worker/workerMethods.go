package worker

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/akolanti/ResearchAssistant/internal/config"
	jobmodel "github.com/akolanti/ResearchAssistant/internal/domain/jobModel"
	"github.com/akolanti/ResearchAssistant/internal/metrics"
	"github.com/akolanti/ResearchAssistant/pkg/logger_i"
)

func executeJob(job jobmodel.Job) {
	start := time.Now()
	defer func() {
		metrics.CaptureJobMetrics(string(job.JobType), time.Since(start))
	}()
	ctxTrace := logger_i.ContextWithTraceId(context.Background(), job.TraceId)
	// state writes must still land after the job context timed out
	saveCtx := context.WithoutCancel(ctxTrace)
	ctx, cancel := context.WithTimeout(ctxTrace, jobTimeout(job.JobType))
	defer cancel()
	log := logger.WithContext(ctx).With("job Id", job.Id)
	log.Debug("Processing job", "type", job.JobType)

	job = saveJobState(saveCtx, job, jobmodel.JobStatusRunning, log)

	if job.JobType == jobmodel.JobTypeIngest {
		job = _ragService.IngestDocument(ctx, job)
	} else {
		job = _ragService.ProcessRequest(ctx, job)
	}

	job.EndTime = time.Now()
	status := jobmodel.JobStatusComplete
	if job.Status == jobmodel.JobStatusError {
		status = jobmodel.JobStatusError
	}
	saveJobState(saveCtx, job, status, log)
	log.Debug("Job finished", "status", status, "elapsed", time.Since(start))
}

func jobTimeout(t jobmodel.JobType) time.Duration {
	if t == jobmodel.JobTypeIngest {
		return config.IngestJobTimeout
	}
	return config.QueryJobTimeout
}

// removeWorker expects the caller to have already released its slot in currentWorkerCount.
func removeWorker(reason string) {
	workerWaitGroup.Done()
	logger.Info("Removed worker", "reason", reason, "workerCount", atomic.LoadInt64(&currentWorkerCount))
	metrics.DecrementActiveWorkerCount()
}

func saveJobState(ctx context.Context, job jobmodel.Job, jobStatus jobmodel.JobStatus, log *logger_i.Logger) jobmodel.Job {
	job.Status = jobStatus
	if err := _jobService.JobStore.SaveJob(ctx, job); err != nil {
		log.Error("Failed to update job status", "err", err)
	}
	return job
}
