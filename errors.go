package sluice

import "errors"

var (
	// Store errors.
	ErrNoStore     = errors.New("sluice: no store configured")
	ErrStoreClosed = errors.New("sluice: store closed")

	// Submission errors.
	ErrLedgerUnavailable      = errors.New("sluice: concurrency ledger unavailable")
	ErrWorkerQueueUnavailable = errors.New("sluice: worker queue unavailable")

	// Wait errors.
	ErrScrapeTimeoutInQueue = errors.New("sluice: job timed out while waiting in the concurrency queue")
	ErrScrapeTimeout        = errors.New("sluice: job did not complete within the wait deadline")
	ErrResultNotFound       = errors.New("sluice: job completed but no result was found")

	// Not found errors.
	ErrJobNotFound        = errors.New("sluice: job not found")
	ErrCrawlNotFound      = errors.New("sluice: crawl not found")
	ErrEventNotFound      = errors.New("sluice: event not found")
	ErrDeadLetterNotFound = errors.New("sluice: dead letter entry not found")
	ErrBlobNotFound       = errors.New("sluice: blob not found")

	// Conflict errors.
	ErrJobAlreadyExists = errors.New("sluice: job already exists")

	// State errors.
	ErrMaxRetriesExceeded = errors.New("sluice: max retries exceeded")
)
