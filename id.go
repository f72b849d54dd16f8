package sluice

import "github.com/xraph/sluice/id"

// ID is the primary identifier type for sluice entities.
type ID = id.ID

// JobID is the identifier type for scrape jobs.
type JobID = id.JobID
