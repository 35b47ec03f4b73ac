package config

import (
	"fmt"
	"net/url"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	// Validate Embedding config
	if c.Embedding.VectorDim != 1536 && c.Embedding.VectorDim != 3072 {
		errors = append(errors, ValidationError{
			Field:   "embedding.vector_dim",
			Message: "vector_dim must be 1536 or 3072",
		})
	}

	if c.Embedding.RateLimit <= 0 {
		errors = append(errors, ValidationError{
			Field:   "embedding.rate_limit",
			Message: "rate_limit must be positive",
		})
	}

	if c.Embedding.BaseURL != "" {
		if _, err := url.Parse(c.Embedding.BaseURL); err != nil {
			errors = append(errors, ValidationError{
				Field:   "embedding.base_url",
				Message: "invalid embedding base URL",
			})
		}
	}

	// Validate Database config
	if c.Database.URL != "" {
		if _, err := url.Parse(c.Database.URL); err != nil {
			errors = append(errors, ValidationError{
				Field:   "database.url",
				Message: "invalid database URL",
			})
		}
	}

	if c.Database.BatchSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "database.batch_size",
			Message: "batch_size must be positive",
		})
	}

	// Validate Chunker config. Overlap at or above max_chars would stall the
	// chunking cursor, so it is rejected here rather than checked per call.
	if c.Chunker.MaxChars < 1 {
		errors = append(errors, ValidationError{
			Field:   "chunker.max_chars",
			Message: "max_chars must be positive",
		})
	}

	if c.Chunker.OverlapChars < 0 || c.Chunker.OverlapChars >= c.Chunker.MaxChars {
		errors = append(errors, ValidationError{
			Field:   "chunker.overlap_chars",
			Message: "overlap_chars must be non-negative and less than max_chars",
		})
	}

	// Validate Jobs config
	if c.Jobs.Workers < 1 {
		errors = append(errors, ValidationError{
			Field:   "jobs.workers",
			Message: "workers must be positive",
		})
	}

	if c.Jobs.QueueSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "jobs.queue_size",
			Message: "queue_size must be positive",
		})
	}

	// Validate Fetcher config
	if c.Fetcher.RateLimit <= 0 {
		errors = append(errors, ValidationError{
			Field:   "fetcher.rate_limit",
			Message: "rate_limit must be positive",
		})
	}

	return errors
}
