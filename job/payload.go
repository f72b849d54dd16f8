package job

// Payload carries the scrape target and its options across the worker
// queue. Options the admission layer does not model travel through the
// Extensions map untouched.
type Payload struct {
	URL     string        `json:"url"`
	Options ScrapeOptions `json:"options"`

	// Extensions carries caller options the core does not interpret.
	Extensions map[string]any `json:"extensions,omitempty"`
}

// ScrapeOptions is the closed set of scrape options the core understands.
type ScrapeOptions struct {
	Formats         []string          `json:"formats,omitempty"`
	Headers         map[string]string `json:"headers,omitempty"`
	OnlyMainContent bool              `json:"only_main_content,omitempty"`
	WaitAfterLoadMS int               `json:"wait_after_load_ms,omitempty"`
	Mobile          bool              `json:"mobile,omitempty"`
	SkipTLSCheck    bool              `json:"skip_tls_check,omitempty"`
}
