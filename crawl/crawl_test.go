package crawl_test

import (
	"testing"
	"time"

	"github.com/xraph/sluice/crawl"
)

func TestCeiling(t *testing.T) {
	tests := []struct {
		name    string
		c       *crawl.Crawl
		want    int
		bounded bool
	}{
		{"nil crawl", nil, 0, false},
		{"unconfigured", &crawl.Crawl{ID: "c1"}, 0, false},
		{"max concurrency", &crawl.Crawl{ID: "c1", MaxConcurrency: 4}, 4, true},
		{"delay only", &crawl.Crawl{ID: "c1", Delay: 5 * time.Second}, 1, true},
		{"max concurrency wins over delay", &crawl.Crawl{ID: "c1", MaxConcurrency: 3, Delay: time.Second}, 3, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, bounded := tt.c.Ceiling()
			if got != tt.want || bounded != tt.bounded {
				t.Errorf("Ceiling() = (%d, %v), want (%d, %v)", got, bounded, tt.want, tt.bounded)
			}
			if tt.c.Gated() != tt.bounded {
				t.Errorf("Gated() = %v, want %v", tt.c.Gated(), tt.bounded)
			}
		})
	}
}
