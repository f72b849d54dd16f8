package postgres

import (
	"context"
	"testing"

	"github.com/pashagolub/pgxmock/v4"

	"github.com/xraph/sluice/tenant"
)

func TestLimits_KnownTeam(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	mock.ExpectQuery("SELECT crawl_limit, extract_limit, agent_preview_limit").
		WithArgs("team-1").
		WillReturnRows(pgxmock.NewRows([]string{"crawl_limit", "extract_limit", "agent_preview_limit"}).
			AddRow(8, 4, 1))

	src := NewFromDB(mock)
	l, err := src.Limits(context.Background(), "team-1")
	if err != nil {
		t.Fatalf("Limits: %v", err)
	}
	if l.Crawl != 8 || l.Extract != 4 || l.ExtractAgentPreview != 1 {
		t.Errorf("Limits = %+v, want {8 4 1}", l)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestLimits_UnknownTeamYieldsZero(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	mock.ExpectQuery("SELECT crawl_limit, extract_limit, agent_preview_limit").
		WithArgs("ghost").
		WillReturnRows(pgxmock.NewRows([]string{"crawl_limit", "extract_limit", "agent_preview_limit"}))

	src := NewFromDB(mock)
	l, err := src.Limits(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("Limits: %v", err)
	}
	if l != (tenant.Limits{}) {
		t.Errorf("Limits = %+v, want zero value", l)
	}
	if l.For(tenant.KindCrawl) != tenant.DefaultCeiling {
		t.Errorf("resolved ceiling = %d, want default", l.For(tenant.KindCrawl))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestMigrate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS concurrency_limits").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	src := NewFromDB(mock)
	if err := src.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}
