package mysql

import (
	"context"
	"database/sql/driver"
	"testing"

	xerrors "QueryChain/internal/errors"
	"QueryChain/internal/storage/sqltest"
)

var historyColumns = []string{"id", "query_id", "query", "normalized", "answer", "outcome", "pattern", "plan_kind", "error_code", "steps", "duration_ms", "created_at"}

func TestMemoryHistoryRepositoryRoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	repo, err := NewMemoryHistoryRepository(dir)
	if err != nil {
		t.Fatalf("failed to create memory repo: %v", err)
	}

	ctx := context.Background()
	records := []*HistoryRecord{
		{QueryID: "q-1", Query: "What is 2 + 2?", Answer: "4.0", Outcome: "answered", CreatedAt: 10},
		{QueryID: "q-2", Query: "hello there", Answer: "Generated Answer for: hello there", Outcome: "no_match", CreatedAt: 20},
		{QueryID: "q-3", Query: "weather in London", Answer: "18°C", Outcome: "answered", CreatedAt: 30},
	}
	for _, record := range records {
		if err := repo.Save(ctx, record); err != nil {
			t.Fatalf("save failed: %v", err)
		}
	}
	if records[2].ID != 3 {
		t.Fatalf("expected sequential ids, got %d", records[2].ID)
	}

	latest, err := repo.ListLatest(ctx, 2)
	if err != nil {
		t.Fatalf("list latest failed: %v", err)
	}
	if len(latest) != 2 || latest[0].QueryID != "q-3" || latest[1].QueryID != "q-2" {
		t.Fatalf("unexpected order: %+v", latest)
	}

	counts, err := repo.CountByOutcome(ctx)
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if counts["answered"] != 2 || counts["no_match"] != 1 {
		t.Fatalf("unexpected counts: %v", counts)
	}

	reopened, err := NewMemoryHistoryRepository(dir)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	restored, err := reopened.ListLatest(ctx, 0)
	if err != nil {
		t.Fatalf("list after reopen failed: %v", err)
	}
	if len(restored) != 3 || restored[0].QueryID != "q-3" {
		t.Fatalf("history not restored: %+v", restored)
	}

	next := &HistoryRecord{QueryID: "q-4", Outcome: "answered", CreatedAt: 40}
	if err := reopened.Save(ctx, next); err != nil {
		t.Fatalf("save after reopen failed: %v", err)
	}
	if next.ID != 4 {
		t.Fatalf("expected id to continue from disk, got %d", next.ID)
	}
}

func TestMemoryHistoryRepositoryRejectsNil(t *testing.T) {
	t.Parallel()

	repo, err := NewMemoryHistoryRepository(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create memory repo: %v", err)
	}
	if err := repo.Save(context.Background(), nil); err == nil {
		t.Fatalf("expected error for nil record")
	}
}

func TestSQLHistoryRepositorySave(t *testing.T) {
	t.Parallel()

	db := sqltest.Open(t, sqltest.Exec(insertHistorySQL, sqltest.Result{LastID: 42, Affected: 1}))

	repo := &SQLHistoryRepository{db: db}
	record := &HistoryRecord{QueryID: "q-1", Query: "What is 2 + 2?", Answer: "4.0", Outcome: "answered", Steps: 1, CreatedAt: 1}
	if err := repo.Save(context.Background(), record); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if record.ID != 42 {
		t.Fatalf("expected id 42, got %d", record.ID)
	}
}

func TestSQLHistoryRepositoryListLatest(t *testing.T) {
	t.Parallel()

	db := sqltest.Open(t, sqltest.Query(listHistorySQL, historyColumns,
		[]driver.Value{int64(2), "q-2", "weather in Paris", "weather in Paris", "22°C", "answered", "weather", "single", "", int64(1), int64(3), int64(20)},
		[]driver.Value{int64(1), "q-1", "hi", "Hi", "Generated Answer for: hi", "no_match", "", "", "NO_PATTERN_MATCHED", int64(0), int64(1), int64(10)},
	))

	repo := &SQLHistoryRepository{db: db}
	list, err := repo.ListLatest(context.Background(), 2)
	if err != nil {
		t.Fatalf("list latest failed: %v", err)
	}
	if len(list) != 2 || list[0].ID != 2 || list[0].Answer != "22°C" {
		t.Fatalf("unexpected list: %+v", list)
	}
	if list[1].ErrorCode != "NO_PATTERN_MATCHED" {
		t.Fatalf("unexpected error code: %q", list[1].ErrorCode)
	}
}

func TestSQLHistoryRepositoryCountByOutcome(t *testing.T) {
	t.Parallel()

	db := sqltest.Open(t, sqltest.Query(countOutcomeSQL, []string{"outcome", "count"},
		[]driver.Value{"answered", int64(5)},
		[]driver.Value{"tool_failure", int64(2)},
	))

	repo := &SQLHistoryRepository{db: db}
	counts, err := repo.CountByOutcome(context.Background())
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if counts["answered"] != 5 || counts["tool_failure"] != 2 {
		t.Fatalf("unexpected counts: %v", counts)
	}
}

func migrationPrologue(applied ...[]driver.Value) []sqltest.Step {
	return []sqltest.Step{
		sqltest.Query(`SELECT GET_LOCK(?, ?)`, []string{"locked"}, []driver.Value{int64(1)}),
		sqltest.Exec(createMigrationsTableSQL, sqltest.Result{}),
		sqltest.Query(selectMigrationsSQL, []string{"version", "checksum"}, applied...),
	}
}

func expectReleaseLock() sqltest.Step {
	return sqltest.Exec(`DO RELEASE_LOCK(?)`, sqltest.Result{})
}

func TestMigrateAppliesEmbeddedScripts(t *testing.T) {
	t.Parallel()

	files, err := loadMigrationFiles()
	if err != nil {
		t.Fatalf("load migrations failed: %v", err)
	}
	if len(files) < 2 || files[0].version != "0001" || files[1].version != "0002" {
		t.Fatalf("unexpected migrations: %+v", files)
	}

	steps := migrationPrologue()
	for _, file := range files {
		steps = append(steps, sqltest.Begin())
		for _, stmt := range file.statements {
			steps = append(steps, sqltest.Exec(stmt, sqltest.Result{}))
		}
		steps = append(steps,
			sqltest.Exec(insertMigrationSQL, sqltest.Result{Affected: 1}),
			sqltest.Commit(),
		)
	}
	steps = append(steps, expectReleaseLock())

	db := sqltest.Open(t, steps...)
	if err := Migrate(context.Background(), db); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}
}

func TestMigrateSkipsApplied(t *testing.T) {
	t.Parallel()

	files, err := loadMigrationFiles()
	if err != nil {
		t.Fatalf("load migrations failed: %v", err)
	}
	var applied [][]driver.Value
	for _, file := range files {
		applied = append(applied, []driver.Value{file.version, file.checksum})
	}

	steps := append(migrationPrologue(applied...), expectReleaseLock())
	db := sqltest.Open(t, steps...)
	if err := Migrate(context.Background(), db); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}
}

func TestMigrateDetectsEditedScript(t *testing.T) {
	t.Parallel()

	steps := append(migrationPrologue([]driver.Value{"0001", "not-the-real-checksum"}), expectReleaseLock())
	db := sqltest.Open(t, steps...)
	err := Migrate(context.Background(), db)
	if !xerrors.HasCode(err, xerrors.CodeStorageFailure) {
		t.Fatalf("expected storage failure for edited migration, got %v", err)
	}
	if version, _ := xerrors.MetadataOf(err, "version"); version != "0001" {
		t.Fatalf("expected version metadata, got %q", version)
	}
}

func TestMigrateLockTimeout(t *testing.T) {
	t.Parallel()

	db := sqltest.Open(t, sqltest.Query(`SELECT GET_LOCK(?, ?)`, []string{"locked"}, []driver.Value{int64(0)}))
	if err := Migrate(context.Background(), db); !xerrors.HasCode(err, xerrors.CodeTimeout) {
		t.Fatalf("expected timeout when lock is held, got %v", err)
	}
}

func TestSplitSQLStatements(t *testing.T) {
	t.Parallel()

	got := splitSQLStatements("-- header comment; with a semicolon\nCREATE TABLE a (id INT);\n\n  ;CREATE INDEX i ON a (id);")
	if len(got) != 2 || got[0] != "CREATE TABLE a (id INT)" || got[1] != "CREATE INDEX i ON a (id)" {
		t.Fatalf("unexpected statements: %q", got)
	}
	if v := parseMigrationVersion("0002_add_index.sql"); v != "0002" {
		t.Fatalf("unexpected version: %s", v)
	}
	if v := parseMigrationVersion("0003.sql"); v != "0003" {
		t.Fatalf("unexpected version: %s", v)
	}
}

func TestParseDSN(t *testing.T) {
	t.Parallel()

	cfg, err := ParseDSN("user:pass@tcp(db:3306)/querychain")
	if err != nil {
		t.Fatalf("parse dsn: %v", err)
	}
	if cfg.Addr != "db:3306" || cfg.DBName != "querychain" || cfg.Timeout != defaultDialTimeout {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if _, err := ParseDSN("  "); !xerrors.HasCode(err, xerrors.CodeInvalidArgument) {
		t.Fatalf("expected invalid argument for empty dsn, got %v", err)
	}
	if _, err := ParseDSN("user@tcp(db:3306"); !xerrors.HasCode(err, xerrors.CodeInvalidArgument) {
		t.Fatalf("expected invalid argument for malformed dsn, got %v", err)
	}
}
