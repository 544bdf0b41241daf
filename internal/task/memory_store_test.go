package task

import (
	"context"
	"errors"
	"testing"
	"time"

	xerrors "QueryChain/internal/errors"
)

func TestMemoryStoreListWithFilters(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	base := time.Now().Add(-2 * time.Minute)

	tasks := []*Task{
		{ID: "t1", Query: "What is 2 + 2?", Status: StatusPending, MaxRetries: 3},
		{ID: "t2", Query: "Weather in Paris", Status: StatusPending, MaxRetries: 3},
		{ID: "t3", Query: "Convert 100 USD to EUR", Status: StatusPending, MaxRetries: 3},
	}

	for _, task := range tasks {
		if err := store.Create(ctx, task); err != nil {
			t.Fatalf("create task %s: %v", task.ID, err)
		}
	}

	if err := store.MarkFailed(ctx, "t2", CodeTaskProcessing, "boom", true); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if err := store.MarkSucceeded(ctx, "t3", ExecutionResult{Answer: "85.0", Outcome: "answered", Pattern: "currency_conversion"}); err != nil {
		t.Fatalf("mark succeeded: %v", err)
	}

	store.mu.Lock()
	store.tasks["t1"].UpdatedAt = base.Unix()
	store.tasks["t2"].UpdatedAt = base.Add(30 * time.Second).Unix()
	store.tasks["t3"].UpdatedAt = base.Add(60 * time.Second).Unix()
	store.mu.Unlock()

	all, err := store.List(ctx, ListOptions{})
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 tasks, got %d", len(all))
	}
	if all[0].ID != "t3" {
		t.Fatalf("expected newest task first, got %s", all[0].ID)
	}

	oldest, err := store.List(ctx, buildListOptions([]ListOption{WithSortOrder(SortByUpdatedAsc), WithLimit(1), WithOffset(1)}))
	if err != nil {
		t.Fatalf("list ascending: %v", err)
	}
	if len(oldest) != 1 || oldest[0].ID != "t2" {
		t.Fatalf("unexpected ascending page: %+v", oldest)
	}

	failed, err := store.List(ctx, buildListOptions([]ListOption{WithStatuses(StatusFailed)}))
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(failed) != 1 || failed[0].ID != "t2" {
		t.Fatalf("unexpected failed list: %+v", failed)
	}

	succeeded, err := store.List(ctx, buildListOptions([]ListOption{WithResultPresence(true)}))
	if err != nil {
		t.Fatalf("list with result: %v", err)
	}
	if len(succeeded) != 1 || succeeded[0].ID != "t3" {
		t.Fatalf("unexpected result list: %+v", succeeded)
	}

	since := base.Add(15 * time.Second)
	recent, err := store.List(ctx, buildListOptions([]ListOption{WithUpdatedSince(since)}))
	if err != nil {
		t.Fatalf("list recent: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("expected 2 tasks to match since filter, got %d", len(recent))
	}

	matched, err := store.List(ctx, buildListOptions([]ListOption{WithQuery("paris")}))
	if err != nil {
		t.Fatalf("list by query: %v", err)
	}
	if len(matched) != 1 || matched[0].ID != "t2" {
		t.Fatalf("unexpected query match: %+v", matched)
	}

	byPattern, err := store.List(ctx, buildListOptions([]ListOption{WithQuery("currency")}))
	if err != nil {
		t.Fatalf("list by pattern: %v", err)
	}
	if len(byPattern) != 1 || byPattern[0].ID != "t3" {
		t.Fatalf("unexpected pattern match: %+v", byPattern)
	}

	answered, err := store.List(ctx, buildListOptions([]ListOption{WithOutcomes("ANSWERED", "no_match"), WithPattern("Currency_Conversion")}))
	if err != nil {
		t.Fatalf("list by outcome: %v", err)
	}
	if len(answered) != 1 || answered[0].ID != "t3" {
		t.Fatalf("unexpected outcome match: %+v", answered)
	}

	none, err := store.List(ctx, buildListOptions([]ListOption{WithOutcomes("tool_failure")}))
	if err != nil {
		t.Fatalf("list by missing outcome: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("expected no tool_failure tasks, got %+v", none)
	}
}

func TestListOptionsDefaults(t *testing.T) {
	opts := buildListOptions([]ListOption{
		WithLimit(500),
		WithOffset(-3),
		WithStatuses(StatusFailed, "bogus", StatusFailed),
		WithOutcomes(" Answered ", "", "answered"),
		WithPattern("  Weather "),
	})
	if opts.Limit != maxListLimit || opts.Offset != 0 {
		t.Fatalf("unexpected paging: %+v", opts)
	}
	if len(opts.Statuses) != 1 || opts.Statuses[0] != StatusFailed {
		t.Fatalf("unexpected statuses: %v", opts.Statuses)
	}
	if len(opts.Outcomes) != 1 || opts.Outcomes[0] != "answered" || opts.Pattern != "weather" {
		t.Fatalf("unexpected result filters: %+v", opts)
	}
	if order, ok := ParseSortOrder("ASC"); !ok || order != SortByUpdatedAsc {
		t.Fatalf("expected ascending order")
	}
	if _, ok := ParseSortOrder("sideways"); ok {
		t.Fatalf("expected invalid order")
	}
}

func TestMemoryStoreStats(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	base := time.Now().Add(-3 * time.Minute)
	tasks := []*Task{
		{ID: "a", Query: "q1", Status: StatusPending, MaxRetries: 3},
		{ID: "b", Query: "q2", Status: StatusPending, MaxRetries: 3},
		{ID: "c", Query: "q3", Status: StatusPending, MaxRetries: 3},
	}

	for _, task := range tasks {
		if err := store.Create(ctx, task); err != nil {
			t.Fatalf("create task %s: %v", task.ID, err)
		}
	}

	if err := store.MarkFailed(ctx, "b", CodeTaskProcessing, "boom", true); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if err := store.MarkSucceeded(ctx, "c", ExecutionResult{Answer: "4.0", Outcome: "answered"}); err != nil {
		t.Fatalf("mark succeeded: %v", err)
	}

	store.mu.Lock()
	store.tasks["a"].UpdatedAt = base.Unix()
	store.tasks["b"].UpdatedAt = base.Add(30 * time.Second).Unix()
	store.tasks["c"].UpdatedAt = base.Add(2 * time.Minute).Unix()
	store.mu.Unlock()

	stats, err := store.Stats(ctx, ListOptions{})
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 3 || stats.Pending != 1 || stats.Failed != 1 || stats.Succeeded != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if stats.NewestUpdatedAt != base.Add(2*time.Minute).Unix() {
		t.Fatalf("unexpected newest timestamp: %d", stats.NewestUpdatedAt)
	}
	if stats.OldestUpdatedAt != base.Unix() {
		t.Fatalf("unexpected oldest timestamp: %d", stats.OldestUpdatedAt)
	}
	if stats.Outcomes["answered"] != 1 || len(stats.Outcomes) != 1 || stats.Finished() != 2 {
		t.Fatalf("unexpected outcome breakdown: %+v", stats)
	}

	withResults, err := store.Stats(ctx, buildListOptions([]ListOption{WithResultPresence(true)}))
	if err != nil {
		t.Fatalf("stats with result: %v", err)
	}
	if withResults.Total != 1 || withResults.Succeeded != 1 {
		t.Fatalf("unexpected stats with result: %+v", withResults)
	}

	withoutResults, err := store.Stats(ctx, buildListOptions([]ListOption{WithResultPresence(false)}))
	if err != nil {
		t.Fatalf("stats without result: %v", err)
	}
	if withoutResults.Total != 2 || withoutResults.Pending != 1 || withoutResults.Failed != 1 {
		t.Fatalf("unexpected stats without result: %+v", withoutResults)
	}
}

func TestMemoryStoreClaimLifecycle(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Create(ctx, &Task{ID: "x", Query: "q", Status: StatusPending, MaxRetries: 2}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Create(ctx, &Task{ID: "x", Query: "q", Status: StatusPending, MaxRetries: 2}); !errors.Is(err, ErrTaskConflict) {
		t.Fatalf("expected conflict on duplicate id, got %v", err)
	}

	claimed, err := store.Claim(ctx, "x")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed.Status != StatusRunning || claimed.Attempts != 1 {
		t.Fatalf("unexpected claimed task: %+v", claimed)
	}
	if _, err := store.Claim(ctx, "x"); !errors.Is(err, ErrTaskConflict) {
		t.Fatalf("expected conflict while running, got %v", err)
	}

	if err := store.MarkFailed(ctx, "x", xerrors.CodeTimeout, "deadline", true); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	task, err := store.Get(ctx, "x")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !task.Terminal() || task.ErrorCode != string(xerrors.CodeTimeout) {
		t.Fatalf("expected terminal failure, got %+v", task)
	}
	if _, err := store.Claim(ctx, "x"); !errors.Is(err, ErrTaskExhausted) {
		t.Fatalf("expected exhausted after terminal failure, got %v", err)
	}
	if _, err := store.Claim(ctx, "missing"); !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Create(ctx, &Task{ID: "c1", Query: "q", Metadata: map[string]any{"source": "cli"}, MaxRetries: 1}); err != nil {
		t.Fatalf("create: %v", err)
	}
	task, err := store.Get(ctx, "c1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	task.Metadata["source"] = "mutated"
	task.Query = "changed"

	again, err := store.Get(ctx, "c1")
	if err != nil {
		t.Fatalf("get again: %v", err)
	}
	if again.Query != "q" || again.Metadata["source"] != "cli" {
		t.Fatalf("store leaked internal state: %+v", again)
	}
}
