package store

import (
	"context"
	"testing"
	"time"

	"fleetwatch/internal/model"
	"fleetwatch/internal/state"
)

func TestMemoryUpsertAndList(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	evs := []model.Event{
		{ID: "e2", TrailerID: "tr-1", State: state.Alarm, Time: base.Add(time.Minute)},
		{ID: "e1", TrailerID: "tr-1", State: state.Armed, Time: base},
	}
	n, err := m.UpsertEvents(ctx, "tr-1", evs)
	if err != nil || n != 2 {
		t.Fatalf("upsert: n=%d err=%v", n, err)
	}
	got, err := m.ListEvents(ctx, "tr-1", time.Time{}, time.Time{}, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0].ID != "e1" || got[1].ID != "e2" {
		t.Fatalf("want ascending e1,e2, got %+v", got)
	}
}

func TestMemoryUpsertIsIdempotent(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	ev := model.Event{ID: "e1", TrailerID: "tr-1", State: state.Alarm, Time: time.Now()}
	if _, err := m.UpsertEvents(ctx, "tr-1", []model.Event{ev}); err != nil {
		t.Fatal(err)
	}
	ev.State = state.AlarmOff
	if _, err := m.UpsertEvents(ctx, "tr-1", []model.Event{ev}); err != nil {
		t.Fatal(err)
	}
	got, _ := m.ListEvents(ctx, "tr-1", time.Time{}, time.Time{}, 0)
	if len(got) != 1 {
		t.Fatalf("want 1 event after re-upsert, got %d", len(got))
	}
	if got[0].State != state.AlarmOff {
		t.Fatalf("re-upsert should overwrite, got state %v", got[0].State)
	}
}

func TestMemorySetInteractions(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	_, _ = m.UpsertEvents(ctx, "tr-1", []model.Event{{ID: "e1", TrailerID: "tr-1", State: state.Alarm, Time: time.Now()}})
	inter := []model.Interaction{{State: state.Silenced, Time: time.Now()}}
	ev, err := m.SetInteractions(ctx, "e1", inter)
	if err != nil {
		t.Fatal(err)
	}
	if len(ev.Interactions) != 1 || ev.Interactions[0].State != state.Silenced {
		t.Fatalf("interactions not applied: %+v", ev.Interactions)
	}
	if _, err := m.SetInteractions(ctx, "missing", inter); err != ErrNotFound {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestMemoryReplaceTrailerEvents(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	_, _ = m.UpsertEvents(ctx, "tr-1", []model.Event{
		{ID: "old", TrailerID: "tr-1", State: state.Alarm, Time: time.Now()},
	})
	err := m.ReplaceTrailerEvents(ctx, "tr-1", []model.Event{
		{ID: "new", TrailerID: "tr-1", State: state.Armed, Time: time.Now()},
	})
	if err != nil {
		t.Fatal(err)
	}
	got, _ := m.ListEvents(ctx, "tr-1", time.Time{}, time.Time{}, 0)
	if len(got) != 1 || got[0].ID != "new" {
		t.Fatalf("replace did not swap set: %+v", got)
	}
	if _, err := m.GetEvent(ctx, "old"); err != ErrNotFound {
		t.Fatalf("old event should be gone, got %v", err)
	}
}

func TestMemorySubscriptionsMatch(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	s1, _ := m.CreateSubscription(ctx, model.SubscriptionRequest{URL: "https://a", Events: []string{"trailer.alarm"}})
	_, _ = m.CreateSubscription(ctx, model.SubscriptionRequest{URL: "https://b", Events: []string{"trailer.engine_off"}})
	s3, _ := m.CreateSubscription(ctx, model.SubscriptionRequest{URL: "https://c", Events: []string{"*"}})

	got, err := m.GetSubscriptionsForEvent(ctx, "trailer.alarm")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("want 2 matching subs, got %d", len(got))
	}
	if got[0].ID != s1.ID || got[1].ID != s3.ID {
		t.Fatalf("wrong subs matched: %+v", got)
	}
}

func TestMemoryWebhookQueue(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	id, err := m.EnqueueWebhook(ctx, "sub-1", "trailer.alarm", "https://a", "sec", []byte(`{}`))
	if err != nil {
		t.Fatal(err)
	}
	due, err := m.FetchDueWebhookDeliveries(ctx, 10)
	if err != nil || len(due) != 1 || due[0].ID != id {
		t.Fatalf("fetch due: %v %+v", err, due)
	}

	// failed attempt scheduled for later is no longer due
	later := time.Now().Add(time.Hour)
	if err := m.MarkWebhookDelivery(ctx, id, false, &later, "boom", 500, 12); err != nil {
		t.Fatal(err)
	}
	due, _ = m.FetchDueWebhookDeliveries(ctx, 10)
	if len(due) != 0 {
		t.Fatalf("retry should not be due yet, got %d", len(due))
	}

	if err := m.FailWebhookDelivery(ctx, id, "gave up", 500, 10); err != nil {
		t.Fatal(err)
	}
	due, _ = m.FetchDueWebhookDeliveries(ctx, 10)
	if len(due) != 0 {
		t.Fatalf("failed delivery must stay out of the queue")
	}
}
