package certificate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/stratohost/certd/internal/repository"
)

type fakeDomainRepo struct {
	records  []*repository.DomainRecord
	listErr  error
	setErr   error
	gotLimit int
	updated  map[uuid.UUID]uuid.UUID
}

func (f *fakeDomainRepo) ListByDomain(_ context.Context, _ string, limit int) ([]*repository.DomainRecord, error) {
	f.gotLimit = limit
	return f.records, f.listErr
}

func (f *fakeDomainRepo) SetCertificateRef(_ context.Context, id uuid.UUID, certificateID uuid.UUID) error {
	if f.setErr != nil {
		return f.setErr
	}
	if f.updated == nil {
		f.updated = make(map[uuid.UUID]uuid.UUID)
	}
	f.updated[id] = certificateID
	return nil
}

type fakeProjectCache struct {
	err         error
	invalidated []uuid.UUID
}

func (f *fakeProjectCache) Invalidate(_ context.Context, projectID uuid.UUID) error {
	f.invalidated = append(f.invalidated, projectID)
	return f.err
}

func domainRecords(n int, projectID *uuid.UUID) []*repository.DomainRecord {
	records := make([]*repository.DomainRecord, n)
	for i := range records {
		records[i] = &repository.DomainRecord{
			ID:        uuid.New(),
			Domain:    "app.customer.com",
			ProjectID: projectID,
			UpdatedAt: time.Now().UTC(),
		}
	}
	return records
}

func TestPropagateUpdatesEveryMatchingRecord(t *testing.T) {
	projectID := uuid.New()
	repo := &fakeDomainRepo{records: domainRecords(7, &projectID)}
	cache := &fakeProjectCache{}

	updater := NewFanOutUpdater(FanOutUpdaterConfig{Domains: repo, Projects: cache})

	certID := uuid.New()
	if err := updater.Propagate(context.Background(), certID, "app.customer.com"); err != nil {
		t.Fatalf("Propagate returned error: %v", err)
	}

	if len(repo.updated) != 7 {
		t.Errorf("%d records updated, want 7", len(repo.updated))
	}
	for id, got := range repo.updated {
		if got != certID {
			t.Errorf("record %s points at %s, want %s", id, got, certID)
		}
	}
	if len(cache.invalidated) != 7 {
		t.Errorf("%d cache invalidations, want 7", len(cache.invalidated))
	}
}

func TestPropagateUsesDefaultBatchLimit(t *testing.T) {
	repo := &fakeDomainRepo{}
	updater := NewFanOutUpdater(FanOutUpdaterConfig{Domains: repo})

	if err := updater.Propagate(context.Background(), uuid.New(), "app.customer.com"); err != nil {
		t.Fatalf("Propagate returned error: %v", err)
	}
	if repo.gotLimit != repository.DefaultFanOutLimit {
		t.Errorf("limit = %d, want %d", repo.gotLimit, repository.DefaultFanOutLimit)
	}
}

func TestPropagateCacheFailureIsNotFatal(t *testing.T) {
	projectID := uuid.New()
	repo := &fakeDomainRepo{records: domainRecords(3, &projectID)}
	cache := &fakeProjectCache{err: errors.New("redis down")}

	updater := NewFanOutUpdater(FanOutUpdaterConfig{Domains: repo, Projects: cache})

	if err := updater.Propagate(context.Background(), uuid.New(), "app.customer.com"); err != nil {
		t.Fatalf("cache failure propagated: %v", err)
	}
	if len(repo.updated) != 3 {
		t.Errorf("%d records updated, want 3", len(repo.updated))
	}
}

func TestPropagateRecordUpdateFailureIsFatal(t *testing.T) {
	repo := &fakeDomainRepo{
		records: domainRecords(2, nil),
		setErr:  errors.New("deadlock detected"),
	}
	updater := NewFanOutUpdater(FanOutUpdaterConfig{Domains: repo})

	if err := updater.Propagate(context.Background(), uuid.New(), "app.customer.com"); err == nil {
		t.Fatal("record update failure was swallowed")
	}
}
