package record

import (
	"context"
	"encoding/json"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"
)

// Principal is the caller on whose behalf an operation runs.
type Principal struct {
	ID       string
	Elevated bool // admins & instructors
}

// System is used by offline jobs; it may act on any user's records.
var System = Principal{ID: "system", Elevated: true}

// ErrForbidden is returned when an operation reserved to elevated principals is attempted by anyone else.
var ErrForbidden = errors.New("permission denied")

// RequireElevated returns ErrForbidden unless p is elevated.
func (p Principal) RequireElevated() error {
	if !p.Elevated {
		return ErrForbidden
	}
	return nil
}

// Owner resolves whose records are targeted when the caller asks for requested.
// An empty requested means the caller's own records. Non-elevated callers naming
// someone else get ErrNotFound so that other users' records stay invisible.
func (p Principal) Owner(requested string) (string, error) {
	if requested == "" || requested == p.ID {
		if p.ID == "" {
			return "", ErrNotFound
		}
		return p.ID, nil
	}
	if p.Elevated {
		return requested, nil
	}
	return "", ErrNotFound
}

// scope is the owner constraint for lookups by id; elevated callers see every record.
func (p Principal) scope() string {
	if p.Elevated {
		return ""
	}
	return p.ID
}

// Service applies the ownership rules of one record kind on top of a Store.
type Service struct {
	store Store
	kind  Kind
	mode  Mode
}

func NewService(store Store, kind Kind, mode Mode) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(store, "store"),
		vala.StringNotEmpty(string(kind), "kind"),
	).CheckAndPanic()
	return &Service{store: store, kind: kind, mode: mode}
}

func (svc *Service) Kind() Kind { return svc.kind }
func (svc *Service) Mode() Mode { return svc.mode }

// Upsert writes data under key in a single store operation and returns the stored record.
// key.UserID is the requested owner; it is resolved against p.
// created is false when the record already existed (for append-once kinds, data was discarded).
func (svc *Service) Upsert(ctx context.Context, p Principal, key Key, data json.RawMessage) (Record, bool, error) {
	owner, err := p.Owner(key.UserID)
	if err != nil {
		return Record{}, false, err
	}
	key.Kind = svc.kind
	key.UserID = owner
	key = key.Normalize()
	if err := key.validate(); err != nil {
		return Record{}, false, err
	}
	if err := checkPayload(data); err != nil {
		return Record{}, false, err
	}

	if svc.mode == ModeAppendOnce {
		rec, created, err := svc.store.InsertOnce(ctx, key, data)
		if err != nil {
			return Record{}, false, errors.Wrapf(err, "inserting %s", svc.kind)
		}
		return rec, created, nil
	}

	rec, err := svc.store.Upsert(ctx, key, data)
	if err != nil {
		return Record{}, false, errors.Wrapf(err, "upserting %s", svc.kind)
	}
	return rec, rec.IsNew(), nil
}

// Query lists the records matching filter. filter.UserID is the requested owner.
// The result is never nil.
func (svc *Service) Query(ctx context.Context, p Principal, filter Filter) ([]Record, error) {
	owner, err := p.Owner(filter.UserID)
	if err != nil {
		return []Record{}, err
	}
	if err := filter.validate(); err != nil {
		return []Record{}, err
	}
	filter.UserID = owner
	filter.Ordering = filter.OrderingOrDefault()

	recs, err := svc.store.Find(ctx, svc.kind, filter)
	if err != nil {
		return []Record{}, errors.Wrapf(err, "querying %s", svc.kind)
	}
	if recs == nil {
		recs = []Record{}
	}
	return recs, nil
}

// QueryAll is Query across every owner: an empty filter.UserID matches all users. Reserved to elevated principals.
func (svc *Service) QueryAll(ctx context.Context, p Principal, filter Filter) ([]Record, error) {
	if err := p.RequireElevated(); err != nil {
		return []Record{}, err
	}
	if err := filter.validate(); err != nil {
		return []Record{}, err
	}
	filter.Ordering = filter.OrderingOrDefault()

	recs, err := svc.store.Find(ctx, svc.kind, filter)
	if err != nil {
		return []Record{}, errors.Wrapf(err, "querying %s", svc.kind)
	}
	if recs == nil {
		recs = []Record{}
	}
	return recs, nil
}

// Get returns the record with id if p may see it.
func (svc *Service) Get(ctx context.Context, p Principal, id string) (Record, error) {
	if id == "" {
		return Record{}, ErrNotFound
	}
	rec, err := svc.store.FindOne(ctx, svc.kind, id, p.scope())
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return Record{}, ErrNotFound
		}
		return Record{}, errors.Wrapf(err, "finding %s", svc.kind)
	}
	return rec, nil
}

// Delete removes the record with id and returns that id.
// A record owned by someone else is reported as not found.
func (svc *Service) Delete(ctx context.Context, p Principal, id string) (string, error) {
	rec, err := svc.Get(ctx, p, id)
	if err != nil {
		return "", err
	}
	if err := svc.store.DeleteOne(ctx, svc.kind, rec.ID); err != nil {
		if errors.Cause(err) == ErrNotFound {
			return "", ErrNotFound
		}
		return "", errors.Wrapf(err, "deleting %s", svc.kind)
	}
	return rec.ID, nil
}
