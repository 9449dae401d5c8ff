package record

import (
	"context"
	"fmt"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/chuo/core"
)

// SweepReport sums up a deduplication run.
type SweepReport struct {
	Kind            Kind     `json:"kind"`
	DryRun          bool     `json:"dry_run"`
	Scanned         int      `json:"scanned"`
	Groups          int      `json:"groups"`
	DuplicateGroups int      `json:"duplicate_groups"`
	Removed         int      `json:"removed"`
	Failed          int      `json:"failed"` // groups whose duplicates could not be deleted
	Kept            []string `json:"kept"`   // id of the record kept in each duplicate group
}

// Sweeper removes duplicated records of a kind, keeping the newest record of each natural key.
// It must not run concurrently with another sweep or a backfill of the same kind.
type Sweeper struct {
	store  Store
	kind   Kind
	logger core.Logger
}

func NewSweeper(store Store, kind Kind, logger core.Logger) *Sweeper {
	vala.BeginValidation().Validate(
		vala.IsNotNil(store, "store"),
		vala.IsNotNil(logger, "logger"),
		vala.StringNotEmpty(string(kind), "kind"),
	).CheckAndPanic()
	return &Sweeper{store: store, kind: kind, logger: logger}
}

// Sweep loads every record ordered by creation, groups them by natural key and deletes all but
// the most recently created record of each group. A failed group is logged and skipped.
func (sw *Sweeper) Sweep(ctx context.Context, dryRun bool) (SweepReport, error) {
	report := SweepReport{Kind: sw.kind, DryRun: dryRun, Kept: []string{}}

	recs, err := sw.store.Find(ctx, sw.kind, Filter{Ordering: []core.DBOrdering{{Field: FieldCreatedAt, Ascending: true}}})
	if err != nil {
		return report, errors.Wrapf(err, "loading %s", sw.kind)
	}
	report.Scanned = len(recs)

	groups := make(map[Key][]Record)
	order := make([]Key, 0)
	for _, rec := range recs {
		k := rec.Key.Normalize()
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], rec)
	}
	report.Groups = len(groups)

	for _, k := range order {
		group := groups[k]
		if len(group) < 2 {
			continue
		}
		report.DuplicateGroups++

		// newest first
		Sort(group, []core.DBOrdering{{Field: FieldCreatedAt}})
		ids := make([]string, 0, len(group)-1)
		for _, rec := range group[1:] {
			ids = append(ids, rec.ID)
		}

		if dryRun {
			report.Kept = append(report.Kept, group[0].ID)
			report.Removed += len(ids)
			continue
		}
		n, err := sw.store.DeleteMany(ctx, sw.kind, ids)
		if err != nil {
			report.Failed++
			sw.logger.Error(fmt.Sprintf("sweep %s: deleting %d duplicates of %s: %v", sw.kind, len(ids), k, err), err)
			continue
		}
		report.Removed += n
		report.Kept = append(report.Kept, group[0].ID)
		sw.logger.Info(fmt.Sprintf("sweep %s: kept %s, removed %d duplicates of %s", sw.kind, group[0].ID, n, k))
	}
	return report, nil
}
