package walker

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"carebook/internal/components/assert"
	"carebook/internal/components/chrono"
	"carebook/internal/components/telemetry"
	"carebook/internal/portal"
	"carebook/internal/record"
)

const (
	report_walker_walk         = "walker.walk"
	report_walker_page_ceiling = "walker.page-ceiling"
)

// DefaultMaxPages bounds a paginated walk when the server never stops reporting a next page.
const DefaultMaxPages = 10000

// Source is the part of the portal the walker reads listings from.
type Source interface {
	TimelinePage(ctx context.Context, serviceID string, page int) (portal.Page, error)
	Comments(ctx context.Context, memberID string, day chrono.Date) ([]map[string]any, error)
	ContactResponses(ctx context.Context, memberID string, day chrono.Date) ([]map[string]any, error)
	HandoutsPage(ctx context.Context, page int) (portal.HandoutPage, error)
	Handout(ctx context.Context, id string) (map[string]any, error)
}

// Relations lists the memberships of a service, see portal.Directory.
type Relations interface {
	Relations(ctx context.Context, serviceID string) ([]portal.Relation, error)
}

type Options struct {
	Window   record.Window
	MaxPages int
}

// Walker walks the listing of one category until the window has been passed.
//
// Listings are assumed to be newest first: records newer than the window are dropped,
// records inside it are yielded and the first record older than it ends the walk.
type Walker struct {
	source    Source
	relations Relations
	window    record.Window
	maxPages  int

	time chrono.TimeAPI
	tel  telemetry.API
}

func New(source Source, relations Relations, opts Options, timeAPI chrono.TimeAPI, tel telemetry.API) Walker {
	assert.NotNil(source)
	assert.NotNil(relations)
	assert.NotNil(timeAPI)
	assert.NotNil(tel)

	if opts.MaxPages <= 0 {
		opts.MaxPages = DefaultMaxPages
	}
	return Walker{
		source:    source,
		relations: relations,
		window:    opts.Window,
		maxPages:  opts.MaxPages,
		time:      timeAPI,
		tel:       telemetry.NewScopedAPI("walker", tel),
	}
}

// Walk returns the lazy sequence of records of `category` for `serviceID`. Every call
// starts over from the first page. A yielded error is always the last element.
// Handouts are not scoped to a service, serviceID is ignored for them.
func (w Walker) Walk(ctx context.Context, category record.Category, serviceID string) iter.Seq2[record.Record, error] {
	return func(yield func(record.Record, error) bool) {
		var err error
		switch category {
		case record.Timeline:
			err = w.walkTimeline(ctx, serviceID, yield)
		case record.Comment:
			err = w.walkDays(ctx, category, serviceID, w.source.Comments, yield)
		case record.ContactResponse:
			err = w.walkDays(ctx, category, serviceID, w.source.ContactResponses, yield)
		case record.Handout:
			err = w.walkHandouts(ctx, yield)
		default:
			err = fmt.Errorf("cannot walk category '%s'", category)
		}
		if err != nil && !errors.Is(err, errStopped) {
			w.tel.ReportBroken(report_walker_walk, err, category, serviceID)
			yield(record.Record{}, err)
		}
	}
}

// errStopped ends a walk because the consumer stopped iterating.
var errStopped = errors.New("walk stopped by consumer")

type step int

const (
	stepNext step = iota
	stepDone
)

// offer classifies `raw` and yields it when it is inside the window.
func (w Walker) offer(category record.Category, raw map[string]any, yield func(record.Record, error) bool) (step, error) {
	r, err := record.New(category, raw)
	if err != nil {
		return stepDone, err
	}
	class, err := record.Classify(r, w.window)
	if err != nil {
		return stepDone, err
	}
	switch class {
	case record.After:
		return stepNext, nil
	case record.Before:
		return stepDone, nil
	}
	if !yield(r, nil) {
		return stepDone, errStopped
	}
	return stepNext, nil
}

func (w Walker) walkTimeline(ctx context.Context, serviceID string, yield func(record.Record, error) bool) error {
	for page := 1; page <= w.maxPages; page++ {
		res, err := w.source.TimelinePage(ctx, serviceID, page)
		if err != nil {
			return fmt.Errorf("timeline page %d: %w", page, err)
		}
		for _, raw := range res.Records {
			next, err := w.offer(record.Timeline, raw, yield)
			if err != nil {
				return err
			}
			if next == stepDone {
				return nil
			}
		}
		if !res.NextPage {
			w.tel.ReportDebug("last page", record.Timeline, serviceID, page)
			return nil
		}
	}
	w.tel.ReportWarning(report_walker_page_ceiling, record.Timeline, serviceID, w.maxPages)
	return nil
}

type dayListing func(ctx context.Context, memberID string, day chrono.Date) ([]map[string]any, error)

// dayRange is the span of days to query for a membership, from the newer side to the
// older one unless the window says otherwise.
func (w Walker) dayRange(rel portal.Relation) (chrono.Date, chrono.Date, error) {
	start := w.window.Start
	if start.IsZero() {
		closed, err := rel.Close()
		if err != nil {
			return chrono.Date{}, chrono.Date{}, err
		}
		start = closed
		if start.IsZero() {
			start = chrono.Today(w.time)
		}
	}
	end := w.window.End
	if end.IsZero() {
		open, err := rel.Open()
		if err != nil {
			return chrono.Date{}, chrono.Date{}, err
		}
		end = open
	}
	return start, end, nil
}

func (w Walker) walkDays(ctx context.Context, category record.Category, serviceID string, list dayListing, yield func(record.Record, error) bool) error {
	relations, err := w.relations.Relations(ctx, serviceID)
	if err != nil {
		return err
	}
	for _, rel := range relations {
		start, end, err := w.dayRange(rel)
		if err != nil {
			return fmt.Errorf("membership %s: %w", rel.MemberID, err)
		}
		w.tel.ReportDebug("walking days", category, rel.MemberID, start.String(), end.String())

		for _, day := range chrono.DaysBetween(start, end) {
			records, err := list(ctx, string(rel.MemberID), day)
			if err != nil {
				return fmt.Errorf("%s on %s: %w", category, day, err)
			}
			for _, raw := range records {
				next, err := w.offer(category, raw, yield)
				if err != nil {
					return err
				}
				if next == stepDone {
					return nil
				}
			}
		}
	}
	return nil
}

func (w Walker) walkHandouts(ctx context.Context, yield func(record.Record, error) bool) error {
	totalPages := 1
	for page := 1; page <= totalPages; page++ {
		if page > w.maxPages {
			w.tel.ReportWarning(report_walker_page_ceiling, record.Handout, totalPages, w.maxPages)
			return nil
		}
		res, err := w.source.HandoutsPage(ctx, page)
		if err != nil {
			return fmt.Errorf("handouts page %d: %w", page, err)
		}
		totalPages = res.TotalPages

		for _, listing := range res.Records {
			entry, err := record.New(record.Handout, listing)
			if err != nil {
				return err
			}
			class, err := record.Classify(entry, w.window)
			if err != nil {
				return err
			}
			if class == record.After {
				continue
			}
			if class == record.Before {
				return nil
			}

			detail, err := w.source.Handout(ctx, entry.ID)
			if err != nil {
				return fmt.Errorf("handout %s: %w", entry.ID, err)
			}
			if detail == nil {
				detail = map[string]any{}
			}
			// the listing is what was classified, keep its fields when the detail lacks them
			for k, v := range listing {
				if _, ok := detail[k]; !ok {
					detail[k] = v
				}
			}
			r, err := record.New(record.Handout, detail)
			if err != nil {
				return err
			}
			if !yield(r, nil) {
				return errStopped
			}
		}
	}
	return nil
}
