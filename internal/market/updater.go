package market

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"quantsignal/internal/logger"
)

// HistoryArchive is a persisted history that can report its coverage.
type HistoryArchive interface {
	HistoryWriter
	Manifest(ctx context.Context, instrument string) (HistoryManifest, error)
}

type UpdateStatus string

const (
	UpdateSaved    UpdateStatus = "saved"
	UpdateUpToDate UpdateStatus = "up_to_date"
	UpdateAbsent   UpdateStatus = "absent"
	UpdateFailed   UpdateStatus = "failed"
)

// UpdateResult 是单个品种的同步结果；Err 仅在 UpdateFailed 时非空。
type UpdateResult struct {
	Instrument string       `json:"instrument"`
	Status     UpdateStatus `json:"status"`
	From       time.Time    `json:"from"`
	Saved      int          `json:"saved"`
	LastDay    time.Time    `json:"last_day"`
	Err        error        `json:"-"`
}

// Updater pulls daily history from a provider into the local archive. Only
// the gap after the last stored day is fetched; the last day is re-fetched so
// a bar written before its close gets overwritten.
type Updater struct {
	Provider HistoryProvider
	Archive  HistoryArchive
	Workers  int
	Now      func() time.Time
}

func NewUpdater(provider HistoryProvider, archive HistoryArchive) *Updater {
	return &Updater{Provider: provider, Archive: archive, Workers: 2, Now: time.Now}
}

// Update syncs each instrument over the trailing days. A failing instrument is
// recorded in its result and does not stop the rest.
func (u *Updater) Update(ctx context.Context, instruments []string, days int) ([]UpdateResult, error) {
	if u.Provider == nil || u.Archive == nil {
		return nil, fmt.Errorf("updater requires a provider and an archive")
	}
	if days <= 0 {
		return nil, fmt.Errorf("days must be positive, got %d", days)
	}
	now := time.Now
	if u.Now != nil {
		now = u.Now
	}
	end := DayOf(now())
	floor := end.AddDate(0, 0, -days)

	results := make([]UpdateResult, len(instruments))
	g, gctx := errgroup.WithContext(ctx)
	workers := u.Workers
	if workers <= 0 {
		workers = 1
	}
	g.SetLimit(workers)
	for i, inst := range instruments {
		i, inst := i, normalizeInstrument(inst)
		g.Go(func() error {
			results[i] = u.updateOne(gctx, inst, floor, end)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return results, err
	}
	return results, nil
}

func (u *Updater) updateOne(ctx context.Context, inst string, floor, end time.Time) UpdateResult {
	res := UpdateResult{Instrument: inst, From: floor}
	fail := func(err error) UpdateResult {
		res.Status, res.Err = UpdateFailed, err
		logger.Warnf("[data] %s 同步失败: %v", inst, err)
		return res
	}
	manifest, err := u.Archive.Manifest(ctx, inst)
	if err != nil {
		return fail(fmt.Errorf("read manifest: %w", err))
	}
	res.LastDay = manifest.LastDay
	if manifest.Rows > 0 && manifest.LastDay.After(floor) {
		res.From = manifest.LastDay
	}
	bars, err := u.Provider.FetchHistory(ctx, inst, res.From, end)
	if err != nil {
		return fail(err)
	}
	if len(bars) == 0 {
		if manifest.Rows > 0 {
			res.Status = UpdateUpToDate
		} else {
			res.Status = UpdateAbsent
			logger.Warnf("[data] %s 无历史数据", inst)
		}
		return res
	}
	if err := bars.Validate(); err != nil {
		return fail(fmt.Errorf("provider returned invalid bars: %w", err))
	}
	saved, err := u.Archive.SaveHistory(ctx, inst, bars)
	if err != nil {
		return fail(fmt.Errorf("save history: %w", err))
	}
	res.Status, res.Saved = UpdateSaved, saved
	if last, ok := bars.Last(); ok && last.Day().After(res.LastDay) {
		res.LastDay = last.Day()
	}
	logger.Infof("[data] %s 写入 %d 根日线 (%s ~ %s)", inst, saved, res.From.Format(time.DateOnly), res.LastDay.Format(time.DateOnly))
	return res
}
