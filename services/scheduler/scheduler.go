// Package scheduler runs the periodic finance jobs.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	"github.com/Jackson-sch/sistema-escolar-pro-sub001/core"
	"github.com/Jackson-sch/sistema-escolar-pro-sub001/core/finance"
	"github.com/Jackson-sch/sistema-escolar-pro-sub001/core/school"
)

type (
	InstitutionLister interface {
		QueryInstitutions(ctx context.Context) ([]school.Institution, error)
	}

	MoraApplier interface {
		ApplyMora(ctx context.Context, institutionID string, filter finance.BulkFilter) (finance.MoraResult, error)
	}

	Scheduler struct {
		cron   *cron.Cron
		logger core.Logger
	}
)

// cronLogger adapts core.Logger to cron.Logger.
type cronLogger struct {
	logger core.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(fmt.Sprintf("cron: %s %v", msg, keysAndValues))
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(fmt.Sprintf("cron: %s %v: %v", msg, keysAndValues, err), err)
}

func New(logger core.Logger) *Scheduler {
	l := cronLogger{logger}
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(l),
			cron.WithChain(cron.Recover(l), cron.SkipIfStillRunning(l)),
		),
		logger: logger,
	}
}

// AddMoraJob schedules a mora accrual over every institution. spec is a standard 5 fields cron spec (or a descriptor like "@daily").
func (s *Scheduler) AddMoraJob(spec string, insts InstitutionLister, mora MoraApplier, timeout time.Duration) (cron.EntryID, error) {
	id, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if _, err := RunMora(ctx, insts, mora, s.logger); err != nil {
			s.logger.Error(fmt.Sprintf("mora job: %v", err), err)
		}
	})
	if err != nil {
		return 0, errors.Wrapf(err, "scheduling mora job %q", spec)
	}
	s.logger.Info(fmt.Sprintf("mora job scheduled: %q", spec))
	return id, nil
}

// Entries returns the number of scheduled jobs.
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops the scheduler and waits for the running jobs, until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	select {
	case <-s.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunMora applies the mora of every institution, as of today.
// An institution failing does not stop the others; the first error is returned.
func RunMora(ctx context.Context, insts InstitutionLister, mora MoraApplier, logger core.Logger) (map[string]finance.MoraResult, error) {
	institutions, err := insts.QueryInstitutions(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "querying institutions")
	}

	var firstErr error
	results := make(map[string]finance.MoraResult, len(institutions))
	for _, inst := range institutions {
		if ctx.Err() != nil {
			return results, ctx.Err()
		}
		res, err := mora.ApplyMora(ctx, inst.ID, finance.BulkFilter{})
		if err != nil {
			logger.Error(fmt.Sprintf("applying mora of %s: %v", inst.Name, err), err)
			if firstErr == nil {
				firstErr = errors.Wrapf(err, "applying mora of %s", inst.ID)
			}
			continue
		}
		results[inst.ID] = res
		logger.Info(fmt.Sprintf("mora applied to %s: %d overdue, %d updated", inst.Name, res.Matched, res.Updated))
	}
	return results, firstErr
}
