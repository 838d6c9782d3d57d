package main

import (
	"context"
	"fmt"

	"github.com/Jackson-sch/sistema-escolar-pro-sub001/core"
	"github.com/Jackson-sch/sistema-escolar-pro-sub001/core/finance"
	"github.com/Jackson-sch/sistema-escolar-pro-sub001/services/scheduler"
)

// applyMora runs the mora accrual once, like the scheduled job does.
func (cli *commandLine) applyMora(institutionID string, asOf core.Date) error {
	ctx := context.Background()

	if institutionID == "" && asOf.Equal(core.Today()) {
		results, err := scheduler.RunMora(ctx, cli.schoolSvc, cli.finSvc, cli.logger)
		for id, res := range results {
			cli.printMora(id, res)
		}
		return err
	}

	ids := []string{institutionID}
	if institutionID == "" {
		insts, err := cli.schoolSvc.QueryInstitutions(ctx)
		if err != nil {
			return err
		}
		ids = ids[:0]
		for _, inst := range insts {
			ids = append(ids, inst.ID)
		}
	}
	for _, id := range ids {
		res, err := cli.finSvc.ApplyMoraAsOf(ctx, id, finance.BulkFilter{}, asOf)
		if err != nil {
			return err
		}
		cli.printMora(id, res)
	}
	return nil
}

func (cli *commandLine) printMora(institutionID string, res finance.MoraResult) {
	fmt.Fprintf(cli.out, "%s: %d overdue, %d updated (as of %s)\n", institutionID, res.Matched, res.Updated, res.AsOf)
}
