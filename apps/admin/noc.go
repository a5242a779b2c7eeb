package main

import "context"

// backfill creates the missing compliance records for every enrolled student.
func (cli *commandLine) backfill() error {
	res, err := cli.nocEng.Backfill(context.Background())
	if err != nil {
		return err
	}
	logger.Printf("backfill: %d records created, %d students processed, %d skipped",
		res.RecordsCreated, res.StudentsProcessed, res.StudentsSkipped)
	return nil
}

// recompute re-evaluates every compliance record of a (subject, division) scope.
func (cli *commandLine) recompute(subjectID, divisionID int) error {
	changed, err := cli.nocEng.RecomputeScope(context.Background(), subjectID, divisionID)
	if err != nil {
		return err
	}
	logger.Printf("recompute: %d records changed", changed)
	return nil
}
