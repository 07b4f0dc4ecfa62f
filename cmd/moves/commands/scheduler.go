package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wonny/moves/backend/internal/scheduler"
	"github.com/wonny/moves/backend/internal/scheduler/jobs"
)

// schedulerCmd represents the scheduler command
var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "Run or inspect periodic jobs",
	Long: `Run the periodic jobs of the engine.

Jobs (schedules come from the scheduler section of the core config):
- signal_scan:        evaluate every thesis
- signal_expiry:      expire pending signals not refreshed in time
- principle_learning: reweight principles from recorded outcomes
- what_if_refresh:    re-price rejected, ignored and expired signals

Subcommands:
  start   - run the scheduler until Ctrl+C
  list    - registered jobs and their schedules
  run     - run one job now

Example:
  go run ./cmd/moves scheduler start
  go run ./cmd/moves scheduler run signal_expiry`,
}

var (
	schedulerStartCmd = &cobra.Command{
		Use:   "start",
		Short: "Start the scheduler",
		RunE:  runScheduler,
	}

	schedulerListCmd = &cobra.Command{
		Use:   "list",
		Short: "List registered jobs",
		RunE:  listJobs,
	}

	schedulerRunCmd = &cobra.Command{
		Use:   "run [job_name]",
		Short: "Run a job now",
		Args:  cobra.ExactArgs(1),
		RunE:  runJobNow,
	}
)

func init() {
	rootCmd.AddCommand(schedulerCmd)
	schedulerCmd.AddCommand(schedulerStartCmd, schedulerListCmd, schedulerRunCmd)
}

// initScheduler registers the engine jobs on a new scheduler.
func initScheduler(a *app) (*scheduler.Scheduler, error) {
	opts := scheduler.DefaultOptions()
	opts.Locker = a.jobLocker()
	sched := scheduler.New(opts, a.metrics, a.log)

	specs := a.core.Scheduler
	for _, job := range []scheduler.Job{
		jobs.NewSignalScanJob(a.generator, specs.SignalScan, a.log),
		jobs.NewSignalExpiryJob(a.lifecycle, specs.SignalExpiry, a.log),
		jobs.NewPrincipleLearningJob(a.ledger, specs.PrincipleLearning, a.log),
		jobs.NewWhatIfRefreshJob(a.whatIf, specs.WhatIfRefresh, a.log),
	} {
		if err := sched.AddJob(job); err != nil {
			return nil, err
		}
	}
	return sched, nil
}

func runScheduler(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	sched, err := initScheduler(a)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	sched.Start()

	PrintSuccess("Scheduler started")
	for _, name := range sched.Jobs() {
		fmt.Printf("  - %s\n", name)
	}
	fmt.Println("\nPress Ctrl+C to stop")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	sched.Stop()
	return nil
}

func listJobs(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	sched, err := initScheduler(a)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}

	stats := sched.Stats()
	widths := []int{20, 18}
	PrintTableHeader([]string{"JOB", "SCHEDULE"}, widths)
	for _, name := range sched.Jobs() {
		printRow([]string{name, stats[name].Schedule}, widths)
	}
	return nil
}

func runJobNow(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	sched, err := initScheduler(a)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}

	res, err := sched.RunNow(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	switch res.Status {
	case scheduler.StatusSuccess:
		PrintSuccess(fmt.Sprintf("%s finished in %s", res.JobName, res.Duration))
	case scheduler.StatusSkipped:
		PrintInfo(fmt.Sprintf("%s skipped: running in another process", res.JobName))
	default:
		PrintError(fmt.Sprintf("%s failed after %d attempt(s): %s", res.JobName, res.Attempts, res.Error))
		return fmt.Errorf("job %s failed", res.JobName)
	}
	return nil
}
