// Command tradekernel is the platform entry point: the freestanding
// equivalent of a bootloader handoff, reworked into a Go process that
// brings up the memory subsystem and scheduler, creates a small set of
// demo trading tasks, and drives the scheduling loop until they exit.
//
// Grounded on cmd/orizon-kernel/main.go's boot-banner-then-initialize
// shape and cmd/numa-integration-test/main.go's allocate/schedule/
// stats/cleanup demo harness, retargeted from the teacher's freestanding
// kernel onto this kernel's numa/scheduler/task packages.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/ashlar-systems/tradekernel/internal/kernelcfg"
	"github.com/ashlar-systems/tradekernel/internal/klog"
	"github.com/ashlar-systems/tradekernel/internal/numa"
	"github.com/ashlar-systems/tradekernel/internal/scheduler"
	"github.com/ashlar-systems/tradekernel/internal/task"
)

func main() {
	verbose := flag.Bool("verbose", false, "enable development-mode structured logging")
	debug := flag.Bool("debug", false, "lower the log level to debug")
	cores := flag.Int("cores", 2, "number of simulated CPU cores")
	lockPhysical := flag.Bool("lock-physical", false, "mlock each NUMA node's backing arena")
	flag.Parse()

	log, err := klog.New(*verbose, *debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "tradekernel: logger setup failed: %v\n", err)
		os.Exit(1)
	}

	cfg := kernelcfg.Default()
	cfg.NumCores = *cores
	cfg.LockPhysical = *lockPhysical
	cfg.Verbose = *verbose
	cfg.DebugEnabled = *debug

	log.Info("tradekernel booting", "cores", cfg.NumCores, "taskTableSize", cfg.TaskTableSize)

	nm, err := numa.Initialize(numa.Config{Alignment: cfg.Alignment, LockPhysical: cfg.LockPhysical})
	if err != nil {
		log.Error(err, "memory subsystem init failed")
		os.Exit(1)
	}
	defer nm.Shutdown()
	log.Info("memory subsystem ready", "nodes", len(nm.Nodes()))

	sched, err := scheduler.New(scheduler.Config{
		NumCores:      cfg.NumCores,
		DefaultNode:   cfg.DefaultNode,
		TaskTableSize: cfg.TaskTableSize,
	}, nm)
	if err != nil {
		log.Error(err, "scheduler init failed")
		os.Exit(1)
	}
	log.Info("scheduler ready", "cores", len(sched.Cores()))

	var filled, evaluated int

	marketDataID, err := createSelfAwareTask(sched, task.Critical, marketDataFeed())
	if err != nil {
		log.Error(err, "failed to create market-data task")
		os.Exit(1)
	}

	orderGenID, err := createSelfAwareTask(sched, task.High, orderGenerator(&filled))
	if err != nil {
		log.Error(err, "failed to create order-generation task")
		os.Exit(1)
	}

	riskID, err := createSelfAwareTask(sched, task.Normal, riskEvaluator(&evaluated))
	if err != nil {
		log.Error(err, "failed to create risk-evaluation task")
		os.Exit(1)
	}

	log.Info("demo tasks created", "marketData", marketDataID, "orderGen", orderGenID, "risk", riskID)

	start := time.Now()
	for sched.AnyRunning(marketDataID, orderGenID, riskID) {
		sched.ScheduleNext()
	}
	elapsed := time.Since(start)

	log.Info("demo tasks completed",
		"ordersFilled", filled,
		"risksEvaluated", evaluated,
		"wallClock", elapsed,
	)

	for _, c := range sched.Cores() {
		st := c.Stats()
		log.Info("core stats",
			"core", c.ID,
			"switches", st.SwitchCount,
			"maxSwitchCycles", st.MaxSwitchCycles,
			"loadScore", st.LoadScore,
		)
	}

	log.Info("tradekernel halting")
}

// createSelfAwareTask creates a task whose body needs to call Yield on
// itself (via arg.(*task.Task)), following the task.New-then-SetEntry
// convention used throughout this kernel: the task object does not exist
// until after creation, so its own body's self-reference must be bound
// afterward rather than passed as CreateTask's user argument.
func createSelfAwareTask(sched *scheduler.Scheduler, priority task.Priority, entry task.EntryFunc) (uint64, error) {
	id, err := sched.CreateTask(priority, nil, nil, 0, 0x1)
	if err != nil {
		return 0, err
	}
	tk, _ := sched.Task(id)
	tk.SetEntry(entry, tk)
	return id, nil
}

// marketDataFeed simulates a price-tick publisher: a handful of ticks,
// yielding between each so the scheduler interleaves it with the other
// demo tasks, then it exits.
func marketDataFeed() task.EntryFunc {
	return func(arg any) {
		self := arg.(*task.Task)
		for tick := 0; tick < 20; tick++ {
			self.Yield()
		}
	}
}

// orderGenerator simulates placing an order on every other tick.
func orderGenerator(filled *int) task.EntryFunc {
	return func(arg any) {
		self := arg.(*task.Task)
		for i := 0; i < 20; i++ {
			if i%2 == 0 {
				*filled++
			}
			self.Yield()
		}
	}
}

// riskEvaluator simulates a risk check running at lower priority than
// order generation, so it only makes progress once the urgent tasks have
// yielded.
func riskEvaluator(evaluated *int) task.EntryFunc {
	return func(arg any) {
		self := arg.(*task.Task)
		for i := 0; i < 20; i++ {
			*evaluated++
			self.Yield()
		}
	}
}
