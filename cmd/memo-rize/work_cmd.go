package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

// workCmd drains pending extraction tickets through the Extraction Engine
// (spec §4.6), serialized by a filesystem lock under the state directory
// (spec §5: "the extraction worker is serialized by a filesystem lock").
// This is the background counterpart to the four named CLI surfaces in
// spec §6: nothing else in this CLI drives queue.Pending() through
// extraction.Engine.Process, so it is invoked either on a timer (cron,
// systemd timer) or continuously via --watch.
func workCmd() *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "work",
		Short: "Drain pending extraction tickets through the Extraction Engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := loadDeps()
			if err != nil {
				return err
			}
			defer d.close()

			if watch {
				return runWorkWatch(d)
			}
			return runWorkOnce(d)
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", false, "Keep running, draining the queue as new tickets arrive")
	return cmd
}

// workerLockPath returns the single-writer lock file's path, rooted next to
// the queue directory itself (spec §5's "state directory").
func workerLockPath(queueDir string) string {
	return filepath.Join(filepath.Dir(queueDir), "memo-rize.worker.lock")
}

// acquireWorkerLock takes an exclusive, PID-stamped lock file so at most one
// extraction worker drains the queue at a time. A stale lock (owning PID no
// longer alive) is reclaimed rather than left to block forever.
func acquireWorkerLock(path string) (release func(), err error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if !os.IsExist(err) {
			return nil, fmt.Errorf("create lock file: %w", err)
		}
		if !lockHolderAlive(path) {
			os.Remove(path)
			return acquireWorkerLock(path)
		}
		return nil, fmt.Errorf("another extraction worker holds %s", path)
	}
	fmt.Fprintf(f, "%d", os.Getpid())
	f.Close()
	return func() { os.Remove(path) }, nil
}

func lockHolderAlive(path string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	pid, err := strconv.Atoi(string(data))
	if err != nil {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

// runWorkOnce drains every currently-pending ticket once, then exits.
func runWorkOnce(d *deps) error {
	release, err := acquireWorkerLock(workerLockPath(d.cfg.Paths.QueueDir))
	if err != nil {
		d.log.Printf("WORK skipped: %v", err)
		return nil
	}
	defer release()

	return drainQueue(d)
}

// runWorkWatch holds the lock for the process lifetime and drains the queue
// once at startup, then again on every fsnotify event under QUEUE_DIR,
// debounced the way the teacher's vault watcher debounces file events.
func runWorkWatch(d *deps) error {
	release, err := acquireWorkerLock(workerLockPath(d.cfg.Paths.QueueDir))
	if err != nil {
		return fmt.Errorf("acquire worker lock: %w", err)
	}
	defer release()

	if err := os.MkdirAll(d.cfg.Paths.QueueDir, 0o755); err != nil {
		return fmt.Errorf("create queue dir: %w", err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(d.cfg.Paths.QueueDir); err != nil {
		return fmt.Errorf("watch queue dir: %w", err)
	}

	if err := drainQueue(d); err != nil {
		d.log.Printf("WORK drain error: %v", err)
	}

	const debounce = 1 * time.Second
	var timer *time.Timer
	drain := func() {
		if err := drainQueue(d); err != nil {
			d.log.Printf("WORK drain error: %v", err)
		}
	}

	for {
		select {
		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, drain)
		case werr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			d.log.Printf("WORK watch error: %v", werr)
		}
	}
}

func drainQueue(d *deps) error {
	tickets, err := d.queue.Pending()
	if err != nil {
		return fmt.Errorf("list pending tickets: %w", err)
	}
	if len(tickets) == 0 {
		return nil
	}

	engine := d.extractionEngine()
	defer engine.Close()

	for _, t := range tickets {
		if err := engine.Process(t); err != nil {
			d.log.Printf("WORK error processing ticket for %s: %v", t.SessionID, err)
		}
	}
	return nil
}
