package outputs

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"

	"mediaconv/internal/logging"
	"mediaconv/internal/queue"
)

// ErrSessionClosed is returned for actions submitted after Close.
var ErrSessionClosed = errors.New("output session closed")

// Snapshot is the observable state of a Session.
type Snapshot struct {
	Version    uint64
	Folder     string
	Files      []OutputFile
	Processing bool
}

// Session keeps an output plan in sync with a destination folder and the
// job's desired outputs. Folder listing and plan generation run FIFO on one
// goroutine; the plan and its name sets are only touched there.
type Session struct {
	defaultFolder string
	logger        *slog.Logger

	actions chan func()
	done    chan struct{}
	senders sync.WaitGroup

	mu          sync.Mutex
	closed      bool
	pending     int
	processing  bool
	version     uint64
	requested   string
	hasFolder   bool
	specs       []queue.OutputSpec
	hasSpecs    bool
	folder      string
	files       []OutputFile
	subscribers []chan Snapshot

	// executor-owned
	plan *Plan
}

// NewSession starts a session whose folder falls back to defaultFolder.
func NewSession(defaultFolder string, logger *slog.Logger) *Session {
	s := &Session{
		defaultFolder: defaultFolder,
		logger:        logging.NewComponentLogger(logger, "outputs"),
		actions:       make(chan func(), 64),
		done:          make(chan struct{}),
		plan:          NewPlan(nil),
	}
	go s.run()
	return s
}

func (s *Session) run() {
	defer close(s.done)
	for action := range s.actions {
		action()
	}
}

// Close waits for queued actions to finish and stops the executor.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		<-s.done
		return
	}
	s.closed = true
	s.mu.Unlock()
	s.senders.Wait()
	close(s.actions)
	<-s.done

	s.mu.Lock()
	for _, ch := range s.subscribers {
		close(ch)
	}
	s.subscribers = nil
	s.mu.Unlock()
}

// Processing reports whether any folder or command update is outstanding.
func (s *Session) Processing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processing
}

// Snapshot returns the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	return Snapshot{
		Version:    s.version,
		Folder:     s.folder,
		Files:      append([]OutputFile(nil), s.files...),
		Processing: s.processing,
	}
}

// Subscribe returns a channel carrying the latest snapshot after every
// change. Intermediate snapshots may be coalesced; versions never go back.
func (s *Session) Subscribe() <-chan Snapshot {
	ch := make(chan Snapshot, 1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		close(ch)
		return ch
	}
	s.subscribers = append(s.subscribers, ch)
	ch <- s.snapshotLocked()
	return ch
}

func (s *Session) publishLocked() {
	s.version++
	snap := s.snapshotLocked()
	for _, ch := range s.subscribers {
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
}

// SetOutputFolder switches the destination folder. A path that does not
// exist falls back to the default folder.
func (s *Session) SetOutputFolder(path string) error {
	s.mu.Lock()
	if s.hasFolder && s.requested == path {
		s.mu.Unlock()
		return nil
	}
	s.requested = path
	s.hasFolder = true
	s.mu.Unlock()

	return s.executeAsync(func() {
		folder := ResolveFolder(path, s.defaultFolder)
		existing, err := ListFolder(folder)
		if err != nil {
			logging.WarnWithContext(s.logger, "output folder listing failed", "output_folder_list_failed",
				logging.String("folder", folder),
				logging.Error(err),
				logging.String(logging.FieldImpact, "conflict detection uses an empty folder"),
			)
			existing = NameSet{}
		}

		s.mu.Lock()
		generated := s.hasSpecs
		specs := s.specs
		s.mu.Unlock()

		if generated && len(s.plan.files) == 0 {
			s.plan.existing = existing
			s.plan.Generate(specs)
		} else if err := s.plan.SetExisting(existing); err != nil {
			s.logger.Error("output plan invariant broken", logging.Error(err))
		}

		s.mu.Lock()
		s.folder = folder
		s.files = s.plan.Files()
		s.mu.Unlock()
	})
}

// SetCommand regenerates the plan from the desired outputs.
func (s *Session) SetCommand(specs []queue.OutputSpec) error {
	s.mu.Lock()
	if s.hasSpecs && slices.Equal(s.specs, specs) {
		s.mu.Unlock()
		return nil
	}
	s.specs = append([]queue.OutputSpec(nil), specs...)
	s.hasSpecs = true
	s.mu.Unlock()

	return s.executeAsync(func() {
		s.mu.Lock()
		specs := s.specs
		s.mu.Unlock()

		s.plan.Generate(specs)

		s.mu.Lock()
		s.files = s.plan.Files()
		s.mu.Unlock()
	})
}

// Rename renames the output at index once queued updates have run.
func (s *Session) Rename(ctx context.Context, index int, newName string) error {
	return s.call(ctx, func() error { return s.plan.Rename(index, newName) })
}

// SetOverrideAllowed flips override consent for the output at index.
func (s *Session) SetOverrideAllowed(ctx context.Context, index int, allow bool) error {
	return s.call(ctx, func() error { return s.plan.SetOverrideAllowed(index, allow) })
}

// Validate checks the plan once queued updates have run.
func (s *Session) Validate(ctx context.Context) error {
	return s.call(ctx, s.plan.Validate)
}

// Flush blocks until every action queued before it has completed.
func (s *Session) Flush(ctx context.Context) error {
	return s.call(ctx, func() error { return nil })
}

// call runs fn on the executor without touching the pending counter and
// publishes the resulting list.
func (s *Session) call(ctx context.Context, fn func() error) error {
	result := make(chan error, 1)
	err := s.submit(func() {
		err := fn()
		s.mu.Lock()
		s.files = s.plan.Files()
		s.publishLocked()
		s.mu.Unlock()
		result <- err
	})
	if err != nil {
		return err
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// executeAsync queues action and raises the processing flag until the last
// outstanding action completes.
func (s *Session) executeAsync(action func()) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.pending++
	if !s.processing {
		s.processing = true
		s.publishLocked()
	}
	s.mu.Unlock()

	err := s.submit(func() {
		action()
		s.mu.Lock()
		s.pending--
		s.processing = s.pending != 0
		s.publishLocked()
		s.mu.Unlock()
	})
	if err != nil {
		s.mu.Lock()
		s.pending--
		s.processing = s.pending != 0
		s.publishLocked()
		s.mu.Unlock()
	}
	return err
}

func (s *Session) submit(action func()) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.senders.Add(1)
	s.mu.Unlock()
	defer s.senders.Done()
	s.actions <- action
	return nil
}
