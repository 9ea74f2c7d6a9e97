package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/algodrill/algodrill/internal/grading"
	"github.com/algodrill/algodrill/internal/question"
)

type Option func(*Session)

// WithTickInterval changes how often the timer ticks. The default is one second.
func WithTickInterval(d time.Duration) Option { return func(s *Session) { s.interval = d } }

// WithClock sets the time source used for StartedAt and Submission.
func WithClock(now func() time.Time) Option { return func(s *Session) { s.now = now } }

type dispatch struct {
	event Event
	reply chan State
}

// Session is a handle to one running quiz session. All state changes go through a
// single goroutine, so a Session is safe for concurrent use.
type Session struct {
	interval time.Duration
	now      func() time.Time

	requests  chan dispatch
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	startOnce sync.Once

	mu     sync.Mutex
	subs   []chan State
	closed bool

	final State // set before done is closed
}

// New creates a session for the given questions and starts its state goroutine.
// The timer does not run until Start is called.
func New(quizID string, questions []question.Question, timeLimit *int, opts ...Option) *Session {
	return Restore(State{}, quizID, questions, timeLimit, opts...)
}

// Restore resumes prev when it is a non-empty snapshot, or starts fresh otherwise.
// A resumed timer counts the time spent away; see Resume.
func Restore(prev State, quizID string, questions []question.Question, timeLimit *int, opts ...Option) *Session {
	s := &Session{
		interval: time.Second,
		now:      time.Now,
		requests: make(chan dispatch),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	st := Resume(prev, timeLimit, s.now())
	if st.ID == "" {
		st = NewState(uuid.NewString(), quizID, questions, timeLimit, s.now())
	}
	go s.run(st)
	return s
}

func (s *Session) run(st State) {
	defer func() {
		s.final = st
		s.mu.Lock()
		for _, ch := range s.subs {
			close(ch)
		}
		s.subs = nil
		s.closed = true
		s.mu.Unlock()
		close(s.done)
	}()
	for {
		select {
		case <-s.quit:
			return
		case req := <-s.requests:
			next := Reduce(st, req.event)
			if next.Version != st.Version {
				s.publish(next)
			}
			st = next
			req.reply <- st
		}
	}
}

// publish hands st to every subscriber, replacing a value the subscriber has not
// read yet. Only the run goroutine sends on subscriber channels.
func (s *Session) publish(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- st:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- st
		}
	}
}

// Dispatch applies e and returns the resulting state. After Close it returns the
// final state unchanged.
func (s *Session) Dispatch(e Event) State {
	req := dispatch{event: e, reply: make(chan State, 1)}
	select {
	case s.requests <- req:
		return <-req.reply
	case <-s.done:
		return s.final
	}
}

// Snapshot returns the current state.
func (s *Session) Snapshot() State {
	return s.Dispatch(nil)
}

func (s *Session) ID() string { return s.Snapshot().ID }

// Subscribe returns a channel that receives the latest state after every change.
// Slow readers only see the most recent state. The channel is closed by Close.
func (s *Session) Subscribe() <-chan State {
	ch := make(chan State, 1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		close(ch)
		return ch
	}
	s.subs = append(s.subs, ch)
	return ch
}

// Start runs the countdown. Ticks stop once the session leaves in_progress, when
// it has no time limit, or when ctx is done.
func (s *Session) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		if s.Snapshot().TimeRemaining == nil {
			return
		}
		go s.tick(ctx)
	})
}

func (s *Session) tick(ctx context.Context) {
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-t.C:
			if st := s.Dispatch(Tick{}); st.Status != StatusInProgress {
				return
			}
		}
	}
}

// Submission is the grading payload for the current state.
func (s *Session) Submission() grading.Submission {
	return s.Snapshot().Submission(s.now())
}

// Close stops the session. It is safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() { close(s.quit) })
	<-s.done
}
