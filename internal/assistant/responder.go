package assistant

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/deal-conversations/internal/clock"
	"github.com/capitalize-ai/deal-conversations/internal/deal"
	"github.com/capitalize-ai/deal-conversations/internal/model"
	"github.com/capitalize-ai/deal-conversations/pkg/logger"
	"github.com/capitalize-ai/deal-conversations/pkg/metrics"
)

// Reply outcomes recorded in metrics.
const (
	OutcomeReplied   = "replied"
	OutcomeFallback  = "fallback"
	OutcomeDiscarded = "discarded"
)

// Target is the conversation a reply is appended to.
type Target interface {
	ID() string
	Snapshot() model.Conversation
	Append(d deal.Draft) (model.Message, error)
	Done() <-chan struct{}
}

// Synthesizer builds a reply for a trigger message.
type Synthesizer interface {
	Synthesize(ctx context.Context, conv model.Conversation, trigger model.Message) (Reply, error)
}

// ResponderConfig configures a Responder.
type ResponderConfig struct {
	// Delay is how long a reply waits before it is synthesized and appended.
	Delay time.Duration
	// Timeout bounds a single synthesis. Zero means no limit.
	Timeout time.Duration
	Clock   clock.Clock
	Logger  *logger.Logger
}

type job struct {
	target  Target
	trigger model.Message
	// fixed replies skip synthesis.
	fixed *Reply
}

type queue struct {
	jobs []job
}

// Responder appends assistant replies asynchronously. Replies for one
// conversation are produced one at a time in the order they were queued;
// different conversations proceed independently.
type Responder struct {
	synth   Synthesizer
	clock   clock.Clock
	delay   time.Duration
	timeout time.Duration
	logger  *logger.Logger

	mu     sync.Mutex
	idle   *sync.Cond
	queues map[string]*queue
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewResponder creates a responder backed by synth.
func NewResponder(synth Synthesizer, cfg ResponderConfig) *Responder {
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Global()
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := &Responder{
		synth:   synth,
		clock:   cfg.Clock,
		delay:   cfg.Delay,
		timeout: cfg.Timeout,
		logger:  cfg.Logger,
		queues:  make(map[string]*queue),
		ctx:     ctx,
		cancel:  cancel,
	}
	r.idle = sync.NewCond(&r.mu)
	return r
}

// HandleMessage queues a reply when msg was written by a person and asks for
// the assistant. It reports whether a reply was queued.
func (r *Responder) HandleMessage(target Target, msg model.Message) bool {
	if msg.SenderID == model.AssistantID || msg.SenderRole == model.RoleAssistant || msg.IsSystemMessage {
		return false
	}
	if !ShouldRespond(msg.Content) {
		return false
	}
	return r.enqueue(job{target: target, trigger: msg})
}

// EnqueueConfirmation queues the assistant's acknowledgement of a lender
// selection behind any replies already pending for the conversation.
func (r *Responder) EnqueueConfirmation(target Target, rec model.LenderRecommendation) bool {
	reply := ConfirmationReply(rec)
	return r.enqueue(job{target: target, fixed: &reply})
}

// ConfirmationReply is the assistant's acknowledgement of a chosen lender.
func ConfirmationReply(rec model.LenderRecommendation) Reply {
	return Reply{Content: fmt.Sprintf(
		"Great choice. I'll prepare the submission package for %s. "+
			"At %.2f%% with %s, you can expect a decision in about %d days.",
		rec.LenderName, rec.EstimatedRate, rec.EstimatedTerms, rec.TimeToClose,
	)}
}

// Pending returns the number of replies queued or in flight for a
// conversation.
func (r *Responder) Pending(conversationID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if q, ok := r.queues[conversationID]; ok {
		return len(q.jobs)
	}
	return 0
}

// Close discards queued replies and waits for in-flight work to stop. The
// wait group only tracks drain goroutines; Add happens under mu and never
// after closed is set.
func (r *Responder) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	r.cancel()
	r.wg.Wait()
}

// Wait blocks until no replies are queued or in flight. It is safe to call
// while messages are still arriving, but then returns at the first moment
// every queue is empty.
func (r *Responder) Wait() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for len(r.queues) > 0 {
		r.idle.Wait()
	}
}

func (r *Responder) enqueue(j job) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return false
	}
	id := j.target.ID()
	q, ok := r.queues[id]
	if !ok {
		q = &queue{}
		r.queues[id] = q
		r.wg.Add(1)
		go r.drain(id, q)
	}
	q.jobs = append(q.jobs, j)
	metrics.AssistantPending.Inc()
	return true
}

// drain processes one conversation's queue until it is empty. The job being
// processed stays at the head of the queue so Pending counts it.
func (r *Responder) drain(id string, q *queue) {
	defer r.wg.Done()

	for {
		r.mu.Lock()
		if len(q.jobs) == 0 {
			delete(r.queues, id)
			if len(r.queues) == 0 {
				r.idle.Broadcast()
			}
			r.mu.Unlock()
			return
		}
		j := q.jobs[0]
		r.mu.Unlock()

		outcome := r.process(j)
		metrics.AssistantRepliesTotal.WithLabelValues(outcome).Inc()

		r.mu.Lock()
		q.jobs[0] = job{}
		q.jobs = q.jobs[1:]
		r.mu.Unlock()
		metrics.AssistantPending.Dec()
	}
}

func (r *Responder) process(j job) string {
	log := r.logger.WithConversation(j.target.ID())

	select {
	case <-r.clock.After(r.delay):
	case <-j.target.Done():
		log.Debug("conversation archived, discarding assistant reply")
		return OutcomeDiscarded
	case <-r.ctx.Done():
		return OutcomeDiscarded
	}

	select {
	case <-j.target.Done():
		log.Debug("conversation archived, discarding assistant reply")
		return OutcomeDiscarded
	default:
	}

	outcome := OutcomeReplied
	var reply Reply
	if j.fixed != nil {
		reply = *j.fixed
	} else {
		var err error
		reply, err = r.synthesize(j)
		if err != nil {
			log.Error("assistant synthesis failed",
				zap.String("trigger_id", j.trigger.ID),
				zap.Error(err),
			)
			reply = Reply{Content: FallbackContent}
			outcome = OutcomeFallback
		}
	}

	if _, err := j.target.Append(deal.Draft{
		SenderID: model.AssistantID,
		Content:  reply.Content,
		Type:     reply.MessageType(),
		Metadata: reply.Metadata,
	}); err != nil {
		log.Warn("assistant reply not appended", zap.Error(err))
		return OutcomeDiscarded
	}
	return outcome
}

// synthesize runs the synthesizer with panics turned into errors. The
// context is cancelled when the conversation is archived.
func (r *Responder) synthesize(j job) (reply Reply, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("synthesis panic: %v", p)
		}
	}()

	ctx, cancel := context.WithCancel(r.ctx)
	defer cancel()
	if r.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	go func() {
		select {
		case <-j.target.Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	if r.synth == nil {
		return Reply{}, fmt.Errorf("no synthesizer configured")
	}
	return r.synth.Synthesize(ctx, j.target.Snapshot(), j.trigger)
}
