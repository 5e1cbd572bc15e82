package daemon

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"reelforge/internal/api"
	"reelforge/internal/logging"
	"reelforge/internal/progress"
)

const (
	streamWriteTimeout = 10 * time.Second
	// terminalSettle bounds the wait for the other channel's terminal event
	// once one channel has finished.
	terminalSettle = 5 * time.Second
	streamBuffer   = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Non-browser clients send no Origin; access is gated by the bearer token.
	CheckOrigin: func(*http.Request) bool { return true },
}

// handleStream upgrades to a websocket carrying both progress channels of one
// job. The server closes the stream once both channels delivered their
// terminal event and the configured grace period elapsed.
func (s *apiServer) handleStream(w http.ResponseWriter, r *http.Request) {
	jobID := strings.TrimSpace(r.PathValue("id"))
	if _, ok := s.daemon.coord.Status(jobID); !ok {
		// Finished jobs still answer with their final snapshot.
		snap, err := s.daemon.store.Get(r.Context(), jobID)
		if err != nil || snap == nil {
			writeError(w, http.StatusNotFound, "job not found", "")
			return
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		return
	}
	defer conn.Close()

	logger := logging.NewComponentLogger(s.logger, "stream").With(logging.String(logging.FieldJobID, jobID))
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	out := make(chan api.StreamEnvelope, streamBuffer)
	send := func(env api.StreamEnvelope) {
		select {
		case out <- env:
		case <-ctx.Done():
		}
	}
	bus := s.daemon.coord.Bus()
	unsubScalar := bus.Scalar.Subscribe(jobID, func(p progress.ScalarProgress) {
		send(api.StreamEnvelope{Channel: progress.ChannelScalar, Scalar: &p})
	})
	defer unsubScalar()
	unsubWorkflow := bus.Workflow.Subscribe(jobID, func(e progress.WorkflowEvent) {
		send(api.StreamEnvelope{Channel: progress.ChannelWorkflow, Workflow: &e})
	})
	defer unsubWorkflow()

	// Subscribing happens after the existence check, so the run may have
	// finished in between. Replay the current state either way.
	current, finished := s.replay(ctx, jobID)
	if current != nil {
		send(*current)
	} else {
		logger.Debug("job left no state behind before the stream attached")
	}

	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	var (
		scalarDone   bool
		workflowDone bool
		closeAfter   <-chan time.Time
	)
	if finished {
		// Nothing further will be published for a discarded run. Events it
		// published after the subscription are already queued and get drained.
		closeAfter = time.After(0)
	}
	for {
		select {
		case env := <-out:
			if err := s.write(conn, env); err != nil {
				logger.Debug("stream write failed", logging.Error(err))
				return
			}
			if !env.Terminal() {
				continue
			}
			if env.Scalar != nil {
				scalarDone = true
			} else {
				workflowDone = true
			}
			switch {
			case scalarDone && workflowDone:
				closeAfter = time.After(s.grace)
			case closeAfter == nil:
				closeAfter = time.After(s.grace + terminalSettle)
			}
		case <-closeAfter:
			s.drain(conn, out)
			_ = conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "job finished"),
				time.Now().Add(time.Second),
			)
			return
		case <-clientGone:
			logger.Debug("stream client disconnected")
			return
		case <-ctx.Done():
			_ = conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(time.Second),
			)
			return
		}
	}
}

// replay returns the envelope a new subscriber starts from and whether the job
// is already over. A job neither the coordinator nor the store knows about
// finished without a readable snapshot, so it counts as over.
func (s *apiServer) replay(ctx context.Context, jobID string) (*api.StreamEnvelope, bool) {
	if scalar, ok := s.daemon.coord.Status(jobID); ok {
		return &api.StreamEnvelope{Channel: progress.ChannelScalar, Scalar: &scalar}, false
	}
	snap, err := s.daemon.store.Get(ctx, jobID)
	if err != nil || snap == nil {
		return nil, true
	}
	scalar := progress.ScalarProgress{JobID: snap.JobID, Status: snap.Status, Percent: snap.Percent, Message: snap.Message}
	return &api.StreamEnvelope{Channel: progress.ChannelScalar, Scalar: &scalar}, snap.IsTerminal()
}

func (s *apiServer) write(conn *websocket.Conn, env api.StreamEnvelope) error {
	if err := conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout)); err != nil {
		return err
	}
	return conn.WriteJSON(env)
}

// drain flushes envelopes that were queued before the stream closes.
func (s *apiServer) drain(conn *websocket.Conn, out <-chan api.StreamEnvelope) {
	for {
		select {
		case env := <-out:
			if err := s.write(conn, env); err != nil {
				return
			}
		default:
			return
		}
	}
}
