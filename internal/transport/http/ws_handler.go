package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"liveclass-service/internal/app"
	"liveclass-service/internal/domain"
	"liveclass-service/internal/presence"
)

// WSOptions tunes per-connection presence monitoring.
type WSOptions struct {
	Grace time.Duration
	Clock presence.Clock
}

type WSHandler struct {
	interactive *app.InteractiveService
	lessons     *app.LessonService
	opts        WSOptions
	upgrader    websocket.Upgrader
}

func NewWSHandler(interactive *app.InteractiveService, lessons *app.LessonService, opts WSOptions) *WSHandler {
	return &WSHandler{
		interactive: interactive,
		lessons:     lessons,
		opts:        opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type slidePayload struct {
	SlideID string `json:"slideId"`
}

type submitPayload struct {
	SlideID        string `json:"slideId"`
	OptionID       string `json:"optionId"`
	ResponseTimeMs int64  `json:"responseTimeMs"`
}

type joinedPayload struct {
	SessionID string        `json:"sessionId"`
	UserID    string        `json:"userId"`
	Role      domain.Role   `json:"role"`
	Deck      domain.Deck   `json:"deck"`
	Lesson    domain.Lesson `json:"lesson"`
}

type responsesPayload struct {
	SlideID   string            `json:"slideId"`
	Responses []domain.Response `json:"responses"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// connection is the per-socket state. send is never closed; the writer stops on done.
type connection struct {
	sessionID string
	userID    string
	name      string
	role      domain.Role

	send chan outboundMessage[any]
	done chan struct{}

	mu      sync.Mutex
	mounted map[string][]func()
}

func (c *connection) deliver(msgType string, payload any) {
	select {
	case c.send <- outboundMessage[any]{Type: msgType, Payload: payload}:
	case <-c.done:
	}
}

func (c *connection) fail(err error) {
	c.deliver("error", errorPayload{Code: errorCode(err), Message: err.Error()})
}

// ServeWS upgrades HTTP requests to websockets and wires them into the classroom use cases.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sessionID := q.Get("sessionId")
	userID := q.Get("userId")
	displayName := q.Get("name")
	role := domain.Role(q.Get("role"))
	deckID := q.Get("deckId")
	if sessionID == "" || userID == "" || displayName == "" {
		http.Error(w, "missing sessionId, userId, or name", http.StatusBadRequest)
		return
	}
	if role == "" {
		role = domain.RoleStudent
	}
	if !role.Valid() {
		http.Error(w, "role must be teacher or student", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ctx := r.Context()
	writeError := func(err error) {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Code: errorCode(err), Message: err.Error()}})
	}

	if deckID != "" {
		if _, err := h.interactive.OpenSession(ctx, sessionID, deckID); err != nil {
			writeError(err)
			return
		}
	}
	lesson, err := h.lessons.Join(ctx, sessionID, userID, role)
	if err != nil {
		writeError(err)
		return
	}
	defer h.lessons.Leave(context.Background(), sessionID, userID)

	deck, err := h.interactive.Deck(ctx, sessionID)
	if err != nil {
		writeError(err)
		return
	}

	lessonUpdates, cancelLesson, err := h.lessons.Subscribe(ctx, sessionID)
	if err != nil {
		writeError(err)
		return
	}
	defer cancelLesson()

	c := &connection{
		sessionID: sessionID,
		userID:    userID,
		name:      displayName,
		role:      role,
		send:      make(chan outboundMessage[any], 32),
		done:      make(chan struct{}),
		mounted:   make(map[string][]func()),
	}

	monitor := presence.NewMonitor(role, h.opts.Grace, h.opts.Clock, func(ev presence.AbsenceEvent) {
		c.deliver("absence", ev)
	})

	writerDone := make(chan struct{})
	lessonDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for {
			select {
			case msg := <-c.send:
				if err := conn.WriteJSON(msg); err != nil {
					log.Printf("ws write error: %v", err)
					return
				}
			case <-c.done:
				return
			}
		}
	}()

	c.deliver("joined", joinedPayload{SessionID: sessionID, UserID: userID, Role: role, Deck: deck, Lesson: lesson})

	go func() {
		defer close(lessonDone)
		for {
			select {
			case update, ok := <-lessonUpdates:
				if !ok {
					return
				}
				// The counterpart is expected once the lesson starts; until then the clock runs.
				if update.Started {
					monitor.Start(sessionID)
				} else {
					monitor.Wait(sessionID)
				}
				c.deliver("lesson", update)
			case <-c.done:
				return
			}
		}
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		h.dispatch(ctx, c, inbound)
	}

	close(c.done)
	<-lessonDone
	monitor.Close()
	c.unmountAll()
	<-writerDone
}

func (h *WSHandler) dispatch(ctx context.Context, c *connection, inbound inboundMessage) {
	switch inbound.Type {
	case "mount":
		var payload slidePayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil || payload.SlideID == "" {
			c.deliver("error", errorPayload{Code: "badRequest", Message: "invalid mount payload"})
			return
		}
		h.mount(ctx, c, payload.SlideID)
	case "submit":
		var payload submitPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			c.deliver("error", errorPayload{Code: "badRequest", Message: "invalid submit payload"})
			return
		}
		resp, err := h.interactive.SubmitResponse(ctx, domain.Submission{
			SessionID:      c.sessionID,
			SlideID:        payload.SlideID,
			StudentID:      c.userID,
			StudentName:    c.name,
			OptionID:       payload.OptionID,
			ResponseTimeMs: payload.ResponseTimeMs,
		})
		if err != nil {
			c.fail(err)
			return
		}
		c.deliver("submitted", resp)
	case "activate", "lock", "reveal", "reset":
		var payload slidePayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			c.deliver("error", errorPayload{Code: "badRequest", Message: "invalid " + inbound.Type + " payload"})
			return
		}
		state, err := h.transition(ctx, inbound.Type, c, payload.SlideID)
		if err != nil {
			c.fail(err)
			return
		}
		c.deliver("slideState", state)
	case "results":
		var payload slidePayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			c.deliver("error", errorPayload{Code: "badRequest", Message: "invalid results payload"})
			return
		}
		results, err := h.interactive.Results(ctx, c.sessionID, payload.SlideID)
		if err != nil {
			c.fail(err)
			return
		}
		c.deliver("results", results)
	case "startLesson":
		if _, err := h.lessons.StartLesson(ctx, c.sessionID, c.role); err != nil {
			c.fail(err)
		}
	case "pauseLesson":
		if _, err := h.lessons.PauseLesson(ctx, c.sessionID, c.role); err != nil {
			c.fail(err)
		}
	default:
		c.deliver("error", errorPayload{Code: "badRequest", Message: "unsupported message type"})
	}
}

// mount subscribes the connection to a slide, then sends the current phase and the
// full response set. Later duplicates are for the client to drop by id.
func (h *WSHandler) mount(ctx context.Context, c *connection, slideID string) {
	c.mu.Lock()
	_, already := c.mounted[slideID]
	c.mu.Unlock()
	if already {
		return
	}

	unsubState, err := h.interactive.SubscribeToSlideState(ctx, c.sessionID, slideID, func(state domain.SlideState) {
		c.deliver("slideState", state)
	})
	if err != nil {
		c.fail(err)
		return
	}
	unsubResponses, err := h.interactive.SubscribeToResponses(ctx, c.sessionID, slideID, func(resp domain.Response) {
		c.deliver("response", resp)
	})
	if err != nil {
		unsubState()
		c.fail(err)
		return
	}
	c.mu.Lock()
	c.mounted[slideID] = []func(){unsubState, unsubResponses}
	c.mu.Unlock()

	state, err := h.interactive.SlideState(ctx, c.sessionID, slideID)
	if err != nil {
		c.fail(err)
		return
	}
	responses, err := h.interactive.GetResponsesForSlide(ctx, c.sessionID, slideID)
	if err != nil {
		c.fail(err)
		return
	}
	c.deliver("slideState", state)
	c.deliver("responses", responsesPayload{SlideID: slideID, Responses: responses})
}

func (h *WSHandler) transition(ctx context.Context, action string, c *connection, slideID string) (domain.SlideState, error) {
	switch action {
	case "activate":
		return h.interactive.Activate(ctx, c.sessionID, slideID, c.role)
	case "lock":
		return h.interactive.Lock(ctx, c.sessionID, slideID, c.role)
	case "reveal":
		return h.interactive.Reveal(ctx, c.sessionID, slideID, c.role)
	default:
		return h.interactive.Reset(ctx, c.sessionID, slideID, c.role)
	}
}

func (c *connection) unmountAll() {
	c.mu.Lock()
	mounted := c.mounted
	c.mounted = make(map[string][]func())
	c.mu.Unlock()
	for _, unsubs := range mounted {
		for _, fn := range unsubs {
			fn()
		}
	}
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrDuplicateResponse):
		return "duplicate"
	case errors.Is(err, domain.ErrSlideNotActive):
		return "notActive"
	case errors.Is(err, domain.ErrOptionNotFound), errors.Is(err, domain.ErrSlideNotFound):
		return "notFound"
	case errors.Is(err, domain.ErrSessionNotFound), errors.Is(err, domain.ErrDeckNotFound):
		return "sessionNotFound"
	case errors.Is(err, domain.ErrNotTeacher):
		return "forbidden"
	case errors.Is(err, domain.ErrInvalidTransition):
		return "invalidTransition"
	default:
		return "internal"
	}
}
