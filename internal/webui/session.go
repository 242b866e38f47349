package webui

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/tobert/microdash/internal/dashboard"
	"github.com/tobert/microdash/internal/poll"
)

// keepaliveInterval is how often the current state is re-sent even when
// nothing changed, so the page knows the server is alive.
const keepaliveInterval = 15 * time.Second

// wsControl is the client-sent selection message. Absent fields leave the
// corresponding setting unchanged.
type wsControl struct {
	Tab     *dashboard.Tab `json:"tab,omitempty"`
	Refresh *bool          `json:"refresh,omitempty"`
	Page    *int           `json:"page,omitempty"`
	Size    *int           `json:"size,omitempty"`
}

// wsUpdate is the server-sent message on the WebSocket.
type wsUpdate struct {
	State dashboard.State `json:"state"`
	Error string          `json:"error,omitempty"`
}

// session is one live service page. It owns the page's view and the single
// poll task refreshing it.
type session struct {
	srv     *Server
	conn    *websocket.Conn
	view    *dashboard.ServiceView
	poller  *poll.Poller
	updated chan struct{}
	lastErr string
}

// handleWebSocket upgrades to WebSocket and streams view updates for one
// service until the client goes away.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // Allow any origin for localhost dev
	})
	if err != nil {
		return
	}
	defer conn.CloseNow()

	s.opts.Metrics.SessionOpened()
	defer s.opts.Metrics.SessionClosed()

	sess := &session{
		srv:  s,
		conn: conn,
		view: s.newView(r.PathValue("name")),
		poller: &poll.Poller{
			OnStart: s.opts.Metrics.PollStarted,
			OnStop:  s.opts.Metrics.PollStopped,
		},
		updated: make(chan struct{}, 1),
	}
	defer sess.poller.Stop()

	sess.run(r.Context())
}

func (sess *session) run(ctx context.Context) {
	if err := sess.view.Load(ctx); err != nil {
		sess.lastErr = err.Error()
	}

	// Read control messages from the client in a goroutine
	controlCh := make(chan wsControl, 4)
	go func() {
		defer close(controlCh)
		for {
			_, data, err := sess.conn.Read(ctx)
			if err != nil {
				return
			}
			var c wsControl
			if json.Unmarshal(data, &c) == nil {
				select {
				case controlCh <- c:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	sess.send(ctx)

	keepalive := time.NewTicker(keepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-ctx.Done():
			sess.conn.Close(websocket.StatusNormalClosure, "server shutting down")
			return

		case c, ok := <-controlCh:
			if !ok {
				// Client disconnected
				return
			}
			sess.apply(ctx, c)
			sess.send(ctx)

		case <-sess.updated:
			sess.send(ctx)

		case <-keepalive.C:
			sess.send(ctx)
		}
	}
}

// apply updates the view from a control message and starts or stops the
// stats poll to match. Starting always cancels the previous task first.
func (sess *session) apply(ctx context.Context, c wsControl) {
	if c.Tab != nil {
		if err := sess.view.SetTab(*c.Tab); err != nil {
			log.Printf("⚠️  webui: %v\n", err)
		}
	}
	if c.Refresh != nil {
		sess.view.SetRefresh(*c.Refresh)
	}
	if c.Size != nil {
		sess.view.SetPageSize(*c.Size)
	}
	if c.Page != nil {
		sess.view.SetPage(*c.Page)
	}

	if !sess.view.ShouldPoll() {
		sess.poller.Stop()
		if c.Tab != nil && *c.Tab == dashboard.TabTraces {
			sess.refreshTraces(ctx)
		}
		return
	}

	key := "stats:" + sess.view.Name()
	if current, running := sess.poller.Current(); running && current == key {
		return
	}
	sess.poller.Start(ctx, key, sess.srv.opts.PollInterval, func(ctx context.Context) {
		if err := sess.view.RefreshStats(ctx); err != nil {
			return
		}
		select {
		case sess.updated <- struct{}{}:
		default:
		}
	})
}

func (sess *session) refreshTraces(ctx context.Context) {
	if err := sess.view.RefreshTraces(ctx); err != nil {
		sess.lastErr = err.Error()
		return
	}
	sess.lastErr = ""
}

// send writes the current view state to the client.
func (sess *session) send(ctx context.Context) {
	data, err := json.Marshal(wsUpdate{State: sess.view.Snapshot(), Error: sess.lastErr})
	if err != nil {
		log.Printf("webui: failed to marshal update: %v", err)
		return
	}

	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := sess.conn.Write(writeCtx, websocket.MessageText, data); err != nil {
		// Connection closed; the main loop will handle cleanup.
		return
	}
}
