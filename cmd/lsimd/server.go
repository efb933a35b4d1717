package main

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fantasticism/lsim"
)

const writeWait = 10 * time.Second

// A client is one websocket connection. All outgoing traffic, command
// replies and broadcasts alike, is funneled through the send channel so
// the connection has exactly one writer.
type client struct {
	conn *websocket.Conn
	send chan []byte
}

// enqueue queues a message without blocking; a full channel means the
// writer is dead or too slow and the message is dropped.
func (c *client) enqueue(msg []byte) bool {
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// writePump drains the send channel onto the connection. It exits when
// the channel is closed by the hub, a write fails or the server shuts
// down, closing the connection either way.
func (s *Server) writePump(cl *client) {
	defer cl.conn.Close()
	for {
		select {
		case msg, ok := <-cl.send:
			if !ok {
				return
			}
			cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cl.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-s.done:
			return
		}
	}
}

// Server owns one circuit library and at most one live simulator. The
// simulator itself is single-threaded; the mutex serializes all client
// commands against it.
type Server struct {
	logger *Logger
	cfg    Config

	mu  sync.Mutex
	lib *lsim.Library
	top *lsim.CircuitDescription
	sim *lsim.Simulator
	res lsim.StepResult

	upgrader   websocket.Upgrader
	clients    map[*client]bool
	cmu        sync.Mutex
	broadcast  chan []byte
	register   chan *client
	unregister chan *client
	done       chan struct{}
	wg         sync.WaitGroup
}

func NewServer(cfg Config, logger *Logger) *Server {
	s := &Server{
		logger:     logger,
		cfg:        cfg,
		lib:        lsim.NewLibrary(),
		clients:    make(map[*client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	s.wg.Add(1)
	go s.run()
	return s
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleWS upgrades the connection and serves commands until the
// client goes away. Replies go back through the client's send channel;
// state snapshots after simulation changes are broadcast to every
// client.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warnf("upgrade failed: %v", err)
		return
	}
	cl := &client{conn: conn, send: make(chan []byte, 64)}
	go s.writePump(cl)
	s.logger.Infof("client connected: %s", conn.RemoteAddr())

	select {
	case s.register <- cl:
	case <-s.done:
		return
	}
	defer func() {
		select {
		case s.unregister <- cl:
		case <-s.done:
		}
		s.logger.Infof("client disconnected: %s", conn.RemoteAddr())
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warnf("read failed: %v", err)
			}
			return
		}
		reply, notify := s.dispatch(data)
		if !cl.enqueue(reply) {
			s.logger.Warnf("dropping client %s: send queue full", conn.RemoteAddr())
			return
		}
		if notify != nil {
			s.Broadcast(notify)
		}
	}
}

// Broadcast queues a message for every connected client.
func (s *Server) Broadcast(msg []byte) {
	select {
	case s.broadcast <- msg:
	case <-s.done:
	}
}

// run handles client registration and message fan-out. Only this
// goroutine adds or removes clients, so a close of a send channel never
// races a broadcast to it.
func (s *Server) run() {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return

		case cl := <-s.register:
			s.cmu.Lock()
			s.clients[cl] = true
			s.cmu.Unlock()

		case cl := <-s.unregister:
			s.cmu.Lock()
			if _, ok := s.clients[cl]; ok {
				delete(s.clients, cl)
				close(cl.send)
			}
			s.cmu.Unlock()

		case msg := <-s.broadcast:
			s.cmu.Lock()
			for cl := range s.clients {
				if !cl.enqueue(msg) {
					delete(s.clients, cl)
					close(cl.send)
				}
			}
			s.cmu.Unlock()
		}
	}
}

// Close disconnects all clients and stops the fan-out goroutine. Send
// channels are left open: only the hub may close them, and command
// readers may still be enqueueing replies while the server shuts down.
func (s *Server) Close() error {
	close(s.done)
	s.wg.Wait()
	s.cmu.Lock()
	for cl := range s.clients {
		delete(s.clients, cl)
		cl.conn.Close()
	}
	s.cmu.Unlock()
	return nil
}
