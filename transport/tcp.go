package transport

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/QuangTung97/council-election/paxos"
)

// Server is the inbox of one member. Each inbound connection carries
// exactly one message; malformed or truncated payloads are dropped
// without affecting other connections.
type Server struct {
	listener net.Listener
	wg       sync.WaitGroup
}

// NewServer binds the member's endpoint immediately, so the assigned
// address is known before the cluster's peer table is built.
func NewServer(addr string) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{listener: listener}, nil
}

// Addr returns the bound address, including the port chosen by the
// kernel when the server was created with port 0.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Close stops the listener without serving.
func (s *Server) Close() error {
	return s.listener.Close()
}

// Serve accepts connections until ctx is done, handling each one on
// its own goroutine. It returns after all in-flight handlers finish.
func (s *Server) Serve(ctx context.Context, handler Handler) {
	go func() {
		<-ctx.Done()
		_ = s.listener.Close()
	}()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			s.wg.Wait()
			return
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(ctx, conn, handler)
		}()
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn, handler Handler) {
	defer func() { _ = conn.Close() }()

	msg, err := ReadMessage(conn)
	if err != nil {
		return
	}
	handler.HandleMessage(ctx, msg)
}

// ----------------------------------------------------------

const dialTimeout = 2 * time.Second

// Sender unicasts messages by looking the peer up in a static
// endpoint table and opening a fresh connection per message. Connect
// and write failures are swallowed, modeling message loss.
type Sender struct {
	self  paxos.MemberID
	peers map[paxos.MemberID]string
}

var _ paxos.Sender = &Sender{}

func NewSender(self paxos.MemberID, peers map[paxos.MemberID]string) *Sender {
	return &Sender{
		self:  self,
		peers: peers,
	}
}

func (s *Sender) Send(to paxos.MemberID, msg paxos.Message) {
	addr, ok := s.peers[to]
	if !ok {
		return
	}

	msg.SenderID = s.self
	msg.ReceiverID = to

	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	_ = WriteMessage(conn, msg)
}
