// Package minertest provides a fake cgminer API endpoint and captured replies
// for tests.
package minertest

import (
	"embed"
	"encoding/json"
	"net"
	"strconv"
	"sync"
	"testing"
)

//go:embed fixtures/*.json
var fixtures embed.FS

// InvalidCommand is what the firmware answers to commands it does not know
const InvalidCommand = `{"STATUS":[{"STATUS":"E","When":1530000000,"Code":14,"Msg":"Invalid command","Description":"cgminer 4.9.0"}],"id":1}`

// Fixture returns a captured reply from the fixtures directory, e.g. "s9_summary".
func Fixture(t testing.TB, name string) []byte {
	t.Helper()
	data, err := fixtures.ReadFile("fixtures/" + name + ".json")
	if err != nil {
		t.Fatalf("fixture %s: %v", name, err)
	}
	return data
}

// Server answers cgminer commands with canned replies. Replies are written
// verbatim followed by the NUL terminator the firmware sends.
type Server struct {
	ln      net.Listener
	replies map[string][]byte
	stall   bool

	mu       sync.Mutex
	commands []string
	wg       sync.WaitGroup
	done     chan struct{}
}

// NewServer starts a server on a loopback port. It is closed on test cleanup.
func NewServer(t testing.TB, replies map[string][]byte) *Server {
	t.Helper()
	return start(t, replies, false)
}

// NewStallingServer accepts connections but never answers.
func NewStallingServer(t testing.TB) *Server {
	t.Helper()
	return start(t, nil, true)
}

func start(t testing.TB, replies map[string][]byte, stall bool) *Server {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := &Server{ln: ln, replies: replies, stall: stall, done: make(chan struct{})}
	s.wg.Add(1)
	go s.serve()
	t.Cleanup(s.Close)
	return s
}

// Host returns the loopback address the server listens on
func (s *Server) Host() string {
	return s.ln.Addr().(*net.TCPAddr).IP.String()
}

// Port returns the listening port
func (s *Server) Port() int {
	return s.ln.Addr().(*net.TCPAddr).Port
}

// PortString returns the listening port as a string, for command lines
func (s *Server) PortString() string {
	return strconv.Itoa(s.Port())
}

// Commands returns the commands received so far
func (s *Server) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}

// Close stops the listener and waits for open connections to finish
func (s *Server) Close() {
	select {
	case <-s.done:
		return
	default:
		close(s.done)
	}
	s.ln.Close()
	s.wg.Wait()
}

func (s *Server) serve() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.wg.Add(1)
		go s.handle(conn)
	}
}

func (s *Server) handle(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	if s.stall {
		<-s.done
		return
	}

	var req struct {
		Command string `json:"command"`
	}
	if err := json.NewDecoder(conn).Decode(&req); err != nil {
		return
	}

	s.mu.Lock()
	s.commands = append(s.commands, req.Command)
	s.mu.Unlock()

	reply, ok := s.replies[req.Command]
	if !ok {
		reply = []byte(InvalidCommand)
	}
	conn.Write(append(append([]byte(nil), reply...), 0))
}
