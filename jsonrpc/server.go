package jsonrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"sync"
	"time"

	"github.com/go-errors/errors"

	"fantach/log"
)

type APIRequest struct {
	Command   string          `json:"command"`
	Parameter json.RawMessage `json:"parameter,omitempty"`
}

// APIError is the reply sent when a request could not be served.
type APIError struct {
	Command string `json:"command,omitempty"`
	Error   string `json:"error"`
}

// ServerHandlerFunc serves one decoded request. The returned value is sent
// back as a single JSON line; a non-nil error is sent as an APIError instead.
type ServerHandlerFunc func(req *APIRequest) (interface{}, error)

type Server struct {
	listener       net.Listener
	done           chan struct{}
	wg             sync.WaitGroup
	handler        ServerHandlerFunc
	bConnKeepAlive bool
	AppendNewline  bool
	ReadTimeout    time.Duration
	MaxRequest     int
}

var ErrBadRequest = errors.Errorf("bad request")

func NewServer(addr string, handler ServerHandlerFunc, bKeepAlive bool) (*Server, error) {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.WrapPrefix(err, "listen "+addr, 0)
	}
	s := &Server{
		listener:       l,
		done:           make(chan struct{}),
		handler:        handler,
		bConnKeepAlive: bKeepAlive,
		AppendNewline:  true,
		ReadTimeout:    time.Millisecond * 100,
		MaxRequest:     65536,
	}
	if s.handler == nil {
		s.handler = DefaultServerHandler
	}
	s.wg.Add(1)
	return s, nil
}

func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// ListenAndServe accepts connections until Shutdown is called. It must be
// called exactly once.
func (s *Server) ListenAndServe() {
	defer s.wg.Done()

	log.Infof("API listening on %v", s.listener.Addr())
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
				log.Errorf("Accept error %v", err)
				continue
			}
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(conn)
		}()
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	select {
	case <-s.done:
		return nil
	default:
	}
	close(s.done)
	s.listener.Close()

	finished := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) stopping() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// readRequest returns one request. A request ends with '\n', or with a
// pause of ReadTimeout once some bytes have arrived, for clients that
// never send a newline.
func (s *Server) readRequest(conn net.Conn, pending []byte) (req, rest []byte, err error) {
	buf := pending
	tmp := make([]byte, 4096)
	for {
		if i := bytes.IndexByte(buf, '\n'); i >= 0 {
			return buf[:i+1], buf[i+1:], nil
		}
		if len(buf) > s.MaxRequest {
			return nil, nil, errors.WrapPrefix(ErrBadRequest, "request too long", 0)
		}
		if s.stopping() {
			return nil, nil, io.EOF
		}
		if err := conn.SetReadDeadline(time.Now().Add(s.ReadTimeout)); err != nil {
			log.Debugf("err %v", err)
		}
		n, err := conn.Read(tmp)
		buf = append(buf, tmp[:n]...)
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			// keep waiting while nothing has arrived
			if len(buf) == 0 {
				continue
			}
			if s.AppendNewline {
				buf = append(buf, '\n')
			}
			return buf, nil, nil
		}
		if err != nil {
			if len(buf) > 0 && err == io.EOF {
				return buf, nil, nil
			}
			return nil, nil, err
		}
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	log.Debug("Connection from ", conn.RemoteAddr())
	defer func() {
		log.Debug("Server disconnected from ", conn.RemoteAddr())
		conn.Close()
	}()

	var pending []byte
	for {
		buf, rest, err := s.readRequest(conn, pending)
		pending = rest
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return
		} else if err != nil {
			log.Infof("handleConnection Err %v", err)
			return
		}

		resp := s.serve(buf)
		out, err := PrepareJSONResponse(resp)
		if err != nil {
			log.Error(err)
			return
		}
		if _, err = conn.Write(out); err != nil {
			log.Error(err)
			return
		}

		if !s.bConnKeepAlive {
			// one connection per command as default
			return
		}
	}
}

func (s *Server) serve(buf []byte) interface{} {
	req := APIRequest{}
	if err := json.Unmarshal(bytes.TrimSpace(buf), &req); err != nil {
		log.Debugf("bad request %q: %v", buf, err)
		return APIError{Error: errors.WrapPrefix(ErrBadRequest, err.Error(), 0).Error()}
	}
	resp, err := s.handler(&req)
	if err != nil {
		return APIError{Command: req.Command, Error: err.Error()}
	}
	return resp
}

func DefaultServerHandler(req *APIRequest) (interface{}, error) {
	log.Infof("received %s %s", req.Command, string(req.Parameter))
	return req, nil
}
