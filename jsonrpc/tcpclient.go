package jsonrpc

import (
	"bufio"
	"encoding/json"
	"net"
	"sync"
	"time"

	"github.com/go-errors/errors"

	"fantach/log"
	"fantach/util"
)

const (
	MAX_RECEIVE_BUF = 65536
)

// TCPClient talks to the API server. It redials on demand and retries a
// failed exchange once.
type TCPClient struct {
	Addr          string
	Conn          net.Conn
	TxBytes       int
	RxBytes       int
	Errors        int
	RedialCount   int
	LastErrorTS   float64
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	DialTimeout   time.Duration
	AppendNewline bool
	reader        *bufio.Reader
	mx            sync.Mutex
}

func NewTCPClient(addr string) *TCPClient {
	my := &TCPClient{
		Addr:          addr,
		AppendNewline: true,
		ReadTimeout:   time.Second * 15,
		WriteTimeout:  time.Second * 15,
		DialTimeout:   time.Second * 1, // timeout faster for internal conn and UT
	}

	if err := my.redial(); err != nil {
		log.Debugf("can't connect to %s err %v", my.Addr, err)
	}
	return my
}

func (my *TCPClient) fail(err error) error {
	my.Errors++
	my.LastErrorTS = util.NowInSec()
	return err
}

func (my *TCPClient) redial() error {
	if my.Conn != nil {
		my.Conn.Close()
		my.Conn = nil
	}
	myDialer := net.Dialer{Timeout: my.DialTimeout}
	conn, err := myDialer.Dial("tcp", my.Addr)
	my.RedialCount++
	if err != nil {
		return my.fail(errors.WrapPrefix(err, "dial "+my.Addr, 0))
	}
	my.Conn = conn
	my.reader = bufio.NewReaderSize(conn, MAX_RECEIVE_BUF)
	my.Errors = 0
	return nil
}

func (my *TCPClient) sendAndReceive(reqbuf []byte) ([]byte, error) {
	if my.Conn == nil || my.Errors > 0 {
		if err := my.redial(); err != nil {
			return nil, err
		}
	}

	if err := my.Conn.SetWriteDeadline(time.Now().Add(my.WriteTimeout)); err != nil {
		log.Debugf("err %v", err)
	}

	if my.AppendNewline {
		n := len(reqbuf)
		if n > 0 && reqbuf[n-1] != '\n' {
			reqbuf = append(reqbuf, '\n')
		}
	}

	n, err := my.Conn.Write(reqbuf)
	if err != nil {
		return nil, my.fail(errors.WrapPrefix(err, "send", 0))
	}
	my.TxBytes += n

	if err = my.Conn.SetReadDeadline(time.Now().Add(my.ReadTimeout)); err != nil {
		log.Debugf("err %v", err)
	}
	reply, err := my.reader.ReadBytes('\n')
	if err != nil {
		return nil, my.fail(errors.WrapPrefix(err, "receive", 0))
	}
	my.RxBytes += len(reply)
	return reply, nil
}

func (my *TCPClient) SendAndReceive(reqbuf []byte) ([]byte, error) {
	my.mx.Lock()
	defer my.mx.Unlock()

	reply, err := my.sendAndReceive(reqbuf)
	// retry once so it is transparent for clients when socket connection is down
	if err != nil {
		reply, err = my.sendAndReceive(reqbuf)
	}
	return reply, err
}

// Call sends command with an optional parameter and decodes the reply into
// out. An APIError reply is returned as an error.
func (my *TCPClient) Call(command string, parameter interface{}, out interface{}) error {
	req := APIRequest{Command: command}
	if parameter != nil {
		raw, err := json.Marshal(parameter)
		if err != nil {
			return errors.Wrap(err, 0)
		}
		req.Parameter = raw
	}
	reqbuf, err := json.Marshal(req)
	if err != nil {
		return errors.Wrap(err, 0)
	}

	reply, err := my.SendAndReceive(reqbuf)
	if err != nil {
		return err
	}

	var apiErr APIError
	if json.Unmarshal(reply, &apiErr) == nil && apiErr.Error != "" {
		return errors.New(apiErr.Error)
	}
	if out == nil {
		return nil
	}
	if err = json.Unmarshal(reply, out); err != nil {
		return errors.WrapPrefix(err, "decode "+command, 0)
	}
	return nil
}

func (my *TCPClient) Shutdown() {
	my.mx.Lock()
	defer my.mx.Unlock()

	if my.Conn != nil {
		my.Conn.Close()
		my.Conn = nil
	}
}
