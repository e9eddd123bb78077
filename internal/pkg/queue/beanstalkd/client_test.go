package beanstalkd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type serverJob struct {
	id   int
	body string
}

// lineServer speaks enough of the beanstalkd text protocol for ConnClient:
// use, watch, ignore, put, reserve-with-timeout and delete.
type lineServer struct {
	ln net.Listener

	mu           sync.Mutex
	commands     []string
	ready        []serverJob
	lastID       int
	deadlineSoon bool
}

func startLineServer(t *testing.T) *lineServer {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	s := &lineServer{ln: ln}
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go s.serve(conn)
		}
	}()
	return s
}

func (s *lineServer) serve(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)

	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		s.mu.Lock()
		s.commands = append(s.commands, line)
		var reply string
		switch fields[0] {
		case "use":
			reply = "USING " + fields[1]
		case "watch":
			reply = "WATCHING 2"
		case "ignore":
			reply = "WATCHING 1"
		case "put":
			n, _ := strconv.Atoi(fields[4])
			body := make([]byte, n+2)
			if _, err := io.ReadFull(r, body); err != nil {
				s.mu.Unlock()
				return
			}
			s.lastID++
			s.ready = append(s.ready, serverJob{id: s.lastID, body: string(body[:n])})
			reply = fmt.Sprintf("INSERTED %d", s.lastID)
		case "reserve-with-timeout":
			switch {
			case s.deadlineSoon:
				reply = "DEADLINE_SOON"
			case len(s.ready) == 0:
				reply = "TIMED_OUT"
			default:
				job := s.ready[0]
				s.ready = s.ready[1:]
				reply = fmt.Sprintf("RESERVED %d %d\r\n%s", job.id, len(job.body), job.body)
			}
		case "delete":
			reply = "DELETED"
		default:
			reply = "UNKNOWN_COMMAND"
		}
		s.mu.Unlock()

		if _, err := fmt.Fprintf(conn, "%s\r\n", reply); err != nil {
			return
		}
	}
}

func (s *lineServer) received() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}

func dialTestQueue(t *testing.T, s *lineServer) *BeanstalkdQueue {
	t.Helper()

	client, err := Dial(s.ln.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return New(client, "jobs")
}

func TestConnClient_TimedOutIsNoJob(t *testing.T) {
	s := startLineServer(t)
	q := dialTestQueue(t, s)

	job, err := q.GetNext(context.Background())
	require.NoError(t, err)
	assert.Nil(t, job)

	commands := s.received()
	assert.Contains(t, commands, "watch jobs")
	assert.Contains(t, commands, "ignore default")
	assert.Contains(t, commands, "reserve-with-timeout 0")
}

func TestConnClient_DeadlineSoonIsNoJob(t *testing.T) {
	s := startLineServer(t)
	s.mu.Lock()
	s.deadlineSoon = true
	s.mu.Unlock()
	q := dialTestQueue(t, s)

	job, err := q.GetNext(context.Background())
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestConnClient_PutReserveDelete(t *testing.T) {
	s := startLineServer(t)
	q := dialTestQueue(t, s)
	ctx := context.Background()

	require.NoError(t, q.SendJob(ctx, "payload"))

	job, err := q.GetNext(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, "1", job.ID())
	assert.Equal(t, "payload", q.GetMessageBody(job))

	require.NoError(t, q.Successful(ctx, job))

	commands := s.received()
	assert.Contains(t, commands, "use jobs")
	assert.Contains(t, commands, "put 1024 0 60 7")
	assert.Equal(t, "delete 1", commands[len(commands)-1])
}

func TestConnClient_FailedPutsBeforeDelete(t *testing.T) {
	s := startLineServer(t)
	q := dialTestQueue(t, s)
	ctx := context.Background()

	require.NoError(t, q.SendJob(ctx, "payload"))
	job, err := q.GetNext(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)

	require.NoError(t, q.Failed(ctx, job))

	commands := s.received()
	require.GreaterOrEqual(t, len(commands), 3)
	tail := commands[len(commands)-3:]
	assert.Equal(t, []string{"use jobs-failed", "put 1024 0 60 7", "delete 1"}, tail)
}
