package beanstalkd

import (
	"time"

	"github.com/beanstalkd/go-beanstalk"
)

// Client is the part of a beanstalkd connection the queue depends on.
type Client interface {
	Put(tube string, body []byte, pri uint32, delay, ttr time.Duration) (uint64, error)
	// Reserve watches tube only and reserves a job from it.
	Reserve(tube string, timeout time.Duration) (uint64, []byte, error)
	Delete(id uint64) error
}

// ConnClient implements Client on a single beanstalkd connection. Reservations
// belong to the connection, so every queue instance needs its own.
type ConnClient struct {
	conn     *beanstalk.Conn
	tubeSets map[string]*beanstalk.TubeSet
}

// Dial connects to the beanstalkd server at addr.
func Dial(addr string) (*ConnClient, error) {
	conn, err := beanstalk.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &ConnClient{
		conn:     conn,
		tubeSets: make(map[string]*beanstalk.TubeSet),
	}, nil
}

func (c *ConnClient) Put(tube string, body []byte, pri uint32, delay, ttr time.Duration) (uint64, error) {
	t := &beanstalk.Tube{Conn: c.conn, Name: tube}
	return t.Put(body, pri, delay, ttr)
}

func (c *ConnClient) Reserve(tube string, timeout time.Duration) (uint64, []byte, error) {
	ts, ok := c.tubeSets[tube]
	if !ok {
		ts = beanstalk.NewTubeSet(c.conn, tube)
		c.tubeSets[tube] = ts
	}
	return ts.Reserve(timeout)
}

func (c *ConnClient) Delete(id uint64) error {
	return c.conn.Delete(id)
}

func (c *ConnClient) Close() error {
	return c.conn.Close()
}
