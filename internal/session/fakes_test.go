package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/hublink/internal/credential"
	"github.com/nerrad567/hublink/internal/infrastructure/mqtt"
)

var errBrokerDown = errors.New("broker unreachable")

type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Unix(1700000000, 0)}
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

// fakeTransport scripts connect and subscribe outcomes.
type fakeTransport struct {
	connectErrs  []error          // consumed one per Connect; exhausted means success
	subscribeErr map[string]error // consumed once per topic
	publishErr   error
	publishErrs  []error // consumed one per Publish before publishErr applies

	connected   bool
	passwords   []string
	subscribed  []string
	published   []string
	disconnects int
	inbound     []mqtt.Message
}

func (f *fakeTransport) Connect(_ context.Context, _ mqtt.ConnectionConfig, password string) error {
	f.passwords = append(f.passwords, password)
	if len(f.connectErrs) > 0 {
		err := f.connectErrs[0]
		f.connectErrs = f.connectErrs[1:]
		if err != nil {
			return err
		}
	}
	f.connected = true
	return nil
}

func (f *fakeTransport) IsConnected() bool { return f.connected }

func (f *fakeTransport) Disconnect() {
	f.disconnects++
	f.connected = false
}

func (f *fakeTransport) Subscribe(topic string, _ byte) error {
	f.subscribed = append(f.subscribed, topic)
	if err, ok := f.subscribeErr[topic]; ok {
		delete(f.subscribeErr, topic)
		return err
	}
	return nil
}

func (f *fakeTransport) Publish(topic string, _ byte, payload []byte) error {
	if len(f.publishErrs) > 0 {
		err := f.publishErrs[0]
		f.publishErrs = f.publishErrs[1:]
		if err != nil {
			return err
		}
	}
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, topic+"|"+string(payload))
	return nil
}

func (f *fakeTransport) Receive() (mqtt.Message, bool) {
	if len(f.inbound) == 0 {
		return mqtt.Message{}, false
	}
	msg := f.inbound[0]
	f.inbound = f.inbound[1:]
	return msg, true
}

// fakeIssuer issues numbered tokens valid for ttl from the fake clock.
type fakeIssuer struct {
	clock  *fakeClock
	err    error
	issued int
}

func (i *fakeIssuer) Issue(ttl uint64) (credential.Credential, error) {
	if i.err != nil {
		return credential.Credential{}, i.err
	}
	i.issued++
	return credential.Credential{
		Token:          fmt.Sprintf("token-%d", i.issued),
		IssuedForEpoch: uint64(i.clock.Now().Unix()) + ttl,
	}, nil
}

type attemptRecord struct {
	attempt uint32
	err     error
}

type recordingObserver struct {
	transitions []string
	attempts    []attemptRecord
}

func (o *recordingObserver) RecordStateChange(from, to string) {
	o.transitions = append(o.transitions, from+"->"+to)
}

func (o *recordingObserver) RecordConnectAttempt(attempt uint32, _ time.Duration, err error) {
	o.attempts = append(o.attempts, attemptRecord{attempt: attempt, err: err})
}

// recordingSleeper records requested delays and never blocks.
type recordingSleeper struct {
	delays []time.Duration
}

func (s *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	return ctx.Err()
}
