// Package loadtest exercises a running relay with synthetic signaling
// traffic: pairs of clients exchanging negotiation round trips, and
// connection churn against the admission path.
package loadtest

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"nhooyr.io/websocket"

	"github.com/peerlink-io/peerlink/internal/identity"
	"github.com/peerlink-io/peerlink/internal/protocol"
)

const dialTimeout = 5 * time.Second

// ExchangeMetrics aggregates results of a signaling exchange run.
type ExchangeMetrics struct {
	PairsStarted  int64
	ConnectErrors int64
	RoundTrips    int64
	Errors        int64

	MinLatency time.Duration
	MaxLatency time.Duration
	AvgLatency time.Duration

	Elapsed time.Duration
}

// ExchangeGenerator drives concurrent client pairs through OFFER/ANSWER
// round trips.
type ExchangeGenerator struct {
	url         string
	key         string
	pairs       int
	payloadSize int
	duration    time.Duration

	roundTrips atomic.Int64
	errors     atomic.Int64

	mu           sync.Mutex
	minLatency   time.Duration
	maxLatency   time.Duration
	totalLatency time.Duration
}

// NewExchangeGenerator creates a generator for the given relay endpoint.
// url is the WebSocket endpoint without query parameters, e.g.
// ws://localhost:9000/peerjs.
func NewExchangeGenerator(url, key string, pairs, payloadSize int, duration time.Duration) *ExchangeGenerator {
	if pairs < 1 {
		pairs = 1
	}
	if payloadSize < 1 {
		payloadSize = 64
	}
	return &ExchangeGenerator{
		url:         url,
		key:         key,
		pairs:       pairs,
		payloadSize: payloadSize,
		duration:    duration,
		minLatency:  time.Duration(math.MaxInt64),
	}
}

// Run executes the exchange until the configured duration elapses or ctx is
// canceled, whichever comes first.
func (g *ExchangeGenerator) Run(ctx context.Context) (*ExchangeMetrics, error) {
	runCtx, cancel := context.WithTimeout(ctx, g.duration)
	defer cancel()

	start := time.Now()
	metrics := &ExchangeMetrics{}

	var wg sync.WaitGroup
	for i := 0; i < g.pairs; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := g.runPair(runCtx); err != nil {
				atomic.AddInt64(&metrics.ConnectErrors, 1)
			}
		}()
	}
	wg.Wait()

	metrics.PairsStarted = int64(g.pairs) - metrics.ConnectErrors
	metrics.RoundTrips = g.roundTrips.Load()
	metrics.Errors = g.errors.Load()
	metrics.Elapsed = time.Since(start)

	g.mu.Lock()
	if metrics.RoundTrips > 0 {
		metrics.MinLatency = g.minLatency
		metrics.MaxLatency = g.maxLatency
		metrics.AvgLatency = g.totalLatency / time.Duration(metrics.RoundTrips)
	}
	g.mu.Unlock()

	return metrics, nil
}

// runPair connects a caller and a callee, then ping-pongs until the context
// expires. The callee echoes every OFFER with an ANSWER; the caller measures
// the full round trip.
func (g *ExchangeGenerator) runPair(ctx context.Context) error {
	callerID := identity.Generate()
	calleeID := identity.Generate()

	caller, err := g.connect(ctx, callerID)
	if err != nil {
		return err
	}
	defer caller.Close(websocket.StatusNormalClosure, "")

	callee, err := g.connect(ctx, calleeID)
	if err != nil {
		return err
	}
	defer callee.Close(websocket.StatusNormalClosure, "")

	payload, err := json.Marshal(map[string]string{"sdp": padding(g.payloadSize)})
	if err != nil {
		return err
	}

	// Callee: answer every offer.
	go func() {
		for {
			msg, err := readParsed(ctx, callee)
			if err != nil {
				return
			}
			if msg.Type != protocol.TypeOffer {
				continue
			}
			answer := &protocol.Message{
				Type:    protocol.TypeAnswer,
				Dst:     msg.Src,
				Payload: msg.Payload,
			}
			if err := writeMessage(ctx, callee, answer); err != nil {
				return
			}
		}
	}()

	// Caller: offer, await answer, repeat.
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		offer := &protocol.Message{
			Type:    protocol.TypeOffer,
			Dst:     calleeID,
			Payload: payload,
		}

		sent := time.Now()
		if err := writeMessage(ctx, caller, offer); err != nil {
			return nil
		}

		msg, err := readParsed(ctx, caller)
		if err != nil {
			return nil
		}
		if msg.Type != protocol.TypeAnswer {
			g.errors.Add(1)
			continue
		}
		g.recordLatency(time.Since(sent))
		g.roundTrips.Add(1)
	}
}

func (g *ExchangeGenerator) connect(ctx context.Context, id string) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, fmt.Sprintf("%s?key=%s&id=%s", g.url, g.key, id), nil)
	if err != nil {
		return nil, err
	}

	msg, err := readParsed(dialCtx, conn)
	if err != nil {
		conn.Close(websocket.StatusNormalClosure, "")
		return nil, err
	}
	if msg.Type != protocol.TypeOpen {
		conn.Close(websocket.StatusNormalClosure, "")
		return nil, fmt.Errorf("admission failed: %s", msg.Type)
	}
	return conn, nil
}

func (g *ExchangeGenerator) recordLatency(d time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if d < g.minLatency {
		g.minLatency = d
	}
	if d > g.maxLatency {
		g.maxLatency = d
	}
	g.totalLatency += d
}

// ChurnMetrics aggregates results of a connection churn run.
type ChurnMetrics struct {
	Connects      int64
	ConnectErrors int64
	Elapsed       time.Duration
}

// ChurnTester hammers the admission path with short-lived connections.
type ChurnTester struct {
	url         string
	key         string
	concurrency int
	duration    time.Duration
}

// NewChurnTester creates a churn tester for the given relay endpoint.
func NewChurnTester(url, key string, concurrency int, duration time.Duration) *ChurnTester {
	if concurrency < 1 {
		concurrency = 1
	}
	return &ChurnTester{
		url:         url,
		key:         key,
		concurrency: concurrency,
		duration:    duration,
	}
}

// Run repeatedly connects and disconnects until the duration elapses.
func (t *ChurnTester) Run(ctx context.Context) (*ChurnMetrics, error) {
	runCtx, cancel := context.WithTimeout(ctx, t.duration)
	defer cancel()

	start := time.Now()
	metrics := &ChurnMetrics{}

	var wg sync.WaitGroup
	for i := 0; i < t.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-runCtx.Done():
					return
				default:
				}

				dialCtx, dialCancel := context.WithTimeout(runCtx, dialTimeout)
				conn, _, err := websocket.Dial(dialCtx, fmt.Sprintf("%s?key=%s", t.url, t.key), nil)
				if err != nil {
					dialCancel()
					if runCtx.Err() != nil {
						return
					}
					atomic.AddInt64(&metrics.ConnectErrors, 1)
					continue
				}

				if msg, err := readParsed(dialCtx, conn); err == nil && msg.Type == protocol.TypeOpen {
					atomic.AddInt64(&metrics.Connects, 1)
				} else {
					atomic.AddInt64(&metrics.ConnectErrors, 1)
				}

				conn.Close(websocket.StatusNormalClosure, "")
				dialCancel()
			}
		}()
	}
	wg.Wait()

	metrics.Elapsed = time.Since(start)
	return metrics, nil
}

func readParsed(ctx context.Context, conn *websocket.Conn) (*protocol.Message, error) {
	_, data, err := conn.Read(ctx)
	if err != nil {
		return nil, err
	}
	return protocol.Parse(data)
}

func writeMessage(ctx context.Context, conn *websocket.Conn, msg *protocol.Message) error {
	data, err := msg.Encode()
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

func padding(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = 'a'
	}
	return string(b)
}
