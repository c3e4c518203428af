// Package walletsession holds the authentication state of one wallet link:
// whether a wallet is connected and under which address. A Session mediates
// with a provider.Provider to connect, prove control of the address with a
// signed challenge, and roll the link back when that proof fails.
package walletsession

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/mrz1836/estatelink/internal/metrics"
	"github.com/mrz1836/estatelink/internal/provider"
	linkerr "github.com/mrz1836/estatelink/pkg/errors"
)

// State is a snapshot of the session.
type State struct {
	Address     string    `json:"address"`
	Connected   bool      `json:"connected"`
	Loading     bool      `json:"loading"`
	Chain       string    `json:"chain"`
	Provider    string    `json:"provider"`
	ConnectedAt time.Time `json:"connected_at,omitzero"`
}

// Logger is the logging surface the session writes to.
type Logger interface {
	Debug(format string, args ...any)
	Error(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Error(string, ...any) {}

// Option configures a Session.
type Option func(*Session)

// WithChain selects the chain whose address the session links. Default stx.
func WithChain(chain string) Option {
	return func(s *Session) { s.chain = chain }
}

// WithAppName sets the application name embedded in challenges.
func WithAppName(name string) Option {
	return func(s *Session) { s.appName = name }
}

// WithLogger sets the logger.
func WithLogger(l Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.log = l
		}
	}
}

// WithMetrics records session activity in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// WithClock overrides the time source used for challenges.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithNonce overrides the challenge nonce generator.
func WithNonce(nonce func() string) Option {
	return func(s *Session) { s.nonce = nonce }
}

// WithVerifier overrides the chain's signature verifier. nil disables verification.
func WithVerifier(v Verifier) Option {
	return func(s *Session) {
		s.verifier = v
		s.verifierSet = true
	}
}

// Session is the single source of truth for the linked wallet address.
// It is safe for concurrent use.
type Session struct {
	provider    provider.Provider
	chain       string
	appName     string
	profile     ChainProfile
	verifier    Verifier
	verifierSet bool
	log         Logger
	metrics     *metrics.Metrics
	now         func() time.Time
	nonce       func() string

	mu     sync.RWMutex
	state  State
	gen    uint64
	subs   map[uint64]func(State)
	nextID uint64

	flight  singleflight.Group
	fmu     sync.Mutex
	current *connectFlight
	flights uint64
}

// New creates a disconnected session over p.
func New(p provider.Provider, opts ...Option) (*Session, error) {
	s := &Session{
		provider: p,
		chain:    ChainSTX,
		appName:  "Estatelink",
		log:      nopLogger{},
		now:      time.Now,
		nonce:    uuid.NewString,
		subs:     make(map[uint64]func(State)),
	}
	for _, opt := range opts {
		opt(s)
	}

	profile, err := ProfileFor(s.chain)
	if err != nil {
		return nil, err
	}
	s.profile = profile
	if !s.verifierSet {
		s.verifier = profile.Verifier
	}

	s.state = State{Chain: s.chain, Provider: p.Name()}
	return s, nil
}

// State returns a snapshot of the current state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Subscribe registers fn to receive every state change. The returned func
// removes the subscription. fn runs on the goroutine that changed the state.
func (s *Session) Subscribe(fn func(State)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// Initialize adopts a link the provider already holds, without a signature.
// When none exists the session stays disconnected. It never fails.
func (s *Session) Initialize(ctx context.Context) {
	if !s.provider.IsConnected(ctx) {
		s.log.Debug("no existing %s link", s.provider.Name())
		s.metrics.RecordRestore(false)
		return
	}

	addrs, err := s.provider.LocalStorage(ctx)
	if err != nil {
		s.log.Error("reading %s local storage: %v", s.provider.Name(), err)
		s.metrics.RecordRestore(false)
		return
	}

	address := addrs.First(s.chain)
	if address == "" {
		s.log.Debug("%s link has no %s address", s.provider.Name(), s.chain)
		s.metrics.RecordRestore(false)
		return
	}

	s.update(func(st *State) {
		st.Address = address
		st.Connected = true
		st.Loading = false
		st.ConnectedAt = s.now().UTC()
	})
	s.log.Debug("restored %s session for %s", s.provider.Name(), address)
	s.metrics.RecordRestore(true)
	s.metrics.SetConnected(true)
}

// Connect links a wallet and authenticates it with a signed challenge.
//
// It returns nil when the session is already connected or when the user
// cancels, either in the provider's connect prompt or through ctx. It returns
// ErrNoAddress when the provider yields no address, ErrAuthDeclined when the
// challenge is not signed, and ErrProviderFailure for any other provider
// error. Concurrent calls share one provider flow; that flow is cancelled
// only when every waiting caller has cancelled.
func (s *Session) Connect(ctx context.Context) error {
	if s.State().Connected {
		s.metrics.RecordConnect(metrics.OutcomeAlreadyConnected)
		return nil
	}

	for {
		f, ch, retired := s.joinFlight(ctx)
		if f == nil {
			// The previous flow was abandoned by all of its callers and is
			// still unwinding. Start a fresh one once it has.
			select {
			case <-retired:
				continue
			case <-ctx.Done():
				s.log.Debug("connect cancelled while waiting: %v", ctx.Err())
				return nil
			}
		}

		select {
		case res := <-ch:
			s.leaveFlight(f, false)
			return res.Err
		case <-ctx.Done():
			s.leaveFlight(f, true)
			s.log.Debug("connect cancelled by caller: %v", ctx.Err())
			return nil
		}
	}
}

// connectFlight is one shared provider connect flow. Its context outlives any
// single caller and is cancelled once the last waiter leaves by cancelling.
type connectFlight struct {
	key     string
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
	done    chan struct{}
}

// joinFlight registers the caller with the running flow, starting one when
// none runs. It returns a nil flight and the retiring flow's done channel
// when that flow has already been abandoned.
func (s *Session) joinFlight(ctx context.Context) (*connectFlight, <-chan singleflight.Result, <-chan struct{}) {
	s.fmu.Lock()
	defer s.fmu.Unlock()

	f := s.current
	if f != nil && f.ctx.Err() != nil {
		return nil, nil, f.done
	}
	if f == nil {
		s.flights++
		fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		f = &connectFlight{
			key:    "connect-" + strconv.FormatUint(s.flights, 10),
			ctx:    fctx,
			cancel: cancel,
			done:   make(chan struct{}),
		}
		s.current = f
	}
	f.waiters++

	ch := s.flight.DoChan(f.key, func() (any, error) {
		defer s.retireFlight(f)
		return nil, s.connect(f.ctx)
	})
	return f, ch, nil
}

func (s *Session) leaveFlight(f *connectFlight, cancelled bool) {
	s.fmu.Lock()
	defer s.fmu.Unlock()

	f.waiters--
	if cancelled && f.waiters == 0 {
		f.cancel()
	}
}

func (s *Session) retireFlight(f *connectFlight) {
	s.fmu.Lock()
	defer s.fmu.Unlock()

	if s.current == f {
		s.current = nil
	}
	f.cancel()
	close(f.done)
}

func (s *Session) connect(ctx context.Context) error {
	gen, ok := s.begin()
	if !ok {
		s.metrics.RecordConnect(metrics.OutcomeAlreadyConnected)
		return nil
	}

	addrs, err := s.provider.Connect(ctx)
	if err != nil {
		s.reset()
		if isCancel(err) {
			s.log.Debug("connect cancelled: %v", err)
			s.metrics.RecordConnect(metrics.OutcomeCancelled)
			return nil
		}
		s.log.Error("%s connect failed: %v", s.provider.Name(), err)
		s.metrics.RecordConnect(metrics.OutcomeProviderError)
		return linkerr.WithCause(linkerr.ErrProviderFailure, err)
	}

	address := addrs.First(s.chain)
	if address == "" {
		address = s.cachedAddress(ctx)
	}
	if address == "" {
		s.reset()
		s.metrics.RecordConnect(metrics.OutcomeNoAddress)
		return linkerr.WithDetails(linkerr.ErrNoAddress, map[string]string{
			"chain":    s.chain,
			"provider": s.provider.Name(),
		})
	}

	if err := s.authenticate(ctx, address); err != nil {
		s.log.Error("authenticating %s failed: %v", address, err)
		superseded := s.superseded(gen)
		s.rollback(ctx)
		if superseded {
			s.metrics.RecordConnect(metrics.OutcomeCancelled)
			return nil
		}
		s.metrics.RecordConnect(metrics.OutcomeDeclined)
		return linkerr.WithCause(linkerr.ErrAuthDeclined, err)
	}

	if !s.commit(gen, address) {
		s.log.Debug("session was signed out during connect, unlinking %s", address)
		if err := s.provider.Disconnect(context.WithoutCancel(ctx)); err != nil {
			s.log.Error("%s disconnect failed: %v", s.provider.Name(), err)
		}
		s.metrics.RecordDisconnect()
		s.metrics.RecordConnect(metrics.OutcomeCancelled)
		return nil
	}
	s.log.Debug("connected %s via %s", address, s.provider.Name())
	s.metrics.RecordConnect(metrics.OutcomeSuccess)
	s.metrics.SetConnected(true)
	return nil
}

// Disconnect unlinks the wallet and clears the session. A connect in flight
// is cancelled and cannot complete afterwards. Provider errors are logged;
// the session always ends disconnected.
func (s *Session) Disconnect(ctx context.Context) {
	s.mu.Lock()
	s.gen++
	s.mu.Unlock()
	s.abortFlight()
	if err := s.provider.Disconnect(ctx); err != nil {
		s.log.Error("%s disconnect failed: %v", s.provider.Name(), err)
	}
	s.metrics.RecordDisconnect()
	s.reset()
}

// begin marks a connect in flight and returns the generation it started in.
// It reports false if already connected.
func (s *Session) begin() (uint64, bool) {
	var gen uint64
	ok := true
	s.update(func(st *State) {
		if st.Connected {
			ok = false
			return
		}
		st.Loading = true
		gen = s.gen
	})
	return gen, ok
}

// commit marks the session connected to address unless it was reset after
// generation gen began.
func (s *Session) commit(gen uint64, address string) bool {
	ok := true
	s.update(func(st *State) {
		if s.gen != gen {
			ok = false
			return
		}
		st.Address = address
		st.Connected = true
		st.Loading = false
		st.ConnectedAt = s.now().UTC()
	})
	return ok
}

// superseded reports whether the session was reset after generation gen began.
func (s *Session) superseded(gen uint64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gen != gen
}

// abortFlight cancels the running connect flow, if any.
func (s *Session) abortFlight() {
	s.fmu.Lock()
	defer s.fmu.Unlock()
	if s.current != nil {
		s.current.cancel()
	}
}

func (s *Session) cachedAddress(ctx context.Context) string {
	cached, err := s.provider.LocalStorage(ctx)
	if err != nil {
		s.log.Error("reading %s local storage: %v", s.provider.Name(), err)
		return ""
	}
	return cached.First(s.chain)
}

func (s *Session) authenticate(ctx context.Context, address string) error {
	msg := Challenge{
		AppName:  s.appName,
		Address:  address,
		IssuedAt: s.now(),
		Nonce:    s.nonce(),
	}.Message()

	raw, err := s.provider.Request(ctx, s.profile.SignMethod, provider.SignParams{
		Message: msg,
		Address: address,
	})
	if err != nil {
		return err
	}

	res, err := provider.DecodeSignResult(raw)
	if err != nil {
		return err
	}
	if strings.TrimSpace(res.Signature) == "" {
		return ErrEmptySignature
	}

	if s.verifier != nil {
		return s.verifier.Verify(address, msg, res)
	}
	return nil
}

// rollback disconnects the provider after a failed challenge. It runs even
// when ctx is already cancelled so no half-linked state survives.
func (s *Session) rollback(ctx context.Context) {
	if err := s.provider.Disconnect(context.WithoutCancel(ctx)); err != nil {
		s.log.Error("%s rollback disconnect failed: %v", s.provider.Name(), err)
	}
	s.metrics.RecordDisconnect()
	s.reset()
}

func (s *Session) reset() {
	s.update(func(st *State) {
		s.gen++
		st.Address = ""
		st.Connected = false
		st.Loading = false
		st.ConnectedAt = time.Time{}
	})
	s.metrics.SetConnected(false)
}

// update applies fn under the lock and notifies subscribers when the state changed.
func (s *Session) update(fn func(*State)) {
	s.mu.Lock()
	before := s.state
	fn(&s.state)
	after := s.state
	var subs []func(State)
	if after != before {
		subs = make([]func(State), 0, len(s.subs))
		for _, sub := range s.subs {
			subs = append(subs, sub)
		}
	}
	s.mu.Unlock()

	for _, sub := range subs {
		sub(after)
	}
}

func isCancel(err error) bool {
	return errors.Is(err, provider.ErrUserRejected) || errors.Is(err, context.Canceled)
}
