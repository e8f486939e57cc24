// Package client is the state machine that sequences wallet connection,
// account bootstrap and list synchronization into one observable state.
//
//	disconnected -> connecting -> ready | awaiting_init
//	awaiting_init -> bootstrapping -> ready | awaiting_init
//	ready -> submitting -> ready
//
// Any state may carry an error annotation. Operations run one at a time:
// an action requested while another is in flight fails with ErrBusy.
package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"archwall.mini/aw/internal/bootstrap"
	"archwall.mini/aw/internal/ledger"
	"archwall.mini/aw/internal/listsync"
	"archwall.mini/aw/internal/types"
	"archwall.mini/aw/internal/wallet"
)

// Opener creates a ledger session for a connected wallet.
type Opener func(id *wallet.Identity) ledger.Session

// Options configures a Machine.
type Options struct {
	Wallet  *wallet.Adapter
	Account ledger.Signer // list account key material
	Open    Opener
	// OperationTimeout bounds each operation; zero waits as long as the
	// ledger does.
	OperationTimeout time.Duration
	Log              zerolog.Logger
}

// Machine owns the client state.
type Machine struct {
	wallet  *wallet.Adapter
	account ledger.Signer
	open    Opener
	timeout time.Duration
	log     zerolog.Logger

	mu       sync.Mutex
	state    State
	identity *wallet.Identity
	boot     *bootstrap.Bootstrapper
	lists    *listsync.Synchronizer
	updates  chan struct{}
}

// New creates a disconnected machine.
func New(opts Options) *Machine {
	m := &Machine{
		wallet:  opts.Wallet,
		account: opts.Account,
		open:    opts.Open,
		timeout: opts.OperationTimeout,
		log:     opts.Log.With().Str("component", "client").Logger(),
		updates: make(chan struct{}, 1),
	}
	m.state = m.disconnectedState()
	return m
}

func (m *Machine) disconnectedState() State {
	return State{
		Status:        StatusDisconnected,
		Account:       m.account.PublicKey().String(),
		AccountStatus: AccountUnknown,
		Entries:       []types.Entry{},
		UpdatedAt:     time.Now(),
	}
}

// State returns a snapshot of the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.clone()
}

// Updates receives a value after every state change. Readers call State
// for the new value.
func (m *Machine) Updates() <-chan struct{} {
	return m.updates
}

func (m *Machine) notify() {
	select {
	case m.updates <- struct{}{}:
	default:
	}
}

// update applies fn under the lock and notifies.
func (m *Machine) update(fn func(s *State)) {
	m.mu.Lock()
	fn(&m.state)
	m.state.UpdatedAt = time.Now()
	m.mu.Unlock()
	m.notify()
}

// begin moves from one of the allowed states to next, clearing any
// annotation. It fails with ErrBusy while another operation runs.
func (m *Machine) begin(next Status, allowed ...Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur := m.state.Status
	if cur.busy() {
		return ErrBusy
	}
	ok := false
	for _, a := range allowed {
		if cur == a {
			ok = true
			break
		}
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrInvalidState, cur)
	}

	m.state.Status = next
	m.state.Error = nil
	m.state.Pending = next == StatusSubmitting
	m.state.UpdatedAt = time.Now()
	defer m.notify()
	return nil
}

func (m *Machine) annotate(s *State, op string, err error) {
	s.Error = &Annotation{
		Kind:      Classify(err),
		Operation: op,
		Message:   err.Error(),
		At:        time.Now(),
	}
}

func (m *Machine) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.timeout > 0 {
		return context.WithTimeout(ctx, m.timeout)
	}
	return context.WithCancel(ctx)
}

// Start attempts a silent connection. If the wallet does not connect
// without prompting, the machine stays disconnected with no annotation.
func (m *Machine) Start(ctx context.Context) error {
	if err := m.begin(StatusConnecting, StatusDisconnected); err != nil {
		return err
	}

	opCtx, cancel := m.opContext(ctx)
	defer cancel()

	id, ok := m.wallet.TryAutoConnect(opCtx)
	if !ok {
		m.update(func(s *State) { s.Status = StatusDisconnected })
		return nil
	}
	return m.establish(opCtx, id)
}

// Connect asks the wallet to connect, prompting if needed, then opens a
// session and checks whether the list account exists.
func (m *Machine) Connect(ctx context.Context) error {
	if err := m.begin(StatusConnecting, StatusDisconnected); err != nil {
		return err
	}

	opCtx, cancel := m.opContext(ctx)
	defer cancel()

	id, err := m.wallet.Connect(opCtx)
	if err != nil {
		m.update(func(s *State) {
			s.Status = StatusDisconnected
			m.annotate(s, "connect", err)
		})
		return err
	}
	return m.establish(opCtx, id)
}

// establish runs in the connecting state with a connected wallet.
func (m *Machine) establish(ctx context.Context, id *wallet.Identity) error {
	session := m.open(id)
	boot := bootstrap.New(session, m.account, m.log)
	lists := listsync.New(session, m.account.PublicKey(), m.log)

	exists, err := boot.Check(ctx)
	if err != nil {
		// existence unknown; never offer initialization on a guess
		m.log.Warn().Err(err).Msg("Account check failed")
		_ = m.wallet.Disconnect(context.Background())
		m.update(func(s *State) {
			*s = m.disconnectedState()
			m.annotate(s, "connect", err)
		})
		return err
	}

	sessionID := uuid.NewString()
	if withID, ok := session.(interface{ ID() string }); ok {
		sessionID = withID.ID()
	}

	m.mu.Lock()
	m.identity = id
	m.boot = boot
	m.lists = lists
	m.state.Wallet = id.PublicKey().String()
	m.state.SessionID = sessionID
	m.state.Endpoint = session.Endpoint()
	m.state.Commitment = string(session.Commitment())
	m.mu.Unlock()

	if !exists {
		m.log.Info().Msg("List account not initialized")
		m.update(func(s *State) {
			s.Status = StatusAwaitingInit
			s.AccountStatus = AccountAbsent
		})
		return nil
	}

	m.update(func(s *State) { s.AccountStatus = AccountPresent })
	return m.fetchInto(ctx, "fetch entries", StatusReady)
}

// Initialize creates the list account with the connected wallet as owner.
// On failure the machine returns to awaiting_init so the user can retry.
func (m *Machine) Initialize(ctx context.Context) error {
	if err := m.begin(StatusBootstrapping, StatusAwaitingInit); err != nil {
		return err
	}

	m.mu.Lock()
	boot, id := m.boot, m.identity
	m.mu.Unlock()

	opCtx, cancel := m.opContext(ctx)
	defer cancel()

	res, err := boot.EnsureAccount(opCtx, id)
	if err != nil {
		m.update(func(s *State) {
			s.Status = StatusAwaitingInit
			m.annotate(s, "initialize", err)
		})
		return err
	}
	if res.AlreadyExists {
		m.log.Info().Msg("List account was created elsewhere")
	}

	m.update(func(s *State) { s.AccountStatus = AccountPresent })
	return m.fetchInto(opCtx, "fetch entries", StatusReady)
}

// Submit appends link and refreshes the list. Blank links are rejected
// locally. On failure the entries stay as they were.
func (m *Machine) Submit(ctx context.Context, link string) error {
	m.mu.Lock()
	cur := m.state.Status
	m.mu.Unlock()
	if cur == StatusSubmitting {
		return ErrBusy
	}

	if _, err := listsync.ValidateEntry(link); err != nil {
		m.mu.Lock()
		allowed := m.state.Status == StatusReady
		if allowed {
			m.annotate(&m.state, "submit", err)
			m.state.UpdatedAt = time.Now()
		}
		m.mu.Unlock()
		if !allowed {
			return fmt.Errorf("%w: %s", ErrInvalidState, cur)
		}
		m.notify()
		return err
	}

	if err := m.begin(StatusSubmitting, StatusReady); err != nil {
		return err
	}

	m.mu.Lock()
	lists, id := m.lists, m.identity
	m.mu.Unlock()

	opCtx, cancel := m.opContext(ctx)
	defer cancel()

	if _, err := lists.AppendEntry(opCtx, id, link); err != nil {
		m.update(func(s *State) {
			s.Status = StatusReady
			s.Pending = false
			m.annotate(s, "submit", err)
		})
		return err
	}
	return m.fetchInto(opCtx, "refresh after submit", StatusReady)
}

// Refresh re-reads the list in the background of ready or awaiting_init.
// A failed read keeps the last known entries.
func (m *Machine) Refresh(ctx context.Context) error {
	m.mu.Lock()
	cur := m.state.Status
	lists := m.lists
	sessionID := m.state.SessionID
	m.mu.Unlock()

	switch {
	case cur.busy():
		return ErrBusy
	case cur != StatusReady && cur != StatusAwaitingInit:
		return fmt.Errorf("%w: %s", ErrInvalidState, cur)
	}

	opCtx, cancel := m.opContext(ctx)
	defer cancel()

	listing, err := lists.FetchEntries(opCtx)

	m.mu.Lock()
	defer m.notify()
	defer m.mu.Unlock()
	if m.state.SessionID != sessionID || m.state.Status.busy() {
		// the session changed or another operation took over
		return err
	}
	m.state.UpdatedAt = time.Now()
	if err != nil {
		m.annotate(&m.state, "refresh", err)
		return err
	}
	if listing.Exists && m.state.Status == StatusAwaitingInit {
		m.state.Status = StatusReady
	}
	m.applyListing(&m.state, listing)
	return nil
}

// fetchInto reads the list and moves to final. A failed read keeps the
// previous entries and annotates. An absent account returns the machine
// to awaiting init.
func (m *Machine) fetchInto(ctx context.Context, op string, final Status) error {
	m.mu.Lock()
	lists := m.lists
	m.mu.Unlock()

	listing, err := lists.FetchEntries(ctx)
	m.update(func(s *State) {
		s.Status = final
		s.Pending = false
		if err != nil {
			m.annotate(s, op, err)
			return
		}
		if !listing.Exists && final == StatusReady {
			// the read lags the write; Refresh moves on once it is visible
			s.Status = StatusAwaitingInit
			s.Error = &Annotation{
				Kind:      KindAccountNotFound,
				Operation: op,
				Message:   "list account not visible yet",
				At:        time.Now(),
			}
		}
		m.applyListing(s, listing)
	})
	return err
}

func (m *Machine) applyListing(s *State, listing *listsync.Listing) {
	if !listing.Exists {
		s.AccountStatus = AccountAbsent
		return
	}
	// an older read must not replace a newer one
	if listing.Height < s.Height {
		return
	}
	s.AccountStatus = AccountPresent
	s.Owner = listing.Owner.String()
	s.Entries = listing.Entries
	s.Height = listing.Height
}

// Disconnect drops the wallet and session. It is refused while an
// operation is in flight since signed transactions cannot be retracted.
func (m *Machine) Disconnect(ctx context.Context) error {
	m.mu.Lock()
	if m.state.Status.busy() {
		m.mu.Unlock()
		return ErrBusy
	}
	m.identity = nil
	m.boot = nil
	m.lists = nil
	m.state = m.disconnectedState()
	m.mu.Unlock()
	m.notify()

	if err := m.wallet.Disconnect(ctx); err != nil {
		m.log.Warn().Err(err).Msg("Wallet disconnect failed")
	}
	m.log.Info().Msg("Disconnected")
	return nil
}

// DismissError clears the annotation.
func (m *Machine) DismissError() {
	m.update(func(s *State) { s.Error = nil })
}
