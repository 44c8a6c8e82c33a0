package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"voucherchain/core/events"
	"voucherchain/core/state"
	"voucherchain/core/types"
	"voucherchain/crypto"
	"voucherchain/native/bank"
	"voucherchain/native/cashpool"
	"voucherchain/native/common"
	"voucherchain/native/ledger"
	"voucherchain/native/product"
	"voucherchain/native/referral"
	"voucherchain/observability"
	"voucherchain/storage"
)

const (
	// SecondsPerBlock is the nominal block time used to derive timestamps.
	SecondsPerBlock = 30

	// RoleAdmin may grant roles, pause modules and credit balances.
	RoleAdmin = "admin"

	DefaultQualificationSlot uint64 = 1 << 40
	DefaultEarningsSlot      uint64 = 1<<40 + 1
	DefaultNetworkName              = "voucherchain"
)

var (
	ErrNotBootstrapped     = errors.New("core: runtime not bootstrapped")
	ErrAlreadyBootstrapped = errors.New("core: runtime already bootstrapped")
	ErrUnauthorized        = errors.New("core: caller lacks admin role")
	ErrBlockRegression     = errors.New("core: block height must not decrease")
)

var (
	blockKey        = []byte("runtime/block")
	bootstrappedKey = []byte("runtime/bootstrapped")
)

// Module addresses hold custody for the native engines.
var (
	LedgerAddress   = crypto.ModuleAddress("ledger").Raw()
	ProductAddress  = crypto.ModuleAddress("product").Raw()
	RegistryAddress = crypto.ModuleAddress("referral").Raw()
	CenterAddress   = crypto.ModuleAddress("referral.center").Raw()
	CashPoolAddress = crypto.ModuleAddress("cashpool").Raw()
)

type storedBlock struct {
	Height    uint64
	Timestamp uint64
}

// Options configures a Runtime.
type Options struct {
	ChainID           uint64
	NetworkName       string
	QualificationSlot uint64
	EarningsSlot      uint64
	// Emitter receives committed events in emission order. It is invoked
	// while the runtime lock is held and must not call back into the runtime.
	Emitter events.Emitter
	Logger  *slog.Logger
	// TracerProvider defaults to the global provider.
	TracerProvider trace.TracerProvider
}

// Tx exposes the wired engines to a single atomic execution.
type Tx struct {
	Block    types.BlockContext
	State    *state.Manager
	Pauses   *common.Pauses
	Ledger   *ledger.Engine
	Bank     *bank.Ledger
	Products *product.Engine
	Registry *referral.Registry
	Center   *referral.Center
	Pool     *cashpool.Pool
}

// Runtime is the deterministic execution host. Every mutating call runs
// under a single lock against a write-buffering state manager: the writes
// and events of a failed call are dropped, a successful call is committed in
// one storage batch before its events are published.
type Runtime struct {
	mu      sync.Mutex
	db      storage.Database
	state   *state.Manager
	buffer  *events.Buffer
	sink    events.Emitter
	logger  *slog.Logger
	tracer  trace.Tracer
	chainID uint64
	block   types.BlockContext

	pauses   *common.Pauses
	ledger   *ledger.Engine
	bank     *bank.Ledger
	products *product.Engine
	registry *referral.Registry
	center   *referral.Center
	pool     *cashpool.Pool
}

// NewRuntime wires every native engine over db and restores the persisted
// block context.
func NewRuntime(db storage.Database, opts Options) (*Runtime, error) {
	if db == nil {
		return nil, fmt.Errorf("core: database must be provided")
	}
	if opts.ChainID == 0 {
		return nil, fmt.Errorf("core: chain id must be non-zero")
	}
	if opts.QualificationSlot == 0 {
		opts.QualificationSlot = DefaultQualificationSlot
	}
	if opts.EarningsSlot == 0 {
		opts.EarningsSlot = DefaultEarningsSlot
	}
	if opts.QualificationSlot == opts.EarningsSlot {
		return nil, fmt.Errorf("core: qualification and earnings slots must differ")
	}
	if opts.NetworkName == "" {
		opts.NetworkName = DefaultNetworkName
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sink := opts.Emitter
	if sink == nil {
		sink = events.NoopEmitter{}
	}

	tp := opts.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	mgr := state.NewManager(db)
	r := &Runtime{
		db:      db,
		state:   mgr,
		buffer:  &events.Buffer{},
		sink:    sink,
		logger:  logger.With("component", "runtime"),
		tracer:  tp.Tracer("voucherchain/core"),
		chainID: opts.ChainID,
		pauses:  common.NewPauses(mgr),
	}

	r.ledger = ledger.NewEngine(LedgerAddress)
	r.bank = bank.NewLedger(mgr)
	r.products = product.NewEngine(ProductAddress, r.ledger, r.bank)
	r.registry = referral.NewRegistry(RegistryAddress, opts.QualificationSlot, r.ledger, opts.NetworkName, opts.ChainID)
	r.center = referral.NewCenter(CenterAddress, opts.EarningsSlot, r.ledger, r.registry)
	r.pool = cashpool.NewPool(CashPoolAddress, r.ledger, r.bank)

	r.ledger.SetState(mgr)
	r.ledger.SetRoles(mgr)
	r.ledger.SetPauses(r.pauses)
	r.ledger.SetEmitter(r.buffer)
	r.bank.SetEmitter(r.buffer)

	r.products.SetState(mgr)
	r.products.SetRoles(mgr)
	r.products.SetPauses(r.pauses)
	r.products.SetEmitter(r.buffer)
	r.products.SetObserver(r.center)

	r.registry.SetState(mgr)
	r.registry.SetRoles(mgr)
	r.registry.SetPauses(r.pauses)
	r.registry.SetEmitter(r.buffer)
	r.registry.SetNowFunc(func() time.Time { return time.Unix(r.block.Timestamp, 0).UTC() })

	r.center.SetState(mgr)
	r.center.SetRoles(mgr)
	r.center.SetPauses(r.pauses)
	r.center.SetEmitter(r.buffer)
	r.center.AttachConsumer(ProductAddress, r.products)

	r.pool.SetState(mgr)
	r.pool.SetRoles(mgr)
	r.pool.SetPauses(r.pauses)
	r.pool.SetEmitter(r.buffer)
	r.pool.AttachRedeemer(ProductAddress, r.products)
	r.pool.AttachRedeemer(CenterAddress, r.center)

	r.ledger.RegisterHooks(ProductAddress, r.products)
	r.ledger.RegisterHooks(RegistryAddress, r.registry)
	r.ledger.RegisterHooks(CenterAddress, r.center)

	var stored storedBlock
	ok, err := mgr.KVGet(blockKey, &stored)
	if err != nil {
		return nil, fmt.Errorf("core: load block context: %w", err)
	}
	if ok {
		r.applyBlock(types.BlockContext{Height: stored.Height, Timestamp: int64(stored.Timestamp)})
	} else {
		r.applyBlock(types.BlockContext{})
	}
	return r, nil
}

func (r *Runtime) tx() *Tx {
	return &Tx{
		Block:    r.block,
		State:    r.state,
		Pauses:   r.pauses,
		Ledger:   r.ledger,
		Bank:     r.bank,
		Products: r.products,
		Registry: r.registry,
		Center:   r.center,
		Pool:     r.pool,
	}
}

// Execute runs fn atomically. Any error discards every write and event fn
// produced.
func (r *Runtime) Execute(op string, fn func(*Tx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.execute(op, fn)
}

func (r *Runtime) execute(op string, fn func(*Tx) error) error {
	start := time.Now()
	_, span := r.tracer.Start(context.Background(), "runtime."+op, trace.WithAttributes(
		attribute.String("op", op),
		attribute.Int64("block.height", int64(r.block.Height)),
	))
	defer span.End()
	rollback := func() {
		r.state.Discard()
		r.buffer.Reset()
	}
	defer func() {
		if rec := recover(); rec != nil {
			rollback()
			span.SetStatus(codes.Error, "panic")
			panic(rec)
		}
	}()
	if err := fn(r.tx()); err != nil {
		rollback()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.logger.Warn("execution rolled back", "op", op, "height", r.block.Height, "error", err)
		observability.Runtime().ObserveExecution(op, false, time.Since(start))
		return err
	}
	if err := r.state.Commit(); err != nil {
		rollback()
		span.RecordError(err)
		span.SetStatus(codes.Error, "commit failed")
		r.logger.Error("commit failed", "op", op, "height", r.block.Height, "error", err)
		observability.Runtime().ObserveExecution(op, false, time.Since(start))
		return fmt.Errorf("core: %s: %w", op, err)
	}
	published := r.buffer.Drain()
	for i, evt := range published {
		r.sink.Emit(events.Committed{
			Height:    r.block.Height,
			Timestamp: r.block.Timestamp,
			Op:        op,
			Index:     i,
			Event:     evt,
		})
		observability.Events().RecordEvent(evt.EventType())
	}
	observability.Events().RecordBatch(op, len(published))
	span.SetAttributes(attribute.Int("events", len(published)))
	span.SetStatus(codes.Ok, "")
	r.logger.Debug("execution committed", "op", op, "height", r.block.Height, "events", len(published))
	observability.Runtime().ObserveExecution(op, true, time.Since(start))
	return nil
}

// View runs fn against committed state under the runtime lock.
func (r *Runtime) View(fn func(*Tx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	defer r.state.Discard()
	return fn(r.tx())
}

// Block returns the current block context.
func (r *Runtime) Block() types.BlockContext {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.block
}

func (r *Runtime) ChainID() uint64 { return r.chainID }

func (r *Runtime) applyBlock(ctx types.BlockContext) {
	r.block = ctx
	r.products.SetBlockHeight(ctx.Height)
	r.registry.SetBlockHeight(ctx.Height)
	r.center.SetBlockHeight(ctx.Height)
	observability.Runtime().SetHeight(ctx.Height)
}

// SetBlock moves the runtime to height at the given unix timestamp and
// persists the new context.
func (r *Runtime) SetBlock(height uint64, timestamp int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.setBlock(height, timestamp)
}

func (r *Runtime) setBlock(height uint64, timestamp int64) error {
	if height < r.block.Height {
		return fmt.Errorf("%w: %d < %d", ErrBlockRegression, height, r.block.Height)
	}
	if timestamp < 0 {
		return fmt.Errorf("core: negative timestamp %d", timestamp)
	}
	prev := r.block
	r.applyBlock(types.BlockContext{Height: height, Timestamp: timestamp})
	err := r.execute("block", func(tx *Tx) error {
		return tx.State.KVPut(blockKey, storedBlock{Height: height, Timestamp: uint64(timestamp)})
	})
	if err != nil {
		r.applyBlock(prev)
		return err
	}
	return nil
}

// AdvanceBlocks moves n blocks forward, SecondsPerBlock apart.
func (r *Runtime) AdvanceBlocks(n uint64) (types.BlockContext, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	next := r.block.Height + n
	ts := r.block.Timestamp + int64(n)*SecondsPerBlock
	if err := r.setBlock(next, ts); err != nil {
		return types.BlockContext{}, err
	}
	return r.block, nil
}

// Bootstrap grants every administrative role to admin, registers the
// native slot managers and enrolls the product engine as a referral
// consumer with ratio.
func (r *Runtime) Bootstrap(admin [20]byte, ratio *big.Int) error {
	if admin == ([20]byte{}) {
		return fmt.Errorf("core: bootstrap admin must be set")
	}
	if ratio == nil {
		ratio = new(big.Int).Set(referral.DefaultRatio)
	}
	return r.Execute("bootstrap", func(tx *Tx) error {
		var done bool
		if ok, err := tx.State.KVGet(bootstrappedKey, &done); err != nil {
			return err
		} else if ok && done {
			return ErrAlreadyBootstrapped
		}
		for _, role := range []string{
			RoleAdmin,
			ledger.RoleAdmin,
			product.RoleOperator,
			product.RoleCashier,
			referral.RoleOwner,
			cashpool.RoleOwner,
		} {
			if err := tx.State.SetRole(role, admin); err != nil {
				return err
			}
		}
		if err := tx.Ledger.AddSlotManager(admin, ProductAddress); err != nil {
			return err
		}
		if err := tx.Ledger.AddSlotManager(admin, RegistryAddress, tx.Registry.Slot()); err != nil {
			return err
		}
		if err := tx.Ledger.AddSlotManager(admin, CenterAddress, tx.Center.Slot()); err != nil {
			return err
		}
		if err := tx.Center.AddConsumer(admin, ProductAddress, ratio); err != nil {
			return err
		}
		return tx.State.KVPut(bootstrappedKey, true)
	})
}

// Bootstrapped reports whether Bootstrap has been committed.
func (r *Runtime) Bootstrapped() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	var done bool
	ok, err := r.state.KVGet(bootstrappedKey, &done)
	return err == nil && ok && done
}
