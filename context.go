package dbset

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"

	retry "github.com/avast/retry-go"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

// TxnState is the transaction state of a Context's session.
type TxnState int

const (
	StateNoSession TxnState = iota
	StateIdle
	StateInTransaction
	StateCommitted
	StateAborted
)

func (s TxnState) String() string {
	switch s {
	case StateNoSession:
		return "no_session"
	case StateIdle:
		return "idle"
	case StateInTransaction:
		return "in_transaction"
	case StateCommitted:
		return "committed"
	case StateAborted:
		return "aborted"
	}
	return "unknown"
}

// Hooks are the pre-write transformations applied on every write. Each hook is
// total and must not return nil; a nil result surfaces as ErrHookNil to the
// caller. Embed NopHooks to override selectively.
type Hooks interface {
	BeforeInsert(doc interface{}) interface{}
	BeforeUpdate(u *Update) *Update
	BeforeReplace(doc interface{}) interface{}
	BeforeAggregate(pipeline []interface{}) []interface{}
}

// NopHooks passes every document, update and pipeline through unchanged.
type NopHooks struct{}

func (NopHooks) BeforeInsert(doc interface{}) interface{}  { return doc }
func (NopHooks) BeforeUpdate(u *Update) *Update            { return u }
func (NopHooks) BeforeReplace(doc interface{}) interface{} { return doc }
func (NopHooks) BeforeAggregate(p []interface{}) []interface{} {
	return p
}

// CollectionMetadata is the per-collection-name record a Context caches on
// first handle construction: the declared index keys for the collection. It is
// written once and read-only afterwards.
type CollectionMetadata struct {
	Name      string
	IndexKeys *IndexKeys
}

// Context owns the client connection, the database handle, at most one session
// per logical unit of work, and the per-collection metadata registry. A
// Context is safe for concurrent use; the transaction state machine is guarded
// by an internal lock.
type Context struct {
	client *mongo.Client
	db     *mongo.Database
	logger *zap.Logger
	hooks  Hooks
	name   string

	mu               sync.Mutex
	session          mongo.Session
	state            TxnState
	useTransaction   bool
	setOnConstructor bool

	metaMu sync.RWMutex
	meta   map[string]*CollectionMetadata

	collectionNames []string
}

type contextSettings struct {
	logger    *zap.Logger
	hooks     Hooks
	sink      EventSink
	codecs    []CodecRegistration
	configure func(*Context) error
}

// ContextOption customizes a Context at construction time.
type ContextOption func(*contextSettings)

// WithLogger installs the logger used by the Context and every handle derived
// from it. The default is a no-op logger.
func WithLogger(logger *zap.Logger) ContextOption {
	return func(s *contextSettings) { s.logger = logger }
}

// WithHooks installs the pre-write hook pipeline.
func WithHooks(hooks Hooks) ContextOption {
	return func(s *contextSettings) { s.hooks = hooks }
}

// WithEventSink re-emits driver command and connection events through sink.
func WithEventSink(sink EventSink) ContextOption {
	return func(s *contextSettings) { s.sink = sink }
}

// WithCodecs applies custom BSON codec registrations to the client.
func WithCodecs(regs ...CodecRegistration) ContextOption {
	return func(s *contextSettings) { s.codecs = append(s.codecs, regs...) }
}

// WithConfigure runs fn during the once-per-process bootstrap, before the
// collection-name snapshot is taken. Use it for user-declared registrations
// and default indexes beyond the tenant facet.
func WithConfigure(fn func(*Context) error) ContextOption {
	return func(s *contextSettings) { s.configure = fn }
}

const defaultContextName = "dbset.Context"

// databaseNameRE extracts the database name from the URI path.
var databaseNameRE = regexp.MustCompile(`^mongodb(\+srv)?://[^/?]*(?:/(?P<db>[^?]*))?`)

func parseDatabaseName(uri string) string {
	m := databaseNameRE.FindStringSubmatch(uri)
	if m == nil || m[2] == "" {
		return "test"
	}
	return m[2]
}

// Connect dials MongoDB, verifies the connection with a retried ping, runs the
// once-per-process bootstrap and returns a ready Context. With
// cfg.ForceTransaction a session is started and a transaction begun before
// Connect returns; that routing mode is latched and survives an abort.
func Connect(ctx context.Context, cfg Config, opts ...ContextOption) (*Context, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("%w: connection URI is required", ErrInvalidArgument)
	}

	settings := contextSettings{logger: zap.NewNop(), hooks: NopHooks{}}
	for _, opt := range opts {
		opt(&settings)
	}

	dbName := cfg.Database
	if dbName == "" {
		dbName = parseDatabaseName(cfg.URI)
	}

	// Retryable writes are disabled to keep standalone servers working, the
	// same way the classic wrappers dialed.
	clientOpts := options.Client().ApplyURI(cfg.URI).SetRetryWrites(false)
	if settings.sink != nil {
		clientOpts.SetMonitor(commandMonitor(settings.sink))
		clientOpts.SetServerMonitor(serverMonitor(settings.sink))
	}
	if len(settings.codecs) > 0 {
		clientOpts.SetRegistry(buildRegistry(settings.codecs))
	}

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	client, err := mongo.Connect(dialCtx, clientOpts)
	if err != nil {
		return nil, err
	}

	attempts := cfg.PingRetries
	if attempts == 0 {
		attempts = 3
	}
	err = retry.Do(
		func() error {
			pingCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			return client.Ping(pingCtx, readpref.Primary())
		},
		retry.Attempts(attempts),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	name := cfg.Name
	if name == "" {
		name = defaultContextName
	}
	c := &Context{
		client: client,
		db:     client.Database(dbName),
		logger: settings.logger.Named("dbset"),
		hooks:  settings.hooks,
		name:   name,
		state:  StateNoSession,
		meta:   map[string]*CollectionMetadata{},
	}

	entry := bootstrapFor(bootstrapKey(name, cfg.URI, dbName))
	entry.once.Do(func() {
		c.logger.Debug("running first-init bootstrap", zap.String("database", dbName))
		if settings.configure != nil {
			if entry.err = settings.configure(c); entry.err != nil {
				return
			}
		}
		entry.collections, entry.err = c.db.ListCollectionNames(ctx, bson.M{})
	})
	if entry.err != nil {
		_ = client.Disconnect(context.Background())
		return nil, entry.err
	}
	c.collectionNames = entry.collections

	if cfg.ForceTransaction {
		if err := c.StartTransaction(ctx); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, err
		}
		c.mu.Lock()
		c.setOnConstructor = true
		c.mu.Unlock()
	}
	return c, nil
}

// Database returns the database handle the Context is bound to.
func (c *Context) Database() *mongo.Database { return c.db }

// Client returns the underlying driver client.
func (c *Context) Client() *mongo.Client { return c.client }

// CollectionNames returns the collection-name snapshot taken at bootstrap.
func (c *Context) CollectionNames() []string { return c.collectionNames }

// State returns the current transaction state.
func (c *Context) State() TxnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Ping checks the connection to the primary.
func (c *Context) Ping(ctx context.Context) error {
	return c.client.Ping(ctx, readpref.Primary())
}

// CreateCollection creates a collection, optionally as a time series.
func (c *Context) CreateCollection(ctx context.Context, name string, ts *TimeSeriesOptions) error {
	return c.db.CreateCollection(ctx, name, ts.toDriver())
}

// StartSession starts the Context's session if none is active. It is
// idempotent: an existing session is kept.
func (c *Context) StartSession(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.startSessionLocked()
}

func (c *Context) startSessionLocked() error {
	if c.session != nil {
		return nil
	}
	session, err := c.client.StartSession()
	if err != nil {
		return err
	}
	c.session = session
	c.state = StateIdle
	return nil
}

// StartTransaction begins a transaction on the Context's session, starting the
// session first if needed. Legal only from the Idle and Aborted states.
func (c *Context) StartTransaction(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.startSessionLocked(); err != nil {
		return err
	}
	if c.state != StateIdle && c.state != StateAborted {
		return fmt.Errorf("%w: cannot start transaction in state %s", ErrTransactionState, c.state)
	}
	if err := c.session.StartTransaction(); err != nil {
		return err
	}
	c.state = StateInTransaction
	c.useTransaction = true
	c.logger.Debug("transaction started")
	return nil
}

// CommitTransaction commits the active transaction and releases the session.
// Legal only from InTransaction.
func (c *Context) CommitTransaction(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateInTransaction {
		return fmt.Errorf("%w: cannot commit in state %s", ErrTransactionState, c.state)
	}
	if err := c.session.CommitTransaction(ctx); err != nil {
		return err
	}
	c.session.EndSession(ctx)
	c.session = nil
	c.state = StateCommitted
	if !c.setOnConstructor {
		c.useTransaction = false
	}
	c.logger.Debug("transaction committed")
	return nil
}

// AbortTransaction aborts the active transaction. The session stays usable: a
// later StartTransaction is legal from the Aborted state. Legal only from
// InTransaction.
func (c *Context) AbortTransaction(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateInTransaction {
		return fmt.Errorf("%w: cannot abort in state %s", ErrTransactionState, c.state)
	}
	if err := c.session.AbortTransaction(ctx); err != nil {
		return err
	}
	c.state = StateAborted
	if !c.setOnConstructor {
		c.useTransaction = false
	}
	c.logger.Debug("transaction aborted")
	return nil
}

// EndSession releases the Context's session, aborting an in-flight
// transaction first.
func (c *Context) EndSession(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.endSessionLocked(ctx)
}

func (c *Context) endSessionLocked(ctx context.Context) {
	if c.session == nil {
		return
	}
	if c.state == StateInTransaction {
		if err := c.session.AbortTransaction(ctx); err != nil {
			c.logger.Warn("aborting in-flight transaction on session end", zap.Error(err))
		}
	}
	c.session.EndSession(ctx)
	c.session = nil
	c.state = StateNoSession
}

// Close drains the session and releases the connection pool.
func (c *Context) Close(ctx context.Context) error {
	c.mu.Lock()
	c.endSessionLocked(ctx)
	c.mu.Unlock()
	return c.client.Disconnect(ctx)
}

// sessionContext decides the transaction routing for one operation. force=true
// always binds a session (starting one if needed), force=false never does, and
// no opinion defers to the Context's transactional mode.
func (c *Context) sessionContext(ctx context.Context, force *bool) (context.Context, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	useSession := false
	switch {
	case force != nil:
		useSession = *force
	case c.useTransaction:
		useSession = true
	}
	if !useSession {
		return ctx, nil
	}
	if err := c.startSessionLocked(); err != nil {
		return nil, err
	}
	return mongo.NewSessionContext(ctx, c.session), nil
}

// metadataFor returns the cached metadata for a collection name.
func (c *Context) metadataFor(name string) (*CollectionMetadata, bool) {
	c.metaMu.RLock()
	defer c.metaMu.RUnlock()
	meta, ok := c.meta[name]
	return meta, ok
}

// storeMetadata caches metadata for a collection name, keeping the first
// registration when two handles race.
func (c *Context) storeMetadata(meta *CollectionMetadata) *CollectionMetadata {
	c.metaMu.Lock()
	defer c.metaMu.Unlock()
	if existing, ok := c.meta[meta.Name]; ok {
		return existing
	}
	c.meta[meta.Name] = meta
	return meta
}

// Hook wrappers. A nil hook result is a caller bug surfaced as ErrHookNil.

func (c *Context) beforeInsertInternal(doc interface{}) (interface{}, error) {
	out := c.hooks.BeforeInsert(doc)
	if out == nil {
		return nil, fmt.Errorf("%w: BeforeInsert", ErrHookNil)
	}
	return out, nil
}

func (c *Context) beforeUpdateInternal(u *Update) (*Update, error) {
	out := c.hooks.BeforeUpdate(u)
	if out == nil {
		return nil, fmt.Errorf("%w: BeforeUpdate", ErrHookNil)
	}
	return out, nil
}

func (c *Context) beforeReplaceInternal(doc interface{}) (interface{}, error) {
	out := c.hooks.BeforeReplace(doc)
	if out == nil {
		return nil, fmt.Errorf("%w: BeforeReplace", ErrHookNil)
	}
	return out, nil
}

func (c *Context) beforeAggregateInternal(pipeline []interface{}) ([]interface{}, error) {
	out := c.hooks.BeforeAggregate(pipeline)
	if out == nil {
		return nil, fmt.Errorf("%w: BeforeAggregate", ErrHookNil)
	}
	return out, nil
}
