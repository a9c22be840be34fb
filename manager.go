// Package docstore is a typed convenience layer over the MongoDB driver:
// named generic collection handles with identifier coercion, managed
// timestamps, soft deletes, normalized updates and smart paging.
package docstore

import (
	"context"
	"os"

	"github.com/go-errors/errors"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/x/mongo/driver/connstring"
)

type ManagerOpts struct {
	options.ClientOptions
	Name     string
	Database string
}

// Manager owns the MongoDB client and the named collection handles built on
// top of it. Collections register themselves on creation; registration is
// expected to happen during startup, before the manager is shared.
type Manager struct {
	ctx         context.Context
	client      *mongo.Client
	options     *ManagerOpts
	collections map[string]managedCollection
}

type managedCollection interface {
	Name() string
	EnsureIndexes(ctx context.Context) error
}

// NewManager connects a MongoDB client with the provided options and checks
// the connection.
func NewManager(opts *ManagerOpts) (*Manager, error) {
	if opts == nil {
		return nil, errors.New("manager options cannot be nil")
	}
	if opts.Database == "" {
		return nil, errors.New("database name is required")
	}

	manager := &Manager{
		ctx:         context.Background(),
		options:     opts,
		collections: map[string]managedCollection{},
	}

	if err := manager.connect(); err != nil {
		return nil, err
	}

	if err := manager.Ping(); err != nil {
		return nil, err
	}

	return manager, nil
}

// NewDefaultManager builds a manager from the MONGO_URI and MONGO_DATABASE
// environment variables, defaulting to a local server. The database name
// falls back to the one in the URI path.
func NewDefaultManager() (*Manager, error) {
	uri := getEnv("MONGO_URI", "mongodb://localhost:27017")

	clientOptions := (&options.ClientOptions{}).ApplyURI(uri)

	conn, err := connstring.Parse(uri)
	if err != nil {
		return nil, err
	}

	dbName := conn.Database
	if dbName == "" {
		dbName = "test"
	}

	opts := ManagerOpts{
		ClientOptions: *clientOptions,
		Name:          "mongodb",
		Database:      getEnv("MONGO_DATABASE", dbName),
	}

	return NewManager(&opts)
}

func (m *Manager) connect() error {
	opts := m.options.ClientOptions

	client, err := mongo.Connect(&opts)
	if err != nil {
		return err
	}

	m.client = client
	return nil
}

// Ping checks the connection to the server.
func (m *Manager) Ping() error {
	if m.client == nil {
		return errors.New("docstore client not initialized")
	}
	return m.client.Ping(m.ctx, nil)
}

// Disconnect closes the connection to the server.
func (m *Manager) Disconnect() error {
	if m.client == nil {
		return errors.New("docstore client not initialized")
	}
	return m.client.Disconnect(m.ctx)
}

func (m *Manager) Name() string {
	return m.options.Name
}

func (m *Manager) DatabaseName() string {
	return m.options.Database
}

// Client returns the underlying MongoDB client for operations this layer
// does not cover.
func (m *Manager) Client() *mongo.Client {
	return m.client
}

// RawCollection returns the driver-native handle for a collection by name.
func (m *Manager) RawCollection(name string) *mongo.Collection {
	return m.client.Database(m.options.Database).Collection(name)
}

func (m *Manager) register(c managedCollection) error {
	if m.collections == nil {
		m.collections = map[string]managedCollection{}
	}

	if _, exists := m.collections[c.Name()]; exists {
		return errors.Errorf("the collection %s is already registered", c.Name())
	}

	m.collections[c.Name()] = c
	return nil
}

// EnsureIndexes creates the declared indexes of every registered
// collection. Call it once after all collections are created.
func (m *Manager) EnsureIndexes(ctx context.Context) error {
	for name, c := range m.collections {
		if err := c.EnsureIndexes(ctx); err != nil {
			return errors.Errorf("failed to ensure indexes for %s: %v", name, err)
		}
	}
	return nil
}

func getEnv(key string, defaultValue string) string {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	return value
}
