package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	kivik "github.com/go-kivik/kivik/v4"
	"github.com/go-kivik/kivik/v4/couchdb"
	"go.uber.org/zap"

	"petshop/config"
	"petshop/core"
)

const designDocPrefix = "_design/"

// petIndexFields get a Mango index each so FindBy does not scan the whole database
var petIndexFields = []string{core.FieldName, core.FieldCategory, core.FieldAvailable, core.FieldGender}

// CouchDB holds the CouchDB client and the pets database
type CouchDB struct {
	client *kivik.Client
	db     *kivik.DB
	name   string
	logger *zap.SugaredLogger
}

// NewCouchDB creates a CouchDB client for the configured endpoint. It does not contact the server.
func NewCouchDB(cfg config.CloudantConfig, creds *config.CloudantCredentials, logger *zap.SugaredLogger) (*CouchDB, error) {
	endpoint, err := creds.Endpoint()
	if err != nil {
		return nil, err
	}

	var opts []kivik.Option
	if !cfg.AdminParty {
		switch cfg.AuthType {
		case config.AuthBasic:
			opts = append(opts, couchdb.BasicAuth(creds.Username, creds.Password))
		case config.AuthCouchDBSession, "":
			opts = append(opts, couchdb.CookieAuth(creds.Username, creds.Password))
		case config.AuthIAM:
			if creds.APIKey == "" {
				return nil, fmt.Errorf("cloudant auth type %s requires an API key", config.AuthIAM)
			}
			tokenURL := cfg.IAMTokenURL
			if tokenURL == "" {
				tokenURL = config.DefaultIAMTokenURL
			}
			opts = append(opts, couchdb.OptionHTTPClient(NewIAMHTTPClient(creds.APIKey, tokenURL, nil)))
		default:
			return nil, fmt.Errorf("unsupported cloudant auth type %q", cfg.AuthType)
		}
	}

	client, err := kivik.New("couch", endpoint, opts...)
	if err != nil {
		return nil, core.NewDatabaseConnectionError("Cloudant service could not be reached", err)
	}

	logger.Infow("Cloudant endpoint configured", "endpoint", endpoint, "database", cfg.Database, "admin_party", cfg.AdminParty)

	return &CouchDB{client: client, name: cfg.Database, logger: logger}, nil
}

// DatabaseExists reports whether the pets database exists (HEAD /{db})
func (c *CouchDB) DatabaseExists(ctx context.Context) (bool, error) {
	return c.client.DBExists(ctx, c.name)
}

// CreateDatabase creates the pets database (PUT /{db}). An existing database is not an error.
func (c *CouchDB) CreateDatabase(ctx context.Context) error {
	err := c.client.CreateDB(ctx, c.name)
	if err != nil && kivik.HTTPStatus(err) != http.StatusPreconditionFailed {
		return err
	}
	return nil
}

// EnsureDatabase creates the pets database when missing, verifies it and builds its indexes.
func (c *CouchDB) EnsureDatabase(ctx context.Context) (*CouchStore, error) {
	exists, err := c.DatabaseExists(ctx)
	if err != nil {
		return nil, core.NewDatabaseConnectionError("Cloudant service could not be reached", err)
	}
	if !exists {
		c.logger.Infow("Creating database", "database", c.name)
		createErr := c.CreateDatabase(ctx)
		if createErr != nil {
			c.logger.Errorw("Cannot create database", "database", c.name, "error", createErr)
		}
		if exists, err = c.DatabaseExists(ctx); err != nil || !exists {
			if err == nil {
				err = createErr
			}
			return nil, core.NewDatabaseConnectionError(fmt.Sprintf("Database [%s] could not be obtained", c.name), err)
		}
	}

	c.db = c.client.DB(c.name)
	if err := c.db.Err(); err != nil {
		return nil, core.NewDatabaseConnectionError(fmt.Sprintf("Database [%s] could not be obtained", c.name), err)
	}

	for _, field := range petIndexFields {
		index := map[string]interface{}{"fields": []string{field}}
		if err := c.db.CreateIndex(ctx, "pets-"+field, "by-"+field, index); err != nil {
			c.logger.Warnw("Failed to create index", "field", field, "error", err)
		}
	}

	return &CouchStore{couch: c, db: c.db, logger: c.logger}, nil
}

// DeleteDatabase drops the pets database. Used by the reset command.
func (c *CouchDB) DeleteDatabase(ctx context.Context) error {
	err := c.client.DestroyDB(ctx, c.name)
	if err != nil && kivik.HTTPStatus(err) != http.StatusNotFound {
		return err
	}
	return nil
}

// Close closes the client connection
func (c *CouchDB) Close() error {
	return c.client.Close()
}

// CouchStore is a PetStore backed by a CouchDB or Cloudant database
type CouchStore struct {
	couch  *CouchDB
	db     *kivik.DB
	logger *zap.SugaredLogger
}

func (s *CouchStore) Create(ctx context.Context, pet *core.Pet) error {
	doc := pet.Serialize()
	delete(doc, core.FieldRev)

	var (
		id, rev string
		err     error
	)
	if pet.ID != "" {
		id = pet.ID
		rev, err = s.db.Put(ctx, id, doc)
	} else {
		id, rev, err = s.db.CreateDoc(ctx, doc)
	}
	if err != nil {
		return translateCouchError(err)
	}

	pet.ID = id
	pet.Rev = rev
	return nil
}

func (s *CouchStore) Update(ctx context.Context, pet *core.Pet) error {
	rev, err := s.db.Put(ctx, pet.ID, pet.Serialize())
	if err != nil {
		return translateCouchError(err)
	}
	pet.Rev = rev
	return nil
}

func (s *CouchStore) Delete(ctx context.Context, id, rev string) error {
	if _, err := s.db.Delete(ctx, id, rev); err != nil {
		return translateCouchError(err)
	}
	return nil
}

func (s *CouchStore) Get(ctx context.Context, id string) (*core.Pet, error) {
	var doc map[string]interface{}
	if err := s.db.Get(ctx, id).ScanDoc(&doc); err != nil {
		return nil, translateCouchError(err)
	}
	return petFromDocument(doc)
}

// All returns every pet document, skipping design documents.
func (s *CouchStore) All(ctx context.Context) ([]core.Pet, error) {
	rows := s.db.AllDocs(ctx, kivik.Param("include_docs", true))
	defer rows.Close()

	var pets []core.Pet
	for rows.Next() {
		id, err := rows.ID()
		if err != nil {
			return nil, translateCouchError(err)
		}
		if strings.HasPrefix(id, designDocPrefix) {
			continue
		}
		var doc map[string]interface{}
		if err := rows.ScanDoc(&doc); err != nil {
			return nil, translateCouchError(err)
		}
		pet, err := petFromDocument(doc)
		if err != nil {
			s.logger.Warnw("Skipping unreadable pet document", "id", id, "error", err)
			continue
		}
		pets = append(pets, *pet)
	}
	if err := rows.Err(); err != nil {
		return nil, translateCouchError(err)
	}
	return pets, nil
}

// FindBy runs a Mango query with selector as an equality match.
func (s *CouchStore) FindBy(ctx context.Context, selector Selector) ([]core.Pet, error) {
	rows := s.db.Find(ctx, map[string]interface{}{"selector": selector.normalized()})
	defer rows.Close()

	var pets []core.Pet
	for rows.Next() {
		var doc map[string]interface{}
		if err := rows.ScanDoc(&doc); err != nil {
			return nil, translateCouchError(err)
		}
		pet, err := petFromDocument(doc)
		if err != nil {
			s.logger.Warnw("Skipping unreadable pet document", "error", err)
			continue
		}
		pets = append(pets, *pet)
	}
	if err := rows.Err(); err != nil {
		return nil, translateCouchError(err)
	}
	return pets, nil
}

// RemoveAll deletes every pet document one at a time.
func (s *CouchStore) RemoveAll(ctx context.Context) error {
	pets, err := s.All(ctx)
	if err != nil {
		return err
	}
	for _, pet := range pets {
		if err := s.Delete(ctx, pet.ID, pet.Rev); err != nil && !errors.Is(err, ErrPetNotFound) {
			return err
		}
	}
	return nil
}

func (s *CouchStore) Ping(ctx context.Context) error {
	exists, err := s.couch.DatabaseExists(ctx)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("database %s does not exist", s.couch.name)
	}
	return nil
}

func (s *CouchStore) Close(_ context.Context) error {
	if err := s.db.Close(); err != nil {
		s.logger.Warnw("Failed to close database handle", "error", err)
	}
	return s.couch.Close()
}

// petFromDocument decodes a stored document. Stored documents are trusted, so a missing _id is the
// only structural failure beyond attribute errors.
func petFromDocument(doc map[string]interface{}) (*core.Pet, error) {
	var pet core.Pet
	if err := pet.Deserialize(doc); err != nil {
		return nil, err
	}
	if pet.ID == "" {
		return nil, errors.New("document has no _id")
	}
	return &pet, nil
}

func translateCouchError(err error) error {
	switch kivik.HTTPStatus(err) {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %v", ErrPetNotFound, err)
	case http.StatusConflict:
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}
